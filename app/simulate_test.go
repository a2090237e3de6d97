// GEMA: Gene Expression Survival Meta-Analysis Library
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/gema/blob/master/LICENSE.txt>.

package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gema/app"
)

func TestSimulateStudyCollectionShape(t *testing.T) {
	collection := app.SimulateStudyCollection(4, 10, 50, 1)
	require.Len(t, collection.Studies, 4)
	require.Len(t, collection.Genes, 10)
	assert.Contains(t, collection.Genes, app.SimulatedSurvivalGene)
	assert.Contains(t, collection.Genes, app.SimulatedHeterogeneousGene)
	for _, study := range collection.Studies {
		assert.Len(t, study.Samples, 50)
		for _, gene := range collection.Genes {
			assert.True(t, study.HasGene(gene))
			assert.Len(t, study.Expression(gene), 50)
		}
		for _, sample := range study.Samples {
			assert.Greater(t, sample.Time, 0.0)
			assert.GreaterOrEqual(t, sample.Grade, 2)
			assert.GreaterOrEqual(t, sample.Stage, 2)
		}
	}
}

func TestSimulateStudyCollectionDebulkingGradient(t *testing.T) {
	collection := app.SimulateStudyCollection(5, 4, 400, 2)
	first := app.SummarizeCovariates(collection.Studies[0])
	last := app.SummarizeCovariates(collection.Studies[4])
	// the simulator spreads the suboptimal-debulking fraction from low to high
	assert.Less(t, first.FracSuboptimal, 0.3)
	assert.Greater(t, last.FracSuboptimal, 0.7)
}

func TestSimulateStudyCollectionDeterministicForSeed(t *testing.T) {
	first := app.SimulateStudyCollection(3, 4, 30, 9)
	second := app.SimulateStudyCollection(3, 4, 30, 9)
	assert.Equal(t, first.Genes, second.Genes)
	for i := range first.Studies {
		assert.Equal(t, first.Studies[i].Expr, second.Studies[i].Expr)
		require.Equal(t, len(first.Studies[i].Samples), len(second.Studies[i].Samples))
		for j := range first.Studies[i].Samples {
			assert.Equal(t, *first.Studies[i].Samples[j], *second.Studies[i].Samples[j])
		}
	}
}

func TestSimulateStudyCollectionRejectsDegenerateSizes(t *testing.T) {
	assert.Panics(t, func() { app.SimulateStudyCollection(1, 10, 50, 1) })
	assert.Panics(t, func() { app.SimulateStudyCollection(4, 1, 50, 1) })
	assert.Panics(t, func() { app.SimulateStudyCollection(4, 10, 5, 1) })
}
