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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gema/app"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

// writeTestCollection writes two overlapping studies and one study marked for exclusion.
// Study alpha measures g1,g2,g3; study beta measures g2,g3,g4; the shared universe is g2,g3.
func writeTestCollection(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "alpha_expr.csv",
		"gene,a1,a2,a3\n"+
			"g1,0.1,0.2,0.3\n"+
			"g2,1.1,1.2,1.3\n"+
			"g3,2.1,2.2,2.3\n")
	writeFile(t, dir, "alpha_clinical.csv",
		"sample_id,time,event,debulking,histology,grade,stage,age\n"+
			"a1,1000,1,optimal,ser,3,3,65\n"+
			"a2,800,0,suboptimal,ser,2,4,72\n"+
			"a3,,1,optimal,ser,3,3,58\n") //a3 lacks survival time and must be dropped
	writeFile(t, dir, "beta_expr.csv",
		"gene,b1,b2\n"+
			"g2,0.5,0.6\n"+
			"g3,1.5,1.6\n"+
			"g4,2.5,2.6\n")
	writeFile(t, dir, "beta_clinical.csv",
		"sample_id,time,event,debulking,histology,grade,stage,age\n"+
			"b1,1200,1,optimal,endo,2,2,55\n"+
			"b2,600,1,suboptimal,ser,3,3,71\n")
	writeFile(t, dir, "gamma_expr.csv",
		"gene,c1\n"+
			"g2,0.9\n")
	writeFile(t, dir, "gamma_clinical.csv",
		"sample_id,time,event\n"+
			"c1,500,1\n")
}

func TestParseStudyCollection(t *testing.T) {
	dir := t.TempDir()
	writeTestCollection(t, dir)
	collection := app.ParseStudyCollection("test", dir, []string{"gamma"}, nil)
	require.Len(t, collection.Studies, 2)
	// the gene universe is the intersection across studies, not the first study's list
	assert.Equal(t, []string{"g2", "g3"}, collection.Genes)
	alpha := collection.Studies[0]
	assert.Equal(t, "alpha", alpha.Name)
	require.Len(t, alpha.Samples, 2) //a3 dropped for incomplete survival annotation
	assert.Equal(t, "a1", alpha.Samples[0].ID)
	assert.Equal(t, "a2", alpha.Samples[1].ID)
	// expression columns stay aligned with the kept samples
	assert.Equal(t, []float64{1.1, 1.2}, alpha.Expression("g2"))
	assert.Equal(t, []float64{2.1, 2.2}, alpha.Expression("g3"))
	assert.False(t, alpha.HasGene("g1"))
	beta := collection.Studies[1]
	assert.Equal(t, "beta", beta.Name)
	assert.Len(t, beta.Samples, 2)
	assert.False(t, beta.HasGene("g4"))
}

func TestParseStudyCollectionClinicalAnnotations(t *testing.T) {
	dir := t.TempDir()
	writeTestCollection(t, dir)
	collection := app.ParseStudyCollection("test", dir, []string{"gamma"}, nil)
	a1 := collection.Studies[0].Samples[0]
	assert.Equal(t, 1000.0, a1.Time)
	assert.True(t, a1.Event)
	assert.Equal(t, app.DebulkingOptimal, a1.Debulking)
	assert.Equal(t, app.HistologySerous, a1.Histology)
	assert.Equal(t, 3, a1.Grade)
	assert.Equal(t, 3, a1.Stage)
	assert.Equal(t, 65.0, a1.Age)
	a2 := collection.Studies[0].Samples[1]
	assert.False(t, a2.Event)
	assert.Equal(t, app.DebulkingSuboptimal, a2.Debulking)
}

func TestParseStudyCollectionSampleFilters(t *testing.T) {
	dir := t.TempDir()
	writeTestCollection(t, dir)
	collection := app.ParseStudyCollection("test", dir, []string{"gamma"},
		[]app.SampleFilter{app.AboveSeventyFilter()})
	alpha := collection.Studies[0]
	require.Len(t, alpha.Samples, 1)
	assert.Equal(t, "a2", alpha.Samples[0].ID)
	assert.Equal(t, []float64{1.2}, alpha.Expression("g2"))
}

func TestParseStudyCollectionMismatchPanics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "solo_expr.csv",
		"gene,s1\n"+
			"g1,0.5\n")
	writeFile(t, dir, "solo_clinical.csv",
		"sample_id,time,event\n"+
			"s1,900,1\n"+
			"s2,700,0\n") //s2 has no expression column
	assert.Panics(t, func() { app.ParseStudyCollection("test", dir, nil, nil) })
}

func TestParseStudyCollectionEmptyDirPanics(t *testing.T) {
	dir := t.TempDir()
	assert.Panics(t, func() { app.ParseStudyCollection("test", dir, nil, nil) })
}

func TestParseStudyCollectionDisjointGenesPanics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one_expr.csv", "gene,s1\ng1,0.5\n")
	writeFile(t, dir, "one_clinical.csv", "sample_id,time,event\ns1,900,1\n")
	writeFile(t, dir, "two_expr.csv", "gene,u1\ng2,0.5\n")
	writeFile(t, dir, "two_clinical.csv", "sample_id,time,event\nu1,800,1\n")
	assert.Panics(t, func() { app.ParseStudyCollection("test", dir, nil, nil) })
}
