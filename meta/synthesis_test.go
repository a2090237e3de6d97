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

package meta_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gema/meta"
	"gema/survival"
)

func est(study string, beta, se float64) survival.EffectEstimate {
	return survival.EffectEstimate{Study: study, Beta: beta, SE: se}
}

// lowHeterogeneityEstimates is the concrete low-heterogeneity scenario: three studies with
// close effects and comparable precision.
func lowHeterogeneityEstimates() []survival.EffectEstimate {
	return []survival.EffectEstimate{
		est("s1", 0.5, 0.1),
		est("s2", 0.6, 0.12),
		est("s3", 0.55, 0.11),
	}
}

// highHeterogeneityEstimates is the concrete high-heterogeneity scenario: three precise
// studies with strongly conflicting effects.
func highHeterogeneityEstimates() []survival.EffectEstimate {
	return []survival.EffectEstimate{
		est("s1", 1.0, 0.1),
		est("s2", -1.0, 0.1),
		est("s3", 0.0, 0.1),
	}
}

func TestFixedEffectsLowHeterogeneityScenario(t *testing.T) {
	pooled := meta.FixedEffects(lowHeterogeneityEstimates())
	assert.Greater(t, pooled.Beta, 0.5)
	assert.Less(t, pooled.Beta, 0.6)
	assert.Less(t, pooled.P, 0.001)
	_, qp := meta.CochranQ(lowHeterogeneityEstimates())
	assert.Greater(t, qp, 0.05)
}

func TestFixedEffectsDeterministic(t *testing.T) {
	first := meta.FixedEffects(lowHeterogeneityEstimates())
	second := meta.FixedEffects(lowHeterogeneityEstimates())
	assert.Equal(t, first, second)
}

func TestCochranQHighHeterogeneityScenario(t *testing.T) {
	estimates := highHeterogeneityEstimates()
	q, qp := meta.CochranQ(estimates)
	assert.Greater(t, q, 0.0)
	assert.Less(t, qp, 0.01)
	// the Q test is the same regardless of the combination method used downstream
	feResult := meta.Synthesize("gene", estimates, meta.Options{Method: meta.MethodFixed})
	remlOpts := meta.DefaultOptions()
	remlResult := meta.Synthesize("gene", estimates, remlOpts)
	assert.Equal(t, feResult.QStat, remlResult.QStat)
	assert.Equal(t, feResult.QP, remlResult.QP)
	assert.Less(t, remlResult.QP, 0.01)
}

func TestCochranQRange(t *testing.T) {
	for _, estimates := range [][]survival.EffectEstimate{
		lowHeterogeneityEstimates(),
		highHeterogeneityEstimates(),
		{est("s1", 0.2, 0.3), est("s2", 0.2, 0.3)},
	} {
		_, qp := meta.CochranQ(estimates)
		assert.GreaterOrEqual(t, qp, 0.0)
		assert.LessOrEqual(t, qp, 1.0)
	}
}

func TestCochranQUndefinedForSingleStudy(t *testing.T) {
	q, qp := meta.CochranQ([]survival.EffectEstimate{est("s1", 0.5, 0.1)})
	assert.True(t, math.IsNaN(q))
	assert.True(t, math.IsNaN(qp))
}

func TestRandomEffectsZeroTau2MatchesFixedEffects(t *testing.T) {
	// identical estimates leave no between-study variance to absorb
	estimates := []survival.EffectEstimate{
		est("s1", 0.5, 0.1),
		est("s2", 0.5, 0.1),
		est("s3", 0.5, 0.1),
	}
	random, tau2, converged := meta.RandomEffects(estimates, meta.DefaultMaxIterations, meta.DefaultStepAdjustment)
	require.True(t, converged)
	assert.Equal(t, 0.0, tau2)
	fixed := meta.FixedEffects(estimates)
	assert.Equal(t, fixed, random)
}

func TestRandomEffectsTau2NonNegative(t *testing.T) {
	for _, estimates := range [][]survival.EffectEstimate{
		lowHeterogeneityEstimates(),
		highHeterogeneityEstimates(),
	} {
		_, tau2, converged := meta.RandomEffects(estimates, meta.DefaultMaxIterations, meta.DefaultStepAdjustment)
		require.True(t, converged)
		assert.GreaterOrEqual(t, tau2, 0.0)
	}
}

func TestRandomEffectsAbsorbsHeterogeneity(t *testing.T) {
	random, tau2, converged := meta.RandomEffects(highHeterogeneityEstimates(),
		meta.DefaultMaxIterations, meta.DefaultStepAdjustment)
	require.True(t, converged)
	assert.Greater(t, tau2, 0.0)
	fixed := meta.FixedEffects(highHeterogeneityEstimates())
	// the between-study variance widens the pooled confidence interval
	assert.Greater(t, random.SE, fixed.SE)
}

func TestRandomEffectsExhaustedBudget(t *testing.T) {
	_, _, converged := meta.RandomEffects(highHeterogeneityEstimates(), 0, meta.DefaultStepAdjustment)
	assert.False(t, converged)
}

func TestRandomEffectsSingleStudy(t *testing.T) {
	estimates := []survival.EffectEstimate{est("s1", 0.5, 0.1)}
	random, tau2, converged := meta.RandomEffects(estimates, meta.DefaultMaxIterations, meta.DefaultStepAdjustment)
	require.True(t, converged)
	assert.Equal(t, 0.0, tau2)
	assert.Equal(t, meta.FixedEffects(estimates), random)
}

func TestSynthesizeFixedMethod(t *testing.T) {
	result := meta.Synthesize("gene", lowHeterogeneityEstimates(), meta.Options{Method: meta.MethodFixed})
	assert.True(t, result.Converged)
	assert.Equal(t, result.Fixed, result.Random)
	assert.Equal(t, 3, result.NofStudies)
}

func TestSynthesizeREMLMethod(t *testing.T) {
	result := meta.Synthesize("gene", lowHeterogeneityEstimates(), meta.DefaultOptions())
	require.True(t, result.Converged)
	assert.Equal(t, 3, result.NofStudies)
	assert.Less(t, result.Random.P, 0.001)
	assert.GreaterOrEqual(t, result.Random.SE, result.Fixed.SE)
}

func TestSynthesizeNonConvergenceIsFlagged(t *testing.T) {
	opts := meta.Options{Method: meta.MethodREML, MaxIterations: 0, StepAdjustment: 0.5}
	result := meta.Synthesize("gene", highHeterogeneityEstimates(), opts)
	assert.False(t, result.Converged)
	// the fixed-effects side is still computed, but the record as a whole is excluded
	// from ranking by FilterConverged
	assert.Less(t, result.Fixed.SE, 0.1)
}
