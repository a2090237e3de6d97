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

package meta

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"gema/survival"
)

// Cross-study synthesis of per-study effect estimates. For each gene, the per-study log
// hazard ratios are combined under an inverse-variance fixed-effects model and under a REML
// random-effects model, together with Cochran's Q heterogeneity test. The fixed-effects
// combination is closed form; the random-effects combination estimates the between-study
// variance iteratively by Fisher scoring and may fail to converge within its budget.

const (
	// MethodFixed selects the closed-form fixed-effects combination for both result fields.
	MethodFixed = "FE"
	// MethodREML selects the iterative REML random-effects combination.
	MethodREML = "REML"

	// DefaultMaxIterations bounds the Fisher-scoring iterations of the REML solver.
	DefaultMaxIterations = 100
	// DefaultStepAdjustment damps the Fisher-scoring steps of the REML solver.
	DefaultStepAdjustment = 0.5

	tau2Tolerance = 1e-5
)

// Options configures the cross-study synthesis.
type Options struct {
	Method         string  //"FE" or "REML"
	MaxIterations  int     //iteration budget of the REML solver
	StepAdjustment float64 //step damping factor of the REML solver, in (0, 1]
	Plot           bool    //whether diagnostic plots are rendered
}

// DefaultOptions returns the synthesis options used when no flags override them.
func DefaultOptions() Options {
	return Options{
		Method:         MethodREML,
		MaxIterations:  DefaultMaxIterations,
		StepAdjustment: DefaultStepAdjustment,
	}
}

// Synthesis is one combined effect: the pooled log hazard ratio, its standard error, and the
// two-sided p-value of the pooled effect.
type Synthesis struct {
	Beta float64
	SE   float64
	P    float64
}

// GeneResult pairs the fixed-effects and random-effects syntheses of one gene in a single
// record. Keeping both combinations in one record keyed by gene makes the downstream
// filtering and ranking operate on one collection, so the two views cannot drift out of
// alignment. A result with Converged == false carries no usable random-effects fields.
type GeneResult struct {
	Gene       string
	Fixed      Synthesis
	Random     Synthesis
	Tau2       float64 //REML between-study variance estimate
	QStat      float64 //Cochran's Q statistic; NaN with fewer than 2 studies
	QP         float64 //p-value of Q; NaN with fewer than 2 studies
	NofStudies int     //number of studies that contributed a converged Cox fit
	Converged  bool    //whether the random-effects combination converged
}

// normalP returns the two-sided p-value of a z statistic.
func normalP(z float64) float64 {
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	return 2.0 * normal.CDF(-math.Abs(z))
}

// FixedEffects combines per-study estimates under the fixed-effects model: one true effect,
// inverse-variance weights. Closed form, deterministic, always converges.
func FixedEffects(estimates []survival.EffectEstimate) Synthesis {
	sumW, sumWY := 0.0, 0.0
	for _, est := range estimates {
		w := 1.0 / (est.SE * est.SE)
		sumW += w
		sumWY += w * est.Beta
	}
	beta := sumWY / sumW
	se := math.Sqrt(1.0 / sumW)
	return Synthesis{Beta: beta, SE: se, P: normalP(beta / se)}
}

// CochranQ computes Cochran's Q heterogeneity statistic and its p-value against a chi-squared
// distribution with k-1 degrees of freedom. The statistic uses the fixed-effects weights, so
// it is identical regardless of which combination model is used downstream. With fewer than 2
// contributing studies the test is undefined and both values are NaN; callers must exclude
// such genes from heterogeneity ranking explicitly.
func CochranQ(estimates []survival.EffectEstimate) (q, p float64) {
	k := len(estimates)
	if k < 2 {
		return math.NaN(), math.NaN()
	}
	pooled := FixedEffects(estimates)
	q = 0.0
	for _, est := range estimates {
		w := 1.0 / (est.SE * est.SE)
		d := est.Beta - pooled.Beta
		q += w * d * d
	}
	chi2 := distuv.ChiSquared{K: float64(k - 1)}
	return q, chi2.Survival(q)
}

// tau2DerSimonianLaird computes the closed-form DerSimonian-Laird moment estimate of the
// between-study variance, used as the starting value of the REML iteration.
func tau2DerSimonianLaird(estimates []survival.EffectEstimate, q float64) float64 {
	sumW, sumW2 := 0.0, 0.0
	for _, est := range estimates {
		w := 1.0 / (est.SE * est.SE)
		sumW += w
		sumW2 += w * w
	}
	denom := sumW - sumW2/sumW
	if denom <= 0 {
		return 0.0
	}
	tau2 := (q - float64(len(estimates)-1)) / denom
	if tau2 < 0 {
		return 0.0
	}
	return tau2
}

// RandomEffects combines per-study estimates under the random-effects model. The
// between-study variance tau^2 is estimated by restricted maximum likelihood with Fisher
// scoring, starting from the DerSimonian-Laird estimate, with steps damped by the step
// adjustment factor and the estimate clamped at zero. When tau^2 converges to zero the
// synthesis coincides exactly with the fixed-effects one. The converged flag is false when
// the iteration budget runs out; the returned synthesis must then not be used.
func RandomEffects(estimates []survival.EffectEstimate, maxIter int, stepAdjustment float64) (Synthesis, float64, bool) {
	k := len(estimates)
	if k == 0 {
		panic("RandomEffects: no estimates to combine")
	}
	if k == 1 {
		// a single study carries no between-study variance
		return FixedEffects(estimates), 0.0, true
	}
	q, _ := CochranQ(estimates)
	tau2 := tau2DerSimonianLaird(estimates, q)
	converged := false
	for iter := 0; iter < maxIter; iter++ {
		sumW, sumWY := 0.0, 0.0
		for _, est := range estimates {
			w := 1.0 / (est.SE*est.SE + tau2)
			sumW += w
			sumWY += w * est.Beta
		}
		mu := sumWY / sumW
		sumW2, sumW3, sumW2R := 0.0, 0.0, 0.0
		for _, est := range estimates {
			w := 1.0 / (est.SE*est.SE + tau2)
			d := est.Beta - mu
			sumW2 += w * w
			sumW3 += w * w * w
			sumW2R += w * w * d * d
		}
		score := sumW2R - sumW + sumW2/sumW
		info := sumW2 - 2.0*sumW3/sumW + (sumW2/sumW)*(sumW2/sumW)
		if !(info > 0) || math.IsNaN(score) {
			break
		}
		adj := stepAdjustment * score / info
		next := tau2 + adj
		if next < 0 {
			next = 0.0
		}
		change := next - tau2
		tau2 = next
		if math.Abs(change) < tau2Tolerance {
			converged = true
			break
		}
	}
	if !converged {
		return Synthesis{}, tau2, false
	}
	sumW, sumWY := 0.0, 0.0
	for _, est := range estimates {
		w := 1.0 / (est.SE*est.SE + tau2)
		sumW += w
		sumWY += w * est.Beta
	}
	beta := sumWY / sumW
	se := math.Sqrt(1.0 / sumW)
	return Synthesis{Beta: beta, SE: se, P: normalP(beta / se)}, tau2, true
}

// Synthesize combines the per-study effect estimates of one gene into a gene result. With
// method "FE" the random-effects fields repeat the fixed-effects combination (closed form,
// always converges); with method "REML" they come from the iterative random-effects solver.
func Synthesize(gene string, estimates []survival.EffectEstimate, opts Options) *GeneResult {
	if len(estimates) == 0 {
		panic(fmt.Sprint("Synthesize: no per-study estimates for gene ", gene))
	}
	fixed := FixedEffects(estimates)
	q, qp := CochranQ(estimates)
	result := &GeneResult{
		Gene:       gene,
		Fixed:      fixed,
		QStat:      q,
		QP:         qp,
		NofStudies: len(estimates),
	}
	switch opts.Method {
	case MethodFixed:
		result.Random = fixed
		result.Converged = true
	case MethodREML:
		random, tau2, converged := RandomEffects(estimates, opts.MaxIterations, opts.StepAdjustment)
		result.Random = random
		result.Tau2 = tau2
		result.Converged = converged
	default:
		panic(fmt.Sprint("Unknown synthesis method: ", opts.Method))
	}
	return result
}
