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

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"gema/app"
	"gema/survival"
)

// Secondary analysis for the maximally heterogeneous gene: regress the per-study log hazard
// ratio on each clinical subgroup fraction, weighted by study sample size, and report the
// covariate that explains the between-study variation best.

// CovariateAssociation is the weighted linear regression of per-study coefficients on one
// subgroup fraction.
type CovariateAssociation struct {
	Covariate string  //name of the subgroup fraction
	Index     int     //index into app.CovariateNames()
	Intercept float64
	Slope     float64
	SlopeSE   float64
	P         float64 //two-sided p-value of the slope
}

// CovariateSummaries builds the per-study covariate summary for one gene: the subgroup
// fractions of each study's sample population plus the study's Cox log hazard ratio for the
// gene. Studies whose fit fails are skipped, mirroring the per-study drop policy of the
// effect estimator.
func CovariateSummaries(collection *app.StudyCollection, gene string, maxIter int) []*app.CovariateSummary {
	summaries := []*app.CovariateSummary{}
	for _, study := range collection.StudiesWithGene(gene) {
		times, events := study.SurvivalOutcome()
		beta, _, err := survival.CoxFit(times, events, study.Expression(gene), maxIter)
		if err != nil {
			continue
		}
		summary := app.SummarizeCovariates(study)
		summary.Beta = beta
		summaries = append(summaries, summary)
	}
	return summaries
}

// weightedSlopeTest fits a weighted linear regression of y on x and computes the two-sided
// p-value of the slope from a t test with n-2 degrees of freedom.
func weightedSlopeTest(x, y, weights []float64) (intercept, slope, slopeSE, p float64) {
	n := len(x)
	intercept, slope = stat.LinearRegression(x, y, weights, false)
	meanX := stat.Mean(x, weights)
	ssx, ssr, sumW := 0.0, 0.0, 0.0
	for i := range x {
		w := weights[i]
		dx := x[i] - meanX
		e := y[i] - intercept - slope*x[i]
		ssx += w * dx * dx
		ssr += w * e * e
		sumW += w
	}
	if ssx <= 0 || n < 3 {
		return intercept, slope, math.NaN(), math.NaN()
	}
	// normalize the weights so the residual variance is on a per-observation scale
	sigma2 := (ssr / sumW) * float64(n) / float64(n-2)
	slopeSE = math.Sqrt(sigma2 * sumW / float64(n) / ssx)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	p = 2.0 * t.Survival(math.Abs(slope/slopeSE))
	return intercept, slope, slopeSE, p
}

// BestCovariateAssociation regresses the per-study coefficient on each of the subgroup
// fractions, weighted by study sample size, and returns the association with the smallest
// slope p-value. At least 3 contributing studies are required for the slope test to have
// positive degrees of freedom.
func BestCovariateAssociation(summaries []*app.CovariateSummary) *CovariateAssociation {
	if len(summaries) < 3 {
		panic(fmt.Sprint("Covariate association requires at least 3 studies, got ", len(summaries)))
	}
	y := make([]float64, len(summaries))
	weights := make([]float64, len(summaries))
	for i, s := range summaries {
		y[i] = s.Beta
		weights[i] = float64(s.N)
	}
	names := app.CovariateNames()
	var best *CovariateAssociation
	for idx, name := range names {
		x := make([]float64, len(summaries))
		for i, s := range summaries {
			x[i] = s.CovariateFractions()[idx]
		}
		intercept, slope, slopeSE, p := weightedSlopeTest(x, y, weights)
		if math.IsNaN(p) {
			continue //constant fraction across studies, nothing to regress on
		}
		assoc := &CovariateAssociation{
			Covariate: name,
			Index:     idx,
			Intercept: intercept,
			Slope:     slope,
			SlopeSE:   slopeSE,
			P:         p,
		}
		if best == nil || assoc.P < best.P {
			best = assoc
		}
	}
	if best == nil {
		panic("Covariate association: all subgroup fractions are constant across studies")
	}
	return best
}
