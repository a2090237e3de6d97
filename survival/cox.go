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

package survival

import (
	"errors"
	"math"
	"sort"

	"gema/app"
)

// Cox proportional-hazards regression with a single covariate. The partial likelihood is
// maximized by Newton-Raphson scoring with Breslow handling of tied event times. One fit per
// (gene, study) pair is the unit of work of the whole analysis.

const (
	// DefaultMaxIterations is the Newton-Raphson iteration budget of a single fit.
	DefaultMaxIterations = 20

	// betaBound is the monotone-likelihood guard: a log hazard ratio that runs beyond this
	// bound during iteration indicates (near-)separation and is treated as non-convergence.
	betaBound = 15.0

	convergenceTolerance = 1e-9
	maxStepSize          = 5.0
)

var (
	// ErrNoEvents signals a study without any observed death, which leaves the partial
	// likelihood undefined.
	ErrNoEvents = errors.New("cox: no events in study")
	// ErrConstantCovariate signals an expression vector without variation.
	ErrConstantCovariate = errors.New("cox: constant covariate")
	// ErrNotConverged signals that the iteration budget was exhausted or the information
	// vanished before the score converged.
	ErrNotConverged = errors.New("cox: fit did not converge")
	// ErrDiverged signals a runaway coefficient, typically from monotone likelihood.
	ErrDiverged = errors.New("cox: coefficient diverged")
)

// EffectEstimate is the result of one per-study Cox fit for one gene.
type EffectEstimate struct {
	Study string  //name of the contributing study
	Beta  float64 //log hazard ratio of the gene's expression
	SE    float64 //standard error of the log hazard ratio
}

// coxData holds the per-sample inputs of one fit, ordered by descending survival time so the
// risk set at each event time can be accumulated in a single sweep.
type coxData struct {
	times  []float64
	events []bool
	x      []float64
}

func newCoxData(times []float64, events []bool, x []float64) *coxData {
	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return times[order[i]] > times[order[j]] })
	data := &coxData{
		times:  make([]float64, len(times)),
		events: make([]bool, len(times)),
		x:      make([]float64, len(times)),
	}
	for i, j := range order {
		data.times[i] = times[j]
		data.events[i] = events[j]
		data.x[i] = x[j]
	}
	return data
}

// score computes the partial log likelihood, score, and observed information at beta, using
// the Breslow approximation for tied event times.
func (d *coxData) score(beta float64) (loglik, u, info float64) {
	s0, s1, s2 := 0.0, 0.0, 0.0
	i := 0
	n := len(d.times)
	for i < n {
		// all samples with this survival time enter the risk set before its events score
		j := i
		for j < n && d.times[j] == d.times[i] {
			r := math.Exp(beta * d.x[j])
			s0 += r
			s1 += d.x[j] * r
			s2 += d.x[j] * d.x[j] * r
			j++
		}
		deaths := 0
		sumX := 0.0
		for k := i; k < j; k++ {
			if d.events[k] {
				deaths++
				sumX += d.x[k]
			}
		}
		if deaths > 0 {
			dF := float64(deaths)
			mean := s1 / s0
			loglik += beta*sumX - dF*math.Log(s0)
			u += sumX - dF*mean
			info += dF * (s2/s0 - mean*mean)
		}
		i = j
	}
	return loglik, u, info
}

// CoxFit fits a Cox proportional-hazards model of the survival outcome against a single
// covariate and returns the coefficient and its standard error. The inputs are parallel
// per-sample vectors. Degenerate inputs and non-converging fits return an error; callers
// treat any error as an instruction to drop the study from the gene's effect-estimate list.
func CoxFit(times []float64, events []bool, x []float64, maxIter int) (beta, se float64, err error) {
	if len(times) != len(events) || len(times) != len(x) {
		panic("CoxFit: survival outcome and covariate vectors have different lengths")
	}
	nofEvents := 0
	for _, e := range events {
		if e {
			nofEvents++
		}
	}
	if nofEvents == 0 {
		return 0, 0, ErrNoEvents
	}
	constant := true
	for i := 1; i < len(x); i++ {
		if x[i] != x[0] {
			constant = false
			break
		}
	}
	if constant {
		return 0, 0, ErrConstantCovariate
	}
	data := newCoxData(times, events, x)
	beta = 0.0
	for iter := 0; iter < maxIter; iter++ {
		_, u, info := data.score(beta)
		if !(info > 1e-12) || math.IsNaN(u) || math.IsInf(u, 0) {
			return 0, 0, ErrNotConverged
		}
		delta := u / info
		if delta > maxStepSize {
			delta = maxStepSize
		} else if delta < -maxStepSize {
			delta = -maxStepSize
		}
		beta += delta
		if math.Abs(beta) > betaBound {
			return 0, 0, ErrDiverged
		}
		if math.Abs(delta) < convergenceTolerance {
			_, _, info = data.score(beta)
			if !(info > 0) {
				return 0, 0, ErrNotConverged
			}
			return beta, math.Sqrt(1.0 / info), nil
		}
	}
	return 0, 0, ErrNotConverged
}

// EstimateGeneEffects fits the per-study Cox models for one gene across a study collection.
// Only studies that measured the gene are considered; a study whose fit fails is dropped from
// the result. The function is pure: it mutates neither the collection nor any shared state,
// which is what allows the per-gene loop to run in parallel.
func EstimateGeneEffects(gene string, collection *app.StudyCollection, maxIter int) []EffectEstimate {
	estimates := []EffectEstimate{}
	for _, study := range collection.StudiesWithGene(gene) {
		times, events := study.SurvivalOutcome()
		beta, se, err := CoxFit(times, events, study.Expression(gene), maxIter)
		if err != nil {
			continue //non-convergence drops the study from this gene's synthesis
		}
		estimates = append(estimates, EffectEstimate{Study: study.Name, Beta: beta, SE: se})
	}
	return estimates
}
