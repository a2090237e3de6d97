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

package app

import (
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
)

// Simulation of synthetic study collections. The simulator plants two signal genes in an
// otherwise null collection: one gene with a homogeneous survival effect across all studies,
// and one gene whose effect tracks the fraction of suboptimally debulked samples per study,
// which makes it both maximally heterogeneous and associated with the debulking covariate.

const (
	// SimulatedSurvivalGene is the planted gene with a homogeneous prognostic effect.
	SimulatedSurvivalGene = "G0001"
	// SimulatedHeterogeneousGene is the planted gene with a study-dependent effect.
	SimulatedHeterogeneousGene = "G0002"

	simulatedSurvivalBeta = 0.6
	baselineHazard        = 1.0 / 1000.0 //per day
	censoringHazard       = 1.0 / 1500.0 //per day
)

// uniform draws a uniform float in (0, 1).
func uniform(rng *fastrand.RNG) float64 {
	return (float64(rng.Uint32()) + 0.5) / 4294967296.0
}

// normal draws a standard normal deviate using the Box-Muller transform.
func normal(rng *fastrand.RNG) float64 {
	u1 := uniform(rng)
	u2 := uniform(rng)
	return math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
}

// simulatedHeterogeneousBeta returns the planted log hazard ratio of the heterogeneous gene
// for a study with a given fraction of suboptimally debulked samples. The effect is a linear
// function of that fraction, so the covariate regression step can recover debulking as the
// best-associated covariate.
func simulatedHeterogeneousBeta(fracSuboptimal float64) float64 {
	return 1.6*fracSuboptimal - 0.8
}

// simulateSample draws the clinical annotations of one sample. The survival time is drawn
// from an exponential outcome model with the given log-linear predictor, censored by an
// independent exponential censoring time.
func simulateSample(rng *fastrand.RNG, id string, linpred, fracSuboptimal float64) *Sample {
	eventTime := -math.Log(uniform(rng)) / (baselineHazard * math.Exp(linpred))
	censorTime := -math.Log(uniform(rng)) / censoringHazard
	time := eventTime
	event := true
	if censorTime < eventTime {
		time = censorTime
		event = false
	}
	debulking := DebulkingOptimal
	if uniform(rng) < fracSuboptimal {
		debulking = DebulkingSuboptimal
	}
	histology := HistologySerous
	if uniform(rng) >= 0.7 {
		histology = "endo"
	}
	grade := 2
	if uniform(rng) < 0.6 {
		grade = 3
	}
	stage := 2
	if uniform(rng) < 0.7 {
		stage = 3
	}
	return &Sample{
		ID:        id,
		Time:      time,
		Event:     event,
		Debulking: debulking,
		Histology: histology,
		Grade:     grade,
		Stage:     stage,
		Age:       60.0 + 10.0*normal(rng),
	}
}

// SimulateStudyCollection generates a synthetic study collection with nofStudies studies of
// nofSamples samples each, measuring nofGenes genes. Gene G0001 carries a homogeneous
// survival effect in every study; gene G0002 carries a heterogeneous effect driven by the
// per-study debulking mix; all other genes are null. nofGenes must be at least 2.
func SimulateStudyCollection(nofStudies, nofGenes, nofSamples int, seed uint32) *StudyCollection {
	if nofStudies < 2 || nofGenes < 2 || nofSamples < 10 {
		panic(fmt.Sprint("Simulation requires >= 2 studies, >= 2 genes, and >= 10 samples, got: ",
			nofStudies, " ", nofGenes, " ", nofSamples))
	}
	fmt.Println("Simulating ", nofStudies, " studies with ", nofGenes, " genes and ",
		nofSamples, " samples each")
	rng := &fastrand.RNG{}
	rng.Seed(seed)
	genes := make([]string, nofGenes)
	for g := 0; g < nofGenes; g++ {
		genes[g] = fmt.Sprintf("G%04d", g+1)
	}
	sort.Strings(genes)
	studies := make([]*Study, nofStudies)
	for s := 0; s < nofStudies; s++ {
		// spread the debulking mix across studies to induce heterogeneity in G0002
		fracSuboptimal := 0.1 + 0.8*float64(s)/float64(nofStudies-1)
		hetBeta := simulatedHeterogeneousBeta(fracSuboptimal)
		expr := map[string][]float64{}
		for _, gene := range genes {
			expr[gene] = make([]float64, nofSamples)
		}
		samples := make([]*Sample, nofSamples)
		for i := 0; i < nofSamples; i++ {
			linpred := 0.0
			for _, gene := range genes {
				x := normal(rng)
				expr[gene][i] = x
				switch gene {
				case SimulatedSurvivalGene:
					linpred += simulatedSurvivalBeta * x
				case SimulatedHeterogeneousGene:
					linpred += hetBeta * x
				}
			}
			id := fmt.Sprintf("sim%02d.s%04d", s+1, i+1)
			samples[i] = simulateSample(rng, id, linpred, fracSuboptimal)
		}
		studies[s] = &Study{
			Name:    fmt.Sprintf("sim%02d", s+1),
			Genes:   append([]string{}, genes...),
			Expr:    expr,
			Samples: samples,
		}
	}
	return &StudyCollection{Name: "simulated", Studies: studies, Genes: genes}
}
