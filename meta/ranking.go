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
	"sort"

	"github.com/exascience/pargo/parallel"

	"gema/app"
	"gema/survival"
)

// SynthesizeAllGenes runs the per-gene effect estimation and cross-study synthesis for every
// gene in the collection's shared universe. The per-gene computations are independent, so
// they run in parallel over the gene universe; the result order follows the universe order
// and is deterministic. A gene for which no study produced a converged Cox fit yields a
// non-converged result, which the downstream filtering removes and reports.
func SynthesizeAllGenes(collection *app.StudyCollection, opts Options) []*GeneResult {
	fmt.Println("Synthesizing effects for ", len(collection.Genes), " genes across ",
		len(collection.Studies), " studies...")
	results := make([]*GeneResult, len(collection.Genes))
	parallel.Range(0, len(collection.Genes), 0, func(low, high int) {
		for i := low; i < high; i++ {
			gene := collection.Genes[i]
			estimates := survival.EstimateGeneEffects(gene, collection, survival.DefaultMaxIterations)
			if len(estimates) == 0 {
				results[i] = &GeneResult{Gene: gene, QStat: math.NaN(), QP: math.NaN()}
				continue
			}
			results[i] = Synthesize(gene, estimates, opts)
		}
	})
	return results
}

// FilterConverged removes every gene whose random-effects combination failed from the result
// collection. Because each record pairs the fixed-effects and random-effects syntheses, the
// removal drops both views of a failed gene at once, keeping the two rankings over the
// identical gene set. The names of the dropped genes are returned for reporting.
func FilterConverged(results []*GeneResult) (kept []*GeneResult, dropped []string) {
	kept = []*GeneResult{}
	dropped = []string{}
	for _, r := range results {
		if r.Converged {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r.Gene)
		}
	}
	return kept, dropped
}

// TopSurvivalGene ranks the converged genes by ascending pooled p-value, separately under the
// fixed-effects and the random-effects combination, and returns the top gene of each ranking.
// On well-behaved data the two rankings agree on the top choice; the caller reports whether
// they do.
func TopSurvivalGene(results []*GeneResult) (fixedTop, randomTop *GeneResult) {
	if len(results) == 0 {
		panic("TopSurvivalGene: no converged gene results to rank")
	}
	byFixed := append([]*GeneResult{}, results...)
	sort.SliceStable(byFixed, func(i, j int) bool { return byFixed[i].Fixed.P < byFixed[j].Fixed.P })
	byRandom := append([]*GeneResult{}, results...)
	sort.SliceStable(byRandom, func(i, j int) bool { return byRandom[i].Random.P < byRandom[j].Random.P })
	return byFixed[0], byRandom[0]
}

// TopHeterogeneityGene ranks genes by ascending Q-test p-value and returns the gene with the
// strongest heterogeneity signal. Genes with fewer than 2 contributing studies have no Q test
// and are excluded from the ranking rather than sorted on a NaN.
func TopHeterogeneityGene(results []*GeneResult) *GeneResult {
	var top *GeneResult
	for _, r := range results {
		if math.IsNaN(r.QP) {
			continue
		}
		if top == nil || r.QP < top.QP {
			top = r
		}
	}
	if top == nil {
		panic("TopHeterogeneityGene: no gene with at least 2 contributing studies")
	}
	return top
}

// SortByFixedP returns the results sorted by ascending fixed-effects p-value. Used for
// printing the leading genes of a run.
func SortByFixedP(results []*GeneResult) []*GeneResult {
	sorted := append([]*GeneResult{}, results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Fixed.P < sorted[j].Fixed.P })
	return sorted
}
