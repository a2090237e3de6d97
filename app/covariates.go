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

// CovariateSummary captures, for one study, the fraction of samples in each clinical
// subgroup together with the study's sample count and its log hazard ratio for one selected
// gene. The Beta field is filled in by the meta package.
type CovariateSummary struct {
	Study          string
	N              int     //number of samples contributing to the study's fit
	FracSuboptimal float64 //fraction of suboptimally debulked samples
	FracSerous     float64 //fraction of samples with serous histology
	FracHighGrade  float64 //fraction of samples with tumor grade >= 3
	FracLateStage  float64 //fraction of samples with tumor stage >= III
	FracAge70      float64 //fraction of patients aged 70 or older at diagnosis
	Beta           float64 //the study's log hazard ratio for the selected gene
}

// CovariateNames lists the subgroup fractions of a covariate summary, in the order used by
// CovariateFractions.
func CovariateNames() []string {
	return []string{"suboptimal debulking", "serous histology", "high grade", "late stage", "age 70+"}
}

// CovariateFractions returns the subgroup fractions of a summary in the CovariateNames order.
func (c *CovariateSummary) CovariateFractions() []float64 {
	return []float64{c.FracSuboptimal, c.FracSerous, c.FracHighGrade, c.FracLateStage, c.FracAge70}
}

// SummarizeCovariates computes the subgroup fractions of a study's sample population. The
// Beta field of the result is left zero.
func SummarizeCovariates(s *Study) *CovariateSummary {
	summary := &CovariateSummary{Study: s.Name, N: len(s.Samples)}
	if len(s.Samples) == 0 {
		return summary
	}
	suboptimal, serous, highGrade, lateStage, age70 := 0, 0, 0, 0, 0
	for _, sample := range s.Samples {
		if sample.Debulking == DebulkingSuboptimal {
			suboptimal++
		}
		if sample.Histology == HistologySerous {
			serous++
		}
		if sample.Grade >= 3 {
			highGrade++
		}
		if sample.Stage >= 3 {
			lateStage++
		}
		if sample.Age >= 70 {
			age70++
		}
	}
	n := float64(len(s.Samples))
	summary.FracSuboptimal = float64(suboptimal) / n
	summary.FracSerous = float64(serous) / n
	summary.FracHighGrade = float64(highGrade) / n
	summary.FracLateStage = float64(lateStage) / n
	summary.FracAge70 = float64(age70) / n
	return summary
}
