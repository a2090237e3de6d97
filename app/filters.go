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

// SampleFilter is a predicate for selecting samples from a study at load time.
type SampleFilter func(s *Sample) bool

// applySampleFilters checks a sample against all configured filters. A sample is kept only
// when every filter accepts it.
func applySampleFilters(s *Sample, filters []SampleFilter) bool {
	for _, filter := range filters {
		if !filter(s) {
			return false
		}
	}
	return true
}

// IdentityFilter accepts every sample.
func IdentityFilter() SampleFilter {
	return func(s *Sample) bool { return true }
}

// AboveSeventyFilter selects samples from patients aged 70 or older at diagnosis.
func AboveSeventyFilter() SampleFilter {
	return func(s *Sample) bool { return s.Age >= 70 }
}

// BelowSeventyFilter selects samples from patients younger than 70 at diagnosis. Samples with
// unknown age are rejected.
func BelowSeventyFilter() SampleFilter {
	return func(s *Sample) bool { return s.Age >= 0 && s.Age < 70 }
}

// OptimalDebulkingFilter selects samples with optimal surgical debulking.
func OptimalDebulkingFilter() SampleFilter {
	return func(s *Sample) bool { return s.Debulking == DebulkingOptimal }
}

// SuboptimalDebulkingFilter selects samples with suboptimal surgical debulking.
func SuboptimalDebulkingFilter() SampleFilter {
	return func(s *Sample) bool { return s.Debulking == DebulkingSuboptimal }
}

// SerousFilter selects samples with serous histology.
func SerousFilter() SampleFilter {
	return func(s *Sample) bool { return s.Histology == HistologySerous }
}

// HighGradeFilter selects samples with tumor grade 3 or higher.
func HighGradeFilter() SampleFilter {
	return func(s *Sample) bool { return s.Grade >= 3 }
}

// LateStageFilter selects samples with tumor stage III or IV.
func LateStageFilter() SampleFilter {
	return func(s *Sample) bool { return s.Stage >= 3 }
}
