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
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Printing of synthesis results

// PrintGeneResult prints a one-line summary of a gene result to standard output.
func PrintGeneResult(r *GeneResult) {
	fmt.Printf("%-12s studies: %2d  FE logHR: %8.4f (p = %.3e)  RE logHR: %8.4f (p = %.3e)  tau2: %.4f  Q p: %.3e\n",
		r.Gene, r.NofStudies, r.Fixed.Beta, r.Fixed.P, r.Random.Beta, r.Random.P, r.Tau2, r.QP)
}

// WriteResults writes the full per-gene synthesis table to a csv file. One row per gene:
// gene, number of contributing studies, fixed-effects estimate/se/p, random-effects
// estimate/se/p, tau2, Q statistic, Q p-value, and the convergence flag.
func WriteResults(results []*GeneResult, name string) {
	file, err := os.Create(name)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(err)
		}
	}()
	writer := csv.NewWriter(file)
	defer writer.Flush()
	header := []string{"gene", "nof_studies", "fe_loghr", "fe_se", "fe_p",
		"re_loghr", "re_se", "re_p", "tau2", "q", "q_p", "converged"}
	if err := writer.Write(header); err != nil {
		panic(err)
	}
	for _, r := range results {
		record := []string{
			r.Gene,
			strconv.Itoa(r.NofStudies),
			formatFloat(r.Fixed.Beta),
			formatFloat(r.Fixed.SE),
			formatFloat(r.Fixed.P),
			formatFloat(r.Random.Beta),
			formatFloat(r.Random.SE),
			formatFloat(r.Random.P),
			formatFloat(r.Tau2),
			formatFloat(r.QStat),
			formatFloat(r.QP),
			strconv.FormatBool(r.Converged),
		}
		if err := writer.Write(record); err != nil {
			panic(err)
		}
	}
	fmt.Println("Wrote ", len(results), " gene results to ", name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
