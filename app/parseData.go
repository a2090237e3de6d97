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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

//Package app implements the data inputs of the gema tool.
//The gema program takes a directory of per-study datasets. Each study consists of two csv files:
//A file <study>_expr.csv with the expression matrix: one row per gene, one column per sample.
//A file <study>_clinical.csv with per-sample clinical annotations: survival time, survival event,
//debulking status, histology, tumor grade, tumor stage, and age at diagnosis.
//The loader reconciles both files per study, drops samples without complete survival annotation,
//and restricts all studies to the genes present in every study.

const (
	// DebulkingOptimal and DebulkingSuboptimal are the recognized debulking annotations.
	DebulkingOptimal    = "optimal"
	DebulkingSuboptimal = "suboptimal"
	// HistologySerous is the histology subtype used in the covariate summaries.
	HistologySerous = "ser"
)

// Sample represents one tumor sample with its clinical annotations.
type Sample struct {
	ID        string  //sample ID from the source study
	Time      float64 //overall survival time in days
	Event     bool    //true when death was observed, false when censored
	Debulking string  //"optimal", "suboptimal", or "" when unknown
	Histology string  //histology subtype, e.g. "ser" for serous; "" when unknown
	Grade     int     //tumor grade, -1 when unknown
	Stage     int     //tumor stage, -1 when unknown
	Age       float64 //age at initial diagnosis in years, -1 when unknown
}

// Study represents one expression-profiling study: an expression matrix and the clinical
// annotations for its samples. The expression values for a gene are stored per sample, in the
// same order as the Samples slice.
type Study struct {
	Name    string               //study identifier, derived from the input file names
	Genes   []string             //genes measured by this study, sorted
	Expr    map[string][]float64 //gene -> expression value per sample
	Samples []*Sample            //samples with complete survival annotation
}

// StudyCollection represents a named collection of studies restricted to a shared gene
// universe. Genes is the intersection of the gene sets of all member studies, computed
// explicitly at load time rather than assumed from the first study.
type StudyCollection struct {
	Name    string
	Studies []*Study
	Genes   []string
}

// HasGene checks if a study measured a specific gene.
func (s *Study) HasGene(gene string) bool {
	_, ok := s.Expr[gene]
	return ok
}

// Expression returns the per-sample expression values of a gene in a study. It panics when the
// gene is not measured by the study; callers are expected to check with HasGene first.
func (s *Study) Expression(gene string) []float64 {
	x, ok := s.Expr[gene]
	if !ok {
		panic(fmt.Sprint("Gene ", gene, " not measured in study ", s.Name))
	}
	return x
}

// SurvivalOutcome returns the survival times and event flags of a study's samples, in sample
// order.
func (s *Study) SurvivalOutcome() ([]float64, []bool) {
	times := make([]float64, len(s.Samples))
	events := make([]bool, len(s.Samples))
	for i, sample := range s.Samples {
		times[i] = sample.Time
		events[i] = sample.Event
	}
	return times, events
}

// StudiesWithGene returns the studies in a collection that measured a specific gene.
func (c *StudyCollection) StudiesWithGene(gene string) []*Study {
	studies := []*Study{}
	for _, s := range c.Studies {
		if s.HasGene(gene) {
			studies = append(studies, s)
		}
	}
	return studies
}

// parseExpressionFile parses an expression matrix from csv. The expected layout is a header
// row with the gene column name followed by sample IDs, and one row per gene with the gene
// name followed by one expression value per sample.
func parseExpressionFile(file string) ([]string, map[string][]float64, []string) {
	fmt.Println("Parsing expression matrix from file: ", file)
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		panic(fmt.Sprint("Error parsing expression header of ", file, ": ", err))
	}
	if len(header) < 2 {
		panic(fmt.Sprint("Expression matrix ", file, " has no sample columns"))
	}
	sampleIDs := header[1:]
	genes := []string{}
	expr := map[string][]float64{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(fmt.Sprint("Error parsing expression record of ", file, ": ", err))
		}
		gene := record[0]
		if _, ok := expr[gene]; ok {
			panic(fmt.Sprint("Duplicate gene ", gene, " in expression matrix ", file))
		}
		values := make([]float64, len(record)-1)
		for i, entry := range record[1:] {
			v, err := strconv.ParseFloat(entry, 64)
			if err != nil {
				panic(fmt.Sprint("Malformed expression value for gene ", gene, " in ", file, ": ", entry))
			}
			values[i] = v
		}
		if len(values) != len(sampleIDs) {
			panic(fmt.Sprint("Expression row for gene ", gene, " in ", file, " has ", len(values),
				" values for ", len(sampleIDs), " samples"))
		}
		genes = append(genes, gene)
		expr[gene] = values
	}
	sort.Strings(genes)
	return genes, expr, sampleIDs
}

// parseClinicalFile parses the per-sample clinical table of a study from csv. The expected
// columns are sample_id, time, event, debulking, histology, grade, stage, age. Samples with
// missing survival time or event status are dropped here, before reconciliation with the
// expression matrix.
func parseClinicalFile(file string) map[string]*Sample {
	fmt.Println("Parsing clinical annotations from file: ", file)
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		panic(fmt.Sprint("Error parsing clinical header of ", file, ": ", err))
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"sample_id", "time", "event"} {
		if _, ok := col[required]; !ok {
			panic(fmt.Sprint("Clinical table ", file, " lacks required column ", required))
		}
	}
	samples := map[string]*Sample{}
	dropped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(fmt.Sprint("Error parsing clinical record of ", file, ": ", err))
		}
		id := record[col["sample_id"]]
		time, terr := strconv.ParseFloat(record[col["time"]], 64)
		event, eerr := parseEventFlag(record[col["event"]])
		if terr != nil || eerr != nil || time <= 0 {
			// incomplete survival annotation excludes the sample
			dropped++
			continue
		}
		samples[id] = &Sample{
			ID:        id,
			Time:      time,
			Event:     event,
			Debulking: optionalString(record, col, "debulking"),
			Histology: optionalString(record, col, "histology"),
			Grade:     optionalInt(record, col, "grade"),
			Stage:     optionalInt(record, col, "stage"),
			Age:       optionalFloat(record, col, "age"),
		}
	}
	if dropped > 0 {
		fmt.Println("Dropped ", dropped, " samples with incomplete survival annotation from ", file)
	}
	return samples
}

func parseEventFlag(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1", "deceased":
		return true, nil
	case "0", "living":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized event flag: %s", s)
}

func optionalString(record []string, col map[string]int, name string) string {
	if i, ok := col[name]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func optionalInt(record []string, col map[string]int, name string) int {
	if i, ok := col[name]; ok && i < len(record) {
		if v, err := strconv.Atoi(strings.TrimSpace(record[i])); err == nil {
			return v
		}
	}
	return -1
}

func optionalFloat(record []string, col map[string]int, name string) float64 {
	if i, ok := col[name]; ok && i < len(record) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err == nil {
			return v
		}
	}
	return -1
}

// parseStudy parses and reconciles the expression matrix and clinical table of one study.
// Only samples that occur in both files and carry complete survival annotation are kept; the
// expression matrix is restricted to the kept samples, preserving the invariant that column j
// of every gene's expression vector corresponds to Samples[j].
func parseStudy(name, exprFile, clinicalFile string, filters []SampleFilter) *Study {
	genes, expr, sampleIDs := parseExpressionFile(exprFile)
	clinical := parseClinicalFile(clinicalFile)
	for _, id := range sortedSampleIDs(clinical) {
		if !memberString(id, sampleIDs) {
			panic(fmt.Sprint("Clinical sample ", id, " of study ", name,
				" has no column in the expression matrix"))
		}
	}
	keep := []int{}
	samples := []*Sample{}
	for j, id := range sampleIDs {
		sample, ok := clinical[id]
		if !ok {
			continue
		}
		if !applySampleFilters(sample, filters) {
			continue
		}
		keep = append(keep, j)
		samples = append(samples, sample)
	}
	for gene, values := range expr {
		kept := make([]float64, len(keep))
		for i, j := range keep {
			kept[i] = values[j]
		}
		expr[gene] = kept
	}
	fmt.Println("Study ", name, ": kept ", len(samples), " of ", len(sampleIDs), " samples, ",
		len(genes), " genes")
	return &Study{Name: name, Genes: genes, Expr: expr, Samples: samples}
}

func sortedSampleIDs(clinical map[string]*Sample) []string {
	ids := make([]string, 0, len(clinical))
	for id := range clinical {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func memberString(s string, list []string) bool {
	for _, s2 := range list {
		if s2 == s {
			return true
		}
	}
	return false
}

// geneIntersection computes the set of genes present in every study, sorted.
func geneIntersection(studies []*Study) []string {
	if len(studies) == 0 {
		return nil
	}
	universe := []string{}
	for _, gene := range studies[0].Genes {
		inAll := true
		for _, s := range studies[1:] {
			if !s.HasGene(gene) {
				inAll = false
				break
			}
		}
		if inAll {
			universe = append(universe, gene)
		}
	}
	sort.Strings(universe)
	return universe
}

// ParseStudyCollection loads all studies found in a directory into a study collection.
// Studies are discovered as <study>_expr.csv / <study>_clinical.csv file pairs. Studies whose
// name occurs in the excluded list (duplicate samples, incompatible platform) are skipped.
// After loading, the collection's gene universe is computed as the intersection of the gene
// sets of all studies, and every study's expression matrix is restricted to that universe.
// A collection without studies or with an empty gene universe is a fatal input error.
func ParseStudyCollection(name, dir string, excluded []string, filters []SampleFilter) *StudyCollection {
	fmt.Println("Loading study collection from: ", dir)
	exprFiles, err := filepath.Glob(filepath.Join(dir, "*_expr.csv"))
	if err != nil {
		panic(err)
	}
	sort.Strings(exprFiles)
	studies := []*Study{}
	for _, exprFile := range exprFiles {
		studyName := strings.TrimSuffix(filepath.Base(exprFile), "_expr.csv")
		if memberString(studyName, excluded) {
			fmt.Println("Excluding study ", studyName)
			continue
		}
		clinicalFile := filepath.Join(dir, studyName+"_clinical.csv")
		if _, err := os.Stat(clinicalFile); err != nil {
			panic(fmt.Sprint("Study ", studyName, " has no clinical table: ", clinicalFile))
		}
		study := parseStudy(studyName, exprFile, clinicalFile, filters)
		if len(study.Samples) == 0 {
			panic(fmt.Sprint("Study ", studyName, " has no samples with complete survival annotation"))
		}
		studies = append(studies, study)
	}
	if len(studies) == 0 {
		panic(fmt.Sprint("No studies found in ", dir))
	}
	universe := geneIntersection(studies)
	if len(universe) == 0 {
		panic("The studies in the collection share no genes")
	}
	for _, s := range studies {
		restrictStudyGenes(s, universe)
	}
	fmt.Println("Loaded ", len(studies), " studies with a shared gene universe of ",
		len(universe), " genes")
	return &StudyCollection{Name: name, Studies: studies, Genes: universe}
}

// restrictStudyGenes drops the genes of a study that are not part of the shared universe.
func restrictStudyGenes(s *Study, universe []string) {
	expr := map[string][]float64{}
	for _, gene := range universe {
		expr[gene] = s.Expr[gene]
	}
	s.Expr = expr
	s.Genes = append([]string{}, universe...)
}
