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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gema/app"
	"gema/meta"
	"gema/report"
	"gema/survival"
	"gema/utils"
)

/*
Gema is a tool for gene-expression survival meta-analysis across independent
expression-profiling studies.

Usage:
	gema studyDir outputPath [flags]

Example:
	gema ./ovarian_studies/ ./results/ --method REML --maxIterations 100 --stepAdjustment 0.5
	--plot --name ovarian --excludeStudies "PMID17290060,TCGA.mirna" --sfilters "serous,latestage"

The flags are:

--method FE | REML
	The cross-study combination model. FE is the closed-form fixed-effects combination which
	always converges. REML additionally estimates the between-study variance by restricted
	maximum likelihood; this is iterative and may fail to converge for individual genes,
	which are then dropped from the ranking and reported.
--maxIterations nr
	The iteration budget of the REML solver.
--stepAdjustment nr
	The damping factor applied to the REML Fisher-scoring steps, in (0, 1]. Smaller values
	trade convergence speed for stability.
--plot
	If this flag is passed, the diagnostic plots are rendered to the output path: a histogram
	of the heterogeneity p-values across all genes, a forest plot for the top survival gene,
	a forest plot for the most heterogeneous gene, and a scatter plot of that gene's
	per-study effects against the best-associated clinical covariate.
--name string
	Sets the name of the experiment. This name is used to generate names for output files.
--sfilters age70+ | age70- | optimal | suboptimal | serous | highgrade | latestage
	A list of filters for selecting samples at load time.
--excludeStudies s1,s2
	A list of study names to exclude from the analysis, e.g. studies that duplicate samples
	of another study or that were profiled on an incompatible platform.
--simulate
	Run the analysis on a simulated study collection instead of loading one from studyDir.
	The simulator plants one homogeneous survival gene and one heterogeneous gene whose
	effect tracks the per-study debulking mix.
--simStudies nr, --simGenes nr, --simSamples nr, --seed nr
	Size and seed of the simulated collection.
--nrOfThreads nr
	The number of threads gema uses.
*/

const (
	programVersion = 0.1
	programName    = "gema"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const gemaHelp = "\ngema parameters:\n" +
	"gema studyDir outputPath \n" +
	"[--method FE|REML]\n" +
	"[--maxIterations nr]\n" +
	"[--stepAdjustment nr]\n" +
	"[--plot]\n" +
	"[--name string]\n" +
	"[--sfilters age70+ | age70- | optimal | suboptimal | serous | highgrade | latestage]\n" +
	"[--excludeStudies s1,s2]\n" +
	"[--simulate]\n" +
	"[--simStudies nr]\n" +
	"[--simGenes nr]\n" +
	"[--simSamples nr]\n" +
	"[--seed nr]\n" +
	"[--nrOfThreads nr]\n"

func parseFlags(flags flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprint(os.Stderr, err)
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func getSampleFilter(s string) app.SampleFilter {
	switch s {
	case "id":
		return app.IdentityFilter()
	case "age70+":
		return app.AboveSeventyFilter()
	case "age70-":
		return app.BelowSeventyFilter()
	case "optimal":
		return app.OptimalDebulkingFilter()
	case "suboptimal":
		return app.SuboptimalDebulkingFilter()
	case "serous":
		return app.SerousFilter()
	case "highgrade":
		return app.HighGradeFilter()
	case "latestage":
		return app.LateStageFilter()
	default:
		return app.IdentityFilter()
	}
}

func getSampleFilters(f string) []app.SampleFilter {
	fs := strings.Split(f, ",")
	result := []app.SampleFilter{}
	for _, f := range fs {
		result = append(result, getSampleFilter(f))
	}
	return result
}

func getExcludedStudies(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func main() {
	var (
		// required parameters
		studyDir   string //The directory with the per-study expression and clinical csv files.
		outputPath string //The path where output files are written.
		// optional flags
		method         string
		maxIterations  int
		stepAdjustment float64
		plotFlag       bool
		name           string
		sfilters       string
		excludeStudies string
		simulate       bool
		simStudies     int
		simGenes       int
		simSamples     int
		seed           int
		nrOfThreads    int
	)
	var flags flag.FlagSet
	// options for the gema command
	flags.StringVar(&method, "method", meta.MethodREML, "The cross-study combination model: FE for the "+
		"closed-form fixed-effects combination, REML for the iterative random-effects combination.")
	flags.IntVar(&maxIterations, "maxIterations", meta.DefaultMaxIterations, "The iteration budget of "+
		"the REML solver.")
	flags.Float64Var(&stepAdjustment, "stepAdjustment", meta.DefaultStepAdjustment, "The damping factor "+
		"for the REML Fisher-scoring steps.")
	flags.BoolVar(&plotFlag, "plot", false, "Render the diagnostic plots to the output path.")
	flags.StringVar(&name, "name", "exp1", "The name of the run. This is used to generate the "+
		"names of the output files.")
	flags.StringVar(&sfilters, "sfilters", "id", "A list of sfilters to restrict analysis to specific "+
		"samples.")
	flags.StringVar(&excludeStudies, "excludeStudies", "", "A list of study names to exclude, e.g. "+
		"duplicates or incompatible platforms.")
	flags.BoolVar(&simulate, "simulate", false, "Analyse a simulated study collection instead of "+
		"loading one from studyDir.")
	flags.IntVar(&simStudies, "simStudies", 8, "The number of studies in the simulated collection.")
	flags.IntVar(&simGenes, "simGenes", 200, "The number of genes in the simulated collection.")
	flags.IntVar(&simSamples, "simSamples", 150, "The number of samples per simulated study.")
	flags.IntVar(&seed, "seed", 42, "The seed of the simulated collection.")
	flags.IntVar(&nrOfThreads, "nrOfThreads", 0, "The number of threads gema uses.")
	// parse optional arguments
	parseFlags(flags, 3, gemaHelp)
	// parse required arguments
	studyDir = getFileName(os.Args[1], gemaHelp)
	outputPath, _ = filepath.Abs(getFileName(os.Args[2], gemaHelp))
	outputPath = outputPath + string(filepath.Separator)
	fmt.Println("Output path: ", outputPath)
	// create output directory
	err := os.MkdirAll(filepath.Dir(outputPath), 0700)
	if err != nil {
		panic(err)
	}
	if method != meta.MethodFixed && method != meta.MethodREML {
		fmt.Fprintln(os.Stderr, "Unknown method: ", method)
		fmt.Fprint(os.Stderr, gemaHelp)
		os.Exit(1)
	}
	// build an output command line
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " ", studyDir, " ", outputPath)
	fmt.Fprint(&command, " --method ", method)
	fmt.Fprint(&command, " --maxIterations ", maxIterations)
	fmt.Fprint(&command, " --stepAdjustment ", stepAdjustment)
	fmt.Fprint(&command, " --name ", name)
	fmt.Fprint(&command, " --sfilters ", sfilters)
	if excludeStudies != "" {
		fmt.Fprint(&command, " --excludeStudies ", excludeStudies)
	}
	if plotFlag {
		fmt.Fprint(&command, " --plot")
	}
	if simulate {
		fmt.Fprint(&command, " --simulate")
		fmt.Fprint(&command, " --simStudies ", simStudies)
		fmt.Fprint(&command, " --simGenes ", simGenes)
		fmt.Fprint(&command, " --simSamples ", simSamples)
		fmt.Fprint(&command, " --seed ", seed)
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nrOfThreads ", nrOfThreads)
	}
	// start execution
	log.Println(programMessage())
	log.Println("Executing command:\n", command.String())
	//1. Load the study collection, or simulate one
	var collection *app.StudyCollection
	if simulate {
		collection = app.SimulateStudyCollection(simStudies, simGenes, simSamples, uint32(seed))
	} else {
		collection = app.ParseStudyCollection(name, studyDir, getExcludedStudies(excludeStudies),
			getSampleFilters(sfilters))
	}
	//2. Estimate per-gene effects and synthesize them across studies
	opts := meta.Options{
		Method:         method,
		MaxIterations:  maxIterations,
		StepAdjustment: stepAdjustment,
		Plot:           plotFlag,
	}
	results := meta.SynthesizeAllGenes(collection, opts)
	//3. Drop genes whose random-effects combination did not converge
	kept, droppedGenes := meta.FilterConverged(results)
	if len(droppedGenes) > 0 {
		fmt.Println("Dropped ", len(droppedGenes), " genes for non-convergence: ",
			strings.Join(droppedGenes, ","))
	}
	fmt.Println(len(kept), " genes remain for ranking")
	if len(kept) == 0 {
		log.Panic("No converged gene results to rank")
	}
	meta.WriteResults(kept, fmt.Sprintf("%s%s.results.csv", outputPath, name))
	//4. Rank genes by synthesized significance
	fixedTop, randomTop := meta.TopSurvivalGene(kept)
	fmt.Println("Top survival gene by fixed-effects p-value: ", fixedTop.Gene)
	fmt.Println("Top survival gene by random-effects p-value: ", randomTop.Gene)
	if fixedTop.Gene == randomTop.Gene {
		fmt.Println("The fixed-effects and random-effects rankings agree on the top gene")
	} else {
		fmt.Println("Warning: the fixed-effects and random-effects rankings disagree on the top gene")
	}
	fmt.Println("Leading genes by fixed-effects p-value:")
	sorted := meta.SortByFixedP(kept)
	for i := 0; i < utils.MinInt(len(sorted), 10); i++ {
		meta.PrintGeneResult(sorted[i])
	}
	//5. Rank genes by heterogeneity
	hetTop := meta.TopHeterogeneityGene(kept)
	fmt.Println("Most heterogeneous gene by Q-test p-value: ", hetTop.Gene)
	meta.PrintGeneResult(hetTop)
	//6. Regress the heterogeneous gene's per-study effects on the clinical covariates
	summaries := meta.CovariateSummaries(collection, hetTop.Gene, survival.DefaultMaxIterations)
	assoc := meta.BestCovariateAssociation(summaries)
	fmt.Printf("Best-associated covariate for %s: %s (slope %.4f +/- %.4f, p = %.3e)\n",
		hetTop.Gene, assoc.Covariate, assoc.Slope, assoc.SlopeSE, assoc.P)
	//7. Render the diagnostic plots
	if plotFlag {
		report.PlotQHistogram(kept, fmt.Sprintf("%s%s.qhist.png", outputPath, name))
		survEstimates := survival.EstimateGeneEffects(fixedTop.Gene, collection, survival.DefaultMaxIterations)
		report.PlotForest(fixedTop.Gene, survEstimates, fixedTop.Fixed, fixedTop.Random,
			fmt.Sprintf("%s%s.forest.survival.png", outputPath, name))
		hetEstimates := survival.EstimateGeneEffects(hetTop.Gene, collection, survival.DefaultMaxIterations)
		report.PlotForest(hetTop.Gene, hetEstimates, hetTop.Fixed, hetTop.Random,
			fmt.Sprintf("%s%s.forest.heterogeneity.png", outputPath, name))
		report.PlotCovariateAssociation(hetTop.Gene, summaries, assoc,
			fmt.Sprintf("%s%s.covariate.png", outputPath, name))
	}
	//8. Report the session environment
	report.PrintSessionInfo(programName, programVersion)
}
