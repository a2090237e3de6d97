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

package report

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"gema/app"
	"gema/meta"
	"gema/survival"
)

// Diagnostic plots of a meta-analysis run, rendered with gonum/plot.

const z95 = 1.959963984540054 //97.5% normal quantile for 95% confidence intervals

// forestRows adapts per-study estimates and the two summary rows to the plotter interfaces
// for points with horizontal error bars. Row 0 is the random-effects summary, row 1 the
// fixed-effects summary, and the studies stack above them.
type forestRows struct {
	betas []float64
	ses   []float64
}

func (f forestRows) Len() int { return len(f.betas) }

func (f forestRows) XY(i int) (float64, float64) {
	return f.betas[i], float64(i)
}

func (f forestRows) XError(i int) (float64, float64) {
	half := z95 * f.ses[i]
	return half, half
}

// PlotForest renders a forest plot for one gene: one row per contributing study with its log
// hazard ratio and 95% confidence interval, plus the fixed-effects and random-effects
// synthesized effects as the bottom rows. The fixed-effects point is overlaid on the
// random-effects forest so the two syntheses can be compared directly.
func PlotForest(gene string, estimates []survival.EffectEstimate, fixed, random meta.Synthesis, file string) {
	p := plot.New()
	p.Title.Text = fmt.Sprint("Forest plot for ", gene)
	p.X.Label.Text = "log hazard ratio"
	rows := forestRows{
		betas: []float64{random.Beta, fixed.Beta},
		ses:   []float64{random.SE, fixed.SE},
	}
	names := []string{"RE summary", "FE summary"}
	for _, est := range estimates {
		rows.betas = append(rows.betas, est.Beta)
		rows.ses = append(rows.ses, est.SE)
		names = append(names, est.Study)
	}
	bars, err := plotter.NewXErrorBars(rows)
	if err != nil {
		panic(err)
	}
	points := make(plotter.XYs, rows.Len())
	for i := range points {
		points[i].X, points[i].Y = rows.XY(i)
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		panic(err)
	}
	scatter.GlyphStyle.Shape = draw.BoxGlyph{}
	zero, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: -0.5},
		{X: 0, Y: float64(rows.Len()) - 0.5},
	})
	if err != nil {
		panic(err)
	}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(zero, bars, scatter)
	p.NominalY(names...)
	if err := p.Save(6*vg.Inch, vg.Length(1+rows.Len())*0.4*vg.Inch, file); err != nil {
		panic(err)
	}
	fmt.Println("Wrote forest plot for ", gene, " to ", file)
}

// PlotQHistogram renders a histogram of the Q-test p-values across all converged genes.
// Genes without a defined Q test (fewer than 2 contributing studies) are skipped.
func PlotQHistogram(results []*meta.GeneResult, file string) {
	values := plotter.Values{}
	for _, r := range results {
		if !math.IsNaN(r.QP) {
			values = append(values, r.QP)
		}
	}
	if len(values) == 0 {
		fmt.Println("No genes with a defined Q test, skipping histogram")
		return
	}
	p := plot.New()
	p.Title.Text = "Heterogeneity p-values"
	p.X.Label.Text = "Cochran's Q p-value"
	p.Y.Label.Text = "number of genes"
	hist, err := plotter.NewHist(values, 20)
	if err != nil {
		panic(err)
	}
	p.Add(hist)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, file); err != nil {
		panic(err)
	}
	fmt.Println("Wrote Q p-value histogram to ", file)
}

// PlotCovariateAssociation renders a scatter plot of the per-study coefficients against the
// best-associated subgroup fraction, with the weighted regression line overlaid.
func PlotCovariateAssociation(gene string, summaries []*app.CovariateSummary, assoc *meta.CovariateAssociation, file string) {
	p := plot.New()
	p.Title.Text = fmt.Sprint("Per-study effect of ", gene, " vs. ", assoc.Covariate)
	p.X.Label.Text = fmt.Sprint("fraction ", assoc.Covariate)
	p.Y.Label.Text = "log hazard ratio"
	points := make(plotter.XYs, len(summaries))
	minX, maxX := math.Inf(1), math.Inf(-1)
	for i, s := range summaries {
		x := s.CovariateFractions()[assoc.Index]
		points[i].X = x
		points[i].Y = s.Beta
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		panic(err)
	}
	fit, err := plotter.NewLine(plotter.XYs{
		{X: minX, Y: assoc.Intercept + assoc.Slope*minX},
		{X: maxX, Y: assoc.Intercept + assoc.Slope*maxX},
	})
	if err != nil {
		panic(err)
	}
	p.Add(scatter, fit)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, file); err != nil {
		panic(err)
	}
	fmt.Println("Wrote covariate association plot to ", file)
}
