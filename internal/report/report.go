// Package report renders analyses as Markdown, HTML or CSV for people and
// plotting scripts.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"palin/adapters/stats/ttest"
	"palin/domain/kernel"
	"palin/internal/analysis"
)

// Alpha marks significant results in reports
const Alpha = 0.05

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func formatP(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if f < 1e-4 {
		return strconv.FormatFloat(f, 'e', 2, 64)
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// Markdown renders the run header, one kernel table per trial group and the
// three result sets
func Markdown(a *analysis.Analysis) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Classification image analysis\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", a.RunID)
	fmt.Fprintf(&b, "- Dataset: `%s` (%d observations)\n", a.Fingerprint.Short(), a.Observations)
	k := a.Config.Kernel
	fmt.Fprintf(&b, "- Kernel: %s over %s, grouped by %s, normalized: %t\n",
		k.ValueField, k.DimensionField, strings.Join(k.TrialFields, ", "), k.Normalize)
	fmt.Fprintf(&b, "- Tested field: %s, reference mean %s\n\n", a.Config.Test.ValueField, formatFloat(a.Config.ReferenceMean))

	writeKernels(&b, a.Kernels)

	if len(a.OneSample) > 0 {
		labels := make([]string, 0, len(a.OneSample))
		for l := range a.OneSample {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			writeResults(&b, fmt.Sprintf("One-sample test: %s", l), a.OneSample[l])
		}
	}
	writeResults(&b, "Two-sample test (Welch)", a.TwoSample)
	writeResults(&b, "Paired test", a.Paired)
	return b.Bytes()
}

func writeKernels(b *bytes.Buffer, t *kernel.Table) {
	if t == nil {
		return
	}
	fmt.Fprintf(b, "## Kernels\n\n")
	if t.Len() == 0 {
		fmt.Fprintf(b, "No trial group has both responses at any %s.\n\n", t.DimensionField)
		return
	}
	for _, g := range t.Groups() {
		fmt.Fprintf(b, "### %s\n\n", g)
		if t.Normalized {
			fmt.Fprintf(b, "| %s | kernel_value | norm_value | n |\n|---|---|---|---|\n", t.DimensionField)
		} else {
			fmt.Fprintf(b, "| %s | kernel_value | n |\n|---|---|---|\n", t.DimensionField)
		}
		for _, r := range t.Rows {
			if r.Trial.ID() != g.ID() {
				continue
			}
			if t.Normalized {
				fmt.Fprintf(b, "| %s | %s | %s | %d |\n", r.Dimension, formatFloat(r.KernelValue), formatFloat(r.NormValue), r.Count)
			} else {
				fmt.Fprintf(b, "| %s | %s | %d |\n", r.Dimension, formatFloat(r.KernelValue), r.Count)
			}
		}
		b.WriteString("\n")
	}
	for _, g := range t.ZeroEnergyGroups() {
		fmt.Fprintf(b, "> %s has zero kernel energy; its norm values are NaN.\n\n", g)
	}
}

func writeResults(b *bytes.Buffer, title string, set *analysis.ResultSet) {
	if set == nil {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(set.Dimensions) == 0 {
		b.WriteString("No dimensions.\n\n")
		return
	}
	b.WriteString("| dimension | t | df | p | q | n | note |\n|---|---|---|---|---|---|---|\n")
	for _, d := range set.Dimensions {
		r, _ := set.Get(d)
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			d, formatFloat(r.Statistic), formatFloat(r.DF), formatP(r.PValue), formatP(r.QValue), sampleSizes(r), note(r))
	}
	b.WriteString("\n")
}

func sampleSizes(r ttest.Result) string {
	if r.N2 > 0 {
		return fmt.Sprintf("%d/%d", r.N1, r.N2)
	}
	return strconv.Itoa(r.N1)
}

func note(r ttest.Result) string {
	switch {
	case r.Reason != ttest.ReasonNone:
		return strings.ReplaceAll(string(r.Reason), "_", " ")
	case r.Significant(Alpha):
		return "*"
	}
	return ""
}

// HTML converts a Markdown report into a complete HTML page
func HTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(md, p, renderer)
}

// WriteKernelsCSV writes a kernel table with one column per trial field,
// then the dimension and value columns. Non-finite values are written as
// NaN/+Inf/-Inf.
func WriteKernelsCSV(w io.Writer, t *kernel.Table) error {
	cw := csv.NewWriter(w)
	header := append([]string(nil), t.TrialFields...)
	header = append(header, t.DimensionField, kernel.FieldKernelValue)
	if t.Normalized {
		header = append(header, kernel.FieldNormValue)
	}
	if t.Form == kernel.FormDifference {
		header = append(header, "positive_mean", "negative_mean")
	}
	header = append(header, "n")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range t.Rows {
		record := make([]string, 0, len(header))
		for _, v := range r.Trial {
			record = append(record, v.String())
		}
		record = append(record, r.Dimension.String(), formatFloat(r.KernelValue))
		if t.Normalized {
			record = append(record, formatFloat(r.NormValue))
		}
		if t.Form == kernel.FormDifference {
			record = append(record, formatFloat(r.PositiveMean), formatFloat(r.NegativeMean))
		}
		record = append(record, strconv.Itoa(r.Count))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultsCSV writes result sets as dimension,label,t,df,p,q,n1,n2,reason
// rows. Sets are written in the order of labels.
func WriteResultsCSV(w io.Writer, labels []string, sets map[string]*analysis.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"label", "dimension", "statistic", "df", "p_value", "q_value", "n1", "n2", "reason"}); err != nil {
		return err
	}
	for _, l := range labels {
		set := sets[l]
		if set == nil {
			continue
		}
		for _, d := range set.Dimensions {
			r, _ := set.Get(d)
			err := cw.Write([]string{
				l, d.String(), formatFloat(r.Statistic), formatFloat(r.DF), formatFloat(r.PValue), formatFloat(r.QValue),
				strconv.Itoa(r.N1), strconv.Itoa(r.N2), string(r.Reason),
			})
			if err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
