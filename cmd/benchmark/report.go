package main

import (
	"io"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/quicktemplate"
)

// writeReport renders results as a markdown table.
func writeReport(w io.Writer, title string, results []result) {
	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)
	streamReport(qw, title, results)
}

func streamReport(qw *quicktemplate.Writer, title string, results []result) {
	n := qw.N()
	n.S("# ")
	n.S(title)
	n.S("\n\n")
	n.S("Generated ")
	n.S(time.Now().Format(time.RFC3339))
	n.S(" on ")
	n.S(runtime.GOOS)
	n.S("/")
	n.S(runtime.GOARCH)
	n.S(" with ")
	n.S(runtime.Version())
	n.S(".\n\n")

	n.S("| benchmark | samples | avg | min | p75 | p99 | max |\n")
	n.S("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, r := range results {
		n.S("| ")
		n.S(r.name)
		n.S(" | ")
		n.S(humanize.Comma(int64(r.calc.Samples)))
		for _, d := range []time.Duration{
			r.calc.Time.Avg,
			r.calc.Time.Min,
			r.calc.Time.P75,
			r.calc.Time.P99,
			r.calc.Time.Max,
		} {
			n.S(" | ")
			n.S(d.String())
		}
		n.S(" |\n")
	}
}
