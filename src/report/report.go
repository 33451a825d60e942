// Package report renders benchmark results.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"dpcqueue/src/bench"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Write renders a summary and the per level and per source tables.
func Write(w io.Writer, r bench.Result) {
	throughput := 0.0
	if r.Elapsed > 0 {
		throughput = float64(r.Dispatched) / r.Elapsed.Seconds()
	}

	s := table.NewWriter()
	s.SetOutputMirror(w)
	s.SetTitle("DPC Bench")
	s.AppendRows([]table.Row{
		{"Elapsed", r.Elapsed.Round(time.Microsecond).String()},
		{"Enqueued", humanize.Comma(int64(r.Enqueued))},
		{"Failed", humanize.Comma(int64(r.Failed))},
		{"Dispatched", humanize.Comma(int64(r.Dispatched))},
		{"Throughput", humanize.SIWithDigits(throughput, 2, "calls/s")},
		{"Dispatch passes", humanize.Comma(int64(r.Passes))},
		{"Pool slots", humanize.Comma(int64(r.Slots))},
		{"Max queued", humanize.Comma(int64(r.MaxQueued))},
		{"Fairness", fmt.Sprintf("%.4f", r.Fairness)},
	})
	s.Render()

	l := table.NewWriter()
	l.SetOutputMirror(w)
	l.SetTitle("Levels")
	l.AppendHeader(table.Row{"Level", "Dispatched", "Mean latency", "Max latency"})
	for _, level := range r.Levels {
		l.AppendRow(table.Row{
			level.Level,
			humanize.Comma(int64(level.Dispatched)),
			level.MeanLatency.String(),
			level.MaxLatency.String(),
		})
	}
	l.AppendFooter(table.Row{"Total", humanize.Comma(int64(r.Dispatched)), "", ""})
	l.Render()

	src := table.NewWriter()
	src.SetOutputMirror(w)
	src.SetTitle("Sources")
	src.AppendHeader(table.Row{"#", "Level", "Enqueued", "Failed", "Dispatched"})
	for i, source := range r.Sources {
		src.AppendRow(table.Row{
			i,
			source.Level,
			humanize.Comma(int64(source.Enqueued)),
			humanize.Comma(int64(source.Failed)),
			humanize.Comma(int64(source.Dispatched)),
		})
	}
	src.Render()
}

// WriteCSV writes one row per level.
func WriteCSV(w io.Writer, r bench.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"level", "dispatched", "mean_latency_ns", "max_latency_ns"}); err != nil {
		return err
	}
	for _, level := range r.Levels {
		rec := []string{
			strconv.Itoa(int(level.Level)),
			strconv.Itoa(level.Dispatched),
			strconv.FormatInt(int64(level.MeanLatency), 10),
			strconv.FormatInt(int64(level.MaxLatency), 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
