package parser

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dhamidi/arbor/parser"

type instruments struct {
	parses     metric.Int64Counter
	reused     metric.Int64Counter
	recoveries metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(m metric.Meter) *instruments {
	if m == nil {
		m = noop.NewMeterProvider().Meter(meterName)
	}
	ins := &instruments{}
	var err error
	if ins.parses, err = m.Int64Counter("arbor.parser.parses",
		metric.WithDescription("Number of completed parses")); err != nil {
		ins.parses = noop.Int64Counter{}
	}
	if ins.reused, err = m.Int64Counter("arbor.parser.reused_nodes",
		metric.WithDescription("Number of subtrees reused from a previous tree")); err != nil {
		ins.reused = noop.Int64Counter{}
	}
	if ins.recoveries, err = m.Int64Counter("arbor.parser.recoveries",
		metric.WithDescription("Number of error recoveries")); err != nil {
		ins.recoveries = noop.Int64Counter{}
	}
	if ins.duration, err = m.Float64Histogram("arbor.parser.parse_duration",
		metric.WithDescription("Parse duration"),
		metric.WithUnit("s")); err != nil {
		ins.duration = noop.Float64Histogram{}
	}
	return ins
}

func (ins *instruments) record(ctx context.Context, lang string, incremental bool, stats Stats, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("language", lang),
		attribute.Bool("incremental", incremental),
	)
	ins.parses.Add(ctx, 1, attrs)
	if stats.ReusedNodes > 0 {
		ins.reused.Add(ctx, int64(stats.ReusedNodes), attrs)
	}
	if stats.Recoveries > 0 {
		ins.recoveries.Add(ctx, int64(stats.Recoveries), attrs)
	}
	ins.duration.Record(ctx, elapsed.Seconds(), attrs)
}
