package parser

import (
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel/metric"

	"github.com/dhamidi/arbor/syntax"
)

// DefaultMaxVersions is the number of stack versions kept alive when no
// WithMaxVersions option is given.
const DefaultMaxVersions = 16

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for fork, merge, recovery and reuse
// events. They are logged at debug level.
func WithLogger(log commonlog.Logger) Option {
	return func(p *Parser) {
		p.log = log
	}
}

// WithMeter records parse metrics with m.
func WithMeter(m metric.Meter) Option {
	return func(p *Parser) {
		p.meter = m
	}
}

// WithCacheSize sets the capacity of the subtree intern cache.
func WithCacheSize(n int) Option {
	return func(p *Parser) {
		p.cache = syntax.NewCache(n)
	}
}

// WithCache shares an intern cache between parsers.
func WithCache(c *syntax.Cache) Option {
	return func(p *Parser) {
		p.cache = c
	}
}

// WithMaxVersions caps the number of stack versions followed at once.
func WithMaxVersions(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxVersions = n
		}
	}
}

// WithTimeout aborts parses that run longer than d.
func WithTimeout(d time.Duration) Option {
	return func(p *Parser) {
		p.timeout = d
	}
}

// WithCancelFlag aborts a parse as soon as flag is set.
func WithCancelFlag(flag *atomic.Bool) Option {
	return func(p *Parser) {
		p.cancelFlag = flag
	}
}
