package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/certen/ton-relay/pkg/evmscan"
	"github.com/certen/ton-relay/pkg/metrics"
)

// metricsPollInterval bounds how often gauges derived from a store scan
// (pending confirmations) are refreshed; these are cheap enough that a
// fixed interval is simpler than threading a config knob through for it.
const metricsPollInterval = 15 * time.Second

func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = time.Second
	}
	return time.NewTicker(d)
}

// teeScanner sits between an evmscan.Scanner and confirm.RunChain: it is
// the only reader of the scanner's real event channel, incrementing
// relay_evm_events_scanned_total for each well-formed event before
// forwarding everything (events and errors alike) onto its own channel.
// Needed because evmscan.Scanner.Events() is a plain channel with a single
// intended consumer; this lets the metrics reporting and the confirmation
// pipeline both observe the stream without racing for its items.
type teeScanner struct {
	*evmscan.Scanner
	out chan evmscan.EventOrError
}

func newTeeScanner(ctx context.Context, s *evmscan.Scanner, m *metrics.Registry, chainID uint64) *teeScanner {
	t := &teeScanner{Scanner: s, out: make(chan evmscan.EventOrError, 256)}
	go t.forward(ctx, m, chainID)
	return t
}

func (t *teeScanner) forward(ctx context.Context, m *metrics.Registry, chainID uint64) {
	defer close(t.out)
	chainLabel := strconv.FormatUint(chainID, 10)
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-t.Scanner.Events():
			if !ok {
				return
			}
			if item.Err == nil && m != nil {
				m.EventsScanned.WithLabelValues(chainLabel).Inc()
			}
			select {
			case t.out <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events shadows the embedded Scanner's method so confirm.RunChain reads
// from the tee's forwarded channel instead of the real one.
func (t *teeScanner) Events() <-chan evmscan.EventOrError {
	return t.out
}
