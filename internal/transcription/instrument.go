package transcription

import (
	"context"
	"time"

	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// instrumented records per-backend latency, request and error counts.
type instrumented struct {
	name    string
	next    stt.Provider
	metrics *observe.Metrics
}

var (
	_ stt.Provider = (*instrumented)(nil)
	_ stt.Pinger   = (*instrumented)(nil)
)

// Instrument wraps p so that every call is recorded under name. A nil
// metrics value uses [observe.DefaultMetrics].
func Instrument(name string, p stt.Provider, m *observe.Metrics) stt.Provider {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &instrumented{name: name, next: p, metrics: m}
}

func (i *instrumented) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	start := time.Now()
	tr, err := i.next.Transcribe(ctx, audio)
	status := "ok"
	if err != nil {
		status = "error"
		i.metrics.RecordProviderError(ctx, i.name, ErrorKind(err))
	}
	i.metrics.RecordTranscription(ctx, i.name, status, time.Since(start))
	return tr, err
}

// Ping forwards to the wrapped provider when it supports pinging.
func (i *instrumented) Ping(ctx context.Context) error {
	if p, ok := i.next.(stt.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// bounded limits every call to a fixed duration.
type bounded struct {
	stt.Provider
	timeout time.Duration
}

// Bounded wraps p so that each Transcribe call is cancelled after d. A
// non-positive d returns p unchanged.
func Bounded(p stt.Provider, d time.Duration) stt.Provider {
	if d <= 0 {
		return p
	}
	return &bounded{Provider: p, timeout: d}
}

func (b *bounded) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.Provider.Transcribe(ctx, audio)
}

// Ping forwards to the wrapped provider when it supports pinging.
func (b *bounded) Ping(ctx context.Context) error {
	if p, ok := b.Provider.(stt.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
