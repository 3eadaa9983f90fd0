package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertions.
var (
	_ stt.Provider = (*STTFallback)(nil)
	_ stt.Pinger   = (*STTFallback)(nil)
)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
// Request errors ([stt.IsPermanent]) are always treated as permanent, in
// addition to whatever cfg.Permanent reports.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	extra := cfg.Permanent
	cfg.Permanent = func(err error) bool {
		return stt.IsPermanent(err) || (extra != nil && extra(err))
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the upload against the first healthy backend, moving on to
// the next one when a backend fails.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, audio)
	})
}

// Ping reports the fallback chain as healthy when at least one backend with a
// closed or half-open breaker answers. Backends that cannot be pinged count as
// reachable.
func (f *STTFallback) Ping(ctx context.Context) error {
	var errs []error
	for i := range f.group.Len() {
		name, p, state := f.group.Entry(i)
		if state == StateOpen {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrCircuitOpen))
			continue
		}
		pinger, ok := p.(stt.Pinger)
		if !ok {
			return nil
		}
		err := pinger.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return fmt.Errorf("stt fallback: no healthy backend: %w", errors.Join(errs...))
}

// Backends returns the name and breaker state of every backend in order.
func (f *STTFallback) Backends() []BackendState {
	out := make([]BackendState, 0, f.group.Len())
	for i := range f.group.Len() {
		name, _, state := f.group.Entry(i)
		out = append(out, BackendState{Name: name, State: state})
	}
	return out
}

// BackendState describes one backend of an [STTFallback].
type BackendState struct {
	Name  string
	State State
}
