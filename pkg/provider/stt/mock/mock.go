// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to script transcription results and inspect which uploads were
// delivered.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "we must act"}}
//	tr, _ := p.Transcribe(ctx, stt.Audio{Data: data, Filename: "clip.mp3"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/framelens/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the upload passed to Transcribe.
	Audio stt.Audio
}

// Provider is a mock implementation of stt.Provider and stt.Pinger.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// PingErr is returned by Ping.
	PingErr error

	// TranscribeFunc, if set, overrides Result and Err.
	TranscribeFunc func(ctx context.Context, audio stt.Audio) (stt.Transcript, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: audio})
	fn, res, err := p.TranscribeFunc, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return res, nil
}

// Ping returns PingErr.
func (p *Provider) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PingErr
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Pinger   = (*Provider)(nil)
)
