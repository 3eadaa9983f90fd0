package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/framelens/internal/observe"
	"github.com/MrWong99/framelens/internal/resilience"
	"github.com/MrWong99/framelens/internal/transcription"
	"github.com/MrWong99/framelens/pkg/highlight"
	"github.com/MrWong99/framelens/pkg/provider/stt"
	"github.com/MrWong99/framelens/pkg/render"
)

// errBadRequest marks malformed input that is not an stt request error.
var errBadRequest = errors.New("bad request")

type highlightRequest struct {
	Text      string `json:"text"`
	Threshold *int   `json:"threshold,omitempty"`
}

type highlightResponse struct {
	Text      string           `json:"text"`
	Spans     []highlight.Span `json:"spans"`
	HTML      string           `json:"html"`
	Threshold int              `json:"threshold"`
	Stats     highlight.Stats  `json:"stats"`
}

type transcribeResponse struct {
	Transcript stt.Transcript `json:"transcript"`
	highlightResponse
}

type legendResponse struct {
	Categories []render.LegendEntry `json:"categories"`
	HTML       string               `json:"html"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			s.writeError(w, r, fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err))
			return
		}
	}
	snap := s.source.Snapshot()
	threshold := snap.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	writeJSON(w, http.StatusOK, s.highlight(r, snap, req.Text, threshold))
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, name, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap := s.source.Snapshot()
	threshold := snap.Threshold
	if v := r.FormValue("threshold"); v != "" {
		threshold, err = strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: threshold %q is not an integer", errBadRequest, v))
			return
		}
	}
	format := strings.ToLower(r.FormValue("format"))
	switch format {
	case "", "json", "txt", "html":
	default:
		s.writeError(w, r, fmt.Errorf("%w: format %q is not one of json, txt, html", errBadRequest, format))
		return
	}

	if s.transcriber == nil {
		s.writeError(w, r, fmt.Errorf("%w: transcription is disabled", stt.ErrModelUnavailable))
		return
	}
	tr, err := s.transcriber.Transcribe(r.Context(), transcription.Request{
		Data:     file,
		Filename: name,
		Language: r.FormValue("language"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	hl := s.highlight(r, snap, tr.Text, threshold)
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "transcript"
	}

	switch format {
	case "txt":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, base+".txt"))
		_, _ = io.WriteString(w, render.Text(resultOf(hl)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := render.Page(w, base, resultOf(hl), snap.Highlighter.Taxonomy()); err != nil {
			observe.Logger(r.Context()).Error("render page", "err", err)
		}
	default:
		writeJSON(w, http.StatusOK, transcribeResponse{Transcript: tr, highlightResponse: hl})
	}
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	tax := s.source.Snapshot().Highlighter.Taxonomy()
	legendHTML, err := render.LegendHTML(tax)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, legendResponse{Categories: render.Legend(tax), HTML: legendHTML})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stt.Languages())
}

// highlight runs the highlighter and records its metrics.
func (s *Server) highlight(r *http.Request, snap *Snapshot, text string, threshold int) highlightResponse {
	start := time.Now()
	res := snap.Highlighter.Highlight(text, threshold)
	s.metrics.RecordHighlight(r.Context(), time.Since(start), statsOf(res))

	return highlightResponse{
		Text:      res.Text,
		Spans:     res.Spans,
		HTML:      render.HTML(res, snap.Highlighter.Taxonomy()),
		Threshold: res.Threshold,
		Stats:     res.Stats,
	}
}

func resultOf(h highlightResponse) highlight.Result {
	return highlight.Result{Text: h.Text, Spans: h.Spans, Threshold: h.Threshold, Stats: h.Stats}
}

func statsOf(res highlight.Result) observe.HighlightStats {
	st := observe.HighlightStats{
		ExactCandidates: res.Stats.Exact,
		FuzzyCandidates: res.Stats.Fuzzy,
		Spans:           make(map[observe.SpanKey]int),
	}
	for _, sp := range res.Spans {
		st.Spans[observe.SpanKey{Kind: string(sp.Kind), Category: sp.Category}]++
	}
	return st
}

// readUpload returns the bytes and filename of the "file" form field.
func readUpload(r *http.Request) ([]byte, string, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: multipart field \"file\" is required: %w", errBadRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("server: read upload: %w", err)
	}
	return data, hdr.Filename, nil
}

// statusOf maps an error to an HTTP status code.
func statusOf(err error) int {
	var (
		tooLarge *http.MaxBytesError
		te       *stt.TranscriptionError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), stt.IsPermanent(err):
		return http.StatusBadRequest
	case errors.Is(err, stt.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.As(err, &te), errors.Is(err, resilience.ErrAllFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
