package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"murmur/internal/history"
	"murmur/internal/resolver"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxAudioBytes    = 32 << 20
	noSpeech         = "No speech detected"
)

type resolveRequest struct {
	Utterance string `json:"utterance"`
}

type errorResponse struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	RawText   string `json:"rawText,omitempty"`
}

type transcribeResponse struct {
	Text       string               `json:"text"`
	RawText    string               `json:"rawText"`
	Resolution *resolver.Resolution `json:"resolution,omitempty"`
}

type catalogAction struct {
	Name      string   `json:"name"`
	Patterns  []string `json:"patterns"`
	Template  string   `json:"template"`
	Filenames []string `json:"filenames,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", Message: "invalid JSON body"})
		return
	}

	res, err := s.resolve(r.Context(), history.SourceHTTP, req.Utterance)
	if err != nil {
		status, body := resolutionError(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.opts.Transcriber == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{ErrorKind: "unavailable", Message: "transcription is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", Message: "no audio file"})
		return
	}
	defer file.Close()

	var events *SSEWriter
	if wantsEvents(r) {
		events = NewSSEWriter(w)
	}

	text, err := s.opts.Transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		slog.Error("transcription failed", "filename", header.Filename, "error", err)
		body := errorResponse{ErrorKind: "transcription_failure", Message: err.Error()}
		if events != nil {
			events.Send("error", body)
			return
		}
		writeJSON(w, http.StatusBadGateway, body)
		return
	}

	if text == "" {
		body := transcribeResponse{RawText: noSpeech}
		if events != nil {
			events.Send("transcript", body)
			events.Send("done", body)
			return
		}
		writeJSON(w, http.StatusOK, body)
		return
	}
	if events != nil {
		events.Send("transcript", transcribeResponse{RawText: text})
	}

	res, err := s.resolve(r.Context(), history.SourceHTTP, text)
	if err != nil {
		status, body := resolutionError(err)
		body.RawText = text
		if events != nil {
			events.Send("error", body)
			return
		}
		writeJSON(w, status, body)
		return
	}

	body := transcribeResponse{Text: res.Output, RawText: text, Resolution: &res}
	if events != nil {
		events.Send("done", body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListResolutions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	entries, err := s.opts.History.List(r.Context(), limit)
	if err != nil {
		slog.Error("listing resolutions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{ErrorKind: "internal", Message: "listing resolutions failed"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": entries})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.resolver.Catalog()
	actions := make([]catalogAction, 0, len(c.Actions))
	for _, a := range c.Actions {
		ca := catalogAction{Name: a.Name, Patterns: a.Patterns, Template: a.Template}
		if a.HasReferences() {
			ca.Filenames = a.Filenames()
		}
		actions = append(actions, ca)
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// resolutionError maps a Resolve error to an HTTP status and body.
func resolutionError(err error) (int, errorResponse) {
	var rerr *resolver.Error
	if !errors.As(err, &rerr) {
		return http.StatusInternalServerError, errorResponse{ErrorKind: "internal", Message: err.Error()}
	}
	body := errorResponse{ErrorKind: string(rerr.Kind), Message: rerr.Error()}
	switch rerr.Kind {
	case resolver.KindNoMatchingAction, resolver.KindNoMatchingReference:
		return http.StatusUnprocessableEntity, body
	case resolver.KindEmbeddingFailure:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
