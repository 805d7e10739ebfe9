package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/catalog"
	"murmur/internal/db"
	"murmur/internal/embedding/embeddingtest"
	"murmur/internal/history"
	"murmur/internal/resolver"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	io.Copy(io.Discard, audio)
	return f.text, f.err
}

func newResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(context.Background(), catalog.Default(), embeddingtest.DefaultCatalog())
	require.NoError(t, err)
	return r
}

func newHistory(t *testing.T) *history.Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate())
	return history.NewStore(d)
}

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.History == nil {
		opts.History = newHistory(t)
	}
	return NewServer(newResolver(t), opts)
}

func do(t *testing.T, h http.Handler, req *http.Request) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec.Code, body
}

func resolveRequestFor(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(body))
}

func TestHandleResolve(t *testing.T) {
	h := newServer(t, Options{}).Handler()

	tests := map[string]struct {
		body       string
		wantStatus int
		want       map[string]any
	}{
		"print-document": {
			body:       `{"utterance":"print photo one"}`,
			wantStatus: http.StatusOK,
			want:       map[string]any{"action": "print", "output": "Print Photo_1.png", "filename": "Photo_1.png"},
		},
		"no-references": {
			body:       `{"utterance":"please scan this"}`,
			wantStatus: http.StatusOK,
			want:       map[string]any{"action": "scan", "output": "Scan", "confidence": 1.0},
		},
		"no-matching-action": {
			body:       `{"utterance":"banana smoothie recipes"}`,
			wantStatus: http.StatusUnprocessableEntity,
			want:       map[string]any{"error_kind": "no_matching_action", "message": "no matching action found"},
		},
		"no-matching-reference": {
			body:       `{"utterance":"print"}`,
			wantStatus: http.StatusUnprocessableEntity,
			want:       map[string]any{"error_kind": "no_matching_reference", "message": "no file matched for action: print"},
		},
		"bad-json": {
			body:       `{"utterance":`,
			wantStatus: http.StatusBadRequest,
			want:       map[string]any{"error_kind": "bad_request"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			status, body := do(t, h, resolveRequestFor(tt.body))
			assert.Equal(t, tt.wantStatus, status)
			for k, v := range tt.want {
				assert.Equal(t, v, body[k], k)
			}
		})
	}
}

func TestHandleResolve_OmitsFilenameWithoutReferences(t *testing.T) {
	_, body := do(t, newServer(t, Options{}).Handler(), resolveRequestFor(`{"utterance":"copy"}`))
	assert.NotContains(t, body, "filename")
}

func TestHandleResolve_ServerErrors(t *testing.T) {
	ctx := context.Background()
	lex := embeddingtest.DefaultCatalog()

	broken := false
	flaky := embeddingtest.Func(func(ctx context.Context, texts []string) ([][]float32, error) {
		if broken {
			return nil, errors.New("connection refused")
		}
		return lex.Embed(ctx, texts)
	})
	r, err := resolver.New(ctx, catalog.Default(), flaky)
	require.NoError(t, err)
	broken = true

	status, body := do(t, NewServer(r, Options{}).Handler(), resolveRequestFor(`{"utterance":"print photo one"}`))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "embedding_failure", body["error_kind"])

	mismatched := &catalog.Catalog{Actions: []catalog.Action{{Name: "copy", Patterns: []string{"copy"}, Template: "Copy {file_name}"}}}
	r, err = resolver.New(ctx, mismatched, lex)
	require.NoError(t, err)

	status, body = do(t, NewServer(r, Options{}).Handler(), resolveRequestFor(`{"utterance":"copy"}`))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "template_mismatch", body["error_kind"])
}

func TestHandleResolve_RequestTimeout(t *testing.T) {
	ctx := context.Background()
	lex := embeddingtest.DefaultCatalog()
	slow, err := resolver.New(ctx, catalog.Default(), embeddingtest.Func(func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return lex.Embed(ctx, texts)
	}))
	require.NoError(t, err)

	status, body := do(t, NewServer(slow, Options{RequestTimeout: 20 * time.Millisecond}).Handler(), resolveRequestFor(`{"utterance":"print photo one"}`))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "embedding_failure", body["error_kind"])
	assert.Contains(t, body["message"], "deadline exceeded")
}

func audioRequest(t *testing.T, field string, accept string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "clip.webm")
	require.NoError(t, err)
	fw.Write([]byte("audio bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req
}

func TestHandleTranscribe(t *testing.T) {
	tests := map[string]struct {
		transcriber fakeTranscriber
		field       string
		wantStatus  int
		want        map[string]any
	}{
		"resolves-transcript": {
			transcriber: fakeTranscriber{text: "print photo one"},
			field:       "audio",
			wantStatus:  http.StatusOK,
			want:        map[string]any{"text": "Print Photo_1.png", "rawText": "print photo one"},
		},
		"no-speech": {
			transcriber: fakeTranscriber{},
			field:       "audio",
			wantStatus:  http.StatusOK,
			want:        map[string]any{"text": "", "rawText": "No speech detected"},
		},
		"missing-file": {
			transcriber: fakeTranscriber{text: "scan"},
			field:       "sound",
			wantStatus:  http.StatusBadRequest,
			want:        map[string]any{"error_kind": "bad_request", "message": "no audio file"},
		},
		"transcription-failure": {
			transcriber: fakeTranscriber{err: errors.New("upstream 500")},
			field:       "audio",
			wantStatus:  http.StatusBadGateway,
			want:        map[string]any{"error_kind": "transcription_failure"},
		},
		"resolution-failure": {
			transcriber: fakeTranscriber{text: "print"},
			field:       "audio",
			wantStatus:  http.StatusUnprocessableEntity,
			want:        map[string]any{"error_kind": "no_matching_reference", "rawText": "print"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newServer(t, Options{Transcriber: tt.transcriber}).Handler()
			status, body := do(t, h, audioRequest(t, tt.field, ""))
			assert.Equal(t, tt.wantStatus, status)
			for k, v := range tt.want {
				assert.Equal(t, v, body[k], k)
			}
		})
	}
}

func TestHandleTranscribe_ResolutionBody(t *testing.T) {
	h := newServer(t, Options{Transcriber: fakeTranscriber{text: "print photo one"}}).Handler()
	_, body := do(t, h, audioRequest(t, "audio", ""))

	res, ok := body["resolution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "print", res["action"])
	assert.Equal(t, "Photo_1.png", res["filename"])
}

func TestHandleTranscribe_Unconfigured(t *testing.T) {
	status, _ := do(t, newServer(t, Options{}).Handler(), audioRequest(t, "audio", ""))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHandleTranscribe_EventStream(t *testing.T) {
	h := newServer(t, Options{Transcriber: fakeTranscriber{text: "please scan this"}}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, audioRequest(t, "audio", "text/event-stream"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	out := rec.Body.String()
	transcript := strings.Index(out, "event: transcript\n")
	done := strings.Index(out, "event: done\n")
	require.GreaterOrEqual(t, transcript, 0)
	require.Greater(t, done, transcript)
	assert.Contains(t, out, `"rawText":"please scan this"`)
	assert.Contains(t, out, `"text":"Scan"`)
}

func TestHandleListResolutions(t *testing.T) {
	s := newServer(t, Options{})
	h := s.Handler()

	for _, u := range []string{"print photo one", "print", "please scan this"} {
		do(t, h, resolveRequestFor(`{"utterance":"`+u+`"}`))
	}

	status, body := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/resolutions", nil))
	require.Equal(t, http.StatusOK, status)
	entries := body["resolutions"].([]any)
	require.Len(t, entries, 3)
	newest := entries[0].(map[string]any)
	assert.Equal(t, "please scan this", newest["utterance"])
	assert.Equal(t, "http", newest["source"])
	failed := entries[1].(map[string]any)
	assert.Equal(t, "no_matching_reference", failed["error_kind"])

	_, body = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/resolutions?limit=1", nil))
	assert.Len(t, body["resolutions"], 1)

	status, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/resolutions?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandleListResolutions_NoHistory(t *testing.T) {
	s := NewServer(newResolver(t), Options{})
	status, body := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/v1/resolutions", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["resolutions"])
}

func TestHandleCatalog(t *testing.T) {
	status, body := do(t, newServer(t, Options{}).Handler(), httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
	require.Equal(t, http.StatusOK, status)

	actions := body["actions"].([]any)
	require.Len(t, actions, 4)
	first := actions[0].(map[string]any)
	assert.Equal(t, "print", first["name"])
	assert.Equal(t, "Print {file_name}", first["template"])
	assert.Len(t, first["filenames"], 6)
	assert.NotContains(t, actions[2].(map[string]any), "filenames")
}

func TestHealthzAndCORS(t *testing.T) {
	h := newServer(t, Options{AllowedOrigins: []string{"https://app.example"}}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/v1/resolve", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocket(t *testing.T) {
	srv := httptest.NewServer(newServer(t, Options{}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("upload the contract pdf to the cloud")))
	var ok map[string]any
	require.NoError(t, conn.ReadJSON(&ok))
	assert.Equal(t, "publish", ok["action"])
	assert.Equal(t, "Publish Contract.pdf to cloud", ok["output"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("banana")))
	var failed map[string]any
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Equal(t, "no_matching_action", failed["error_kind"])
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv := httptest.NewServer(newServer(t, Options{AllowedOrigins: []string{"https://app.example"}}).Handler())
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
