package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	path     string
	model    string
	language string
	filename string
	body     string
}

func fakeTranscriptions(t *testing.T, status int, reply string, got *upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got.model = r.FormValue("model")
		got.language = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		got.filename = hdr.Filename
		got.body = string(data)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Transcribe(t *testing.T) {
	var got upload
	srv := fakeTranscriptions(t, http.StatusOK, `{"text":"  print photo one\n"}`, &got)

	tr := NewOpenAI(srv.URL, "k", "whisper-1", "en", 0)
	text, err := tr.Transcribe(context.Background(), "clip.webm", strings.NewReader("RIFFdata"))
	require.NoError(t, err)

	assert.Equal(t, "print photo one", text)
	assert.Equal(t, "/audio/transcriptions", got.path)
	assert.Equal(t, "whisper-1", got.model)
	assert.Equal(t, "en", got.language)
	assert.Equal(t, "clip.webm", got.filename)
	assert.Equal(t, "RIFFdata", got.body)
}

func TestOpenAI_EmptyTranscript(t *testing.T) {
	var got upload
	srv := fakeTranscriptions(t, http.StatusOK, `{"text":""}`, &got)

	text, err := NewOpenAI(srv.URL, "k", "whisper-1", "", 0).Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, got.language)
}

func TestOpenAI_UpstreamError(t *testing.T) {
	var got upload
	srv := fakeTranscriptions(t, http.StatusBadRequest, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`, &got)

	_, err := NewOpenAI(srv.URL, "k", "whisper-1", "", 0).Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai transcription")
}
