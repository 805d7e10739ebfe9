// Package transcribe converts recorded speech to text.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"murmur/internal/embedding"
)

// Transcriber turns audio into text. An empty result means no speech was
// detected and is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// OpenAI implements Transcriber with the OpenAI-compatible audio
// transcription endpoint.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAI(baseURL, apiKey, model, language string, maxRetries int) *OpenAI {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts,
		option.WithMaxRetries(0),
		option.WithHTTPClient(embedding.NewHTTPClient(maxRetries)),
	)
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, language: language}
}

func (o *OpenAI) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, ""),
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
