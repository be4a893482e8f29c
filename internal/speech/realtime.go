// ABOUTME: Mints ephemeral client secrets for OpenAI realtime transcription sessions
// ABOUTME: The browser uses the secret to stream microphone audio straight to OpenAI

package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
)

// MinterConfig configures a Minter.
type MinterConfig struct {
	APIKey  string
	BaseURL string
	Model   string // transcription model, defaults to "gpt-4o-transcribe"
	Timeout time.Duration
}

// Minter creates realtime transcription sessions.
type Minter struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// Token is an ephemeral realtime client secret.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// NewMinter creates a Minter. It returns ErrNotConfigured without an API key.
func NewMinter(cfg MinterConfig, logger *slog.Logger) (*Minter, error) {
	client, err := newOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-transcribe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Minter{
		client: client,
		model:  cfg.Model,
		logger: logger.With("component", "realtime"),
	}, nil
}

type transcriptionSessionRequest struct {
	InputAudioFormat        string `json:"input_audio_format"`
	InputAudioTranscription struct {
		Model string `json:"model"`
	} `json:"input_audio_transcription"`
	TurnDetection struct {
		Type string `json:"type"`
	} `json:"turn_detection"`
}

type transcriptionSessionResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// Mint creates a transcription session and returns its client secret.
func (m *Minter) Mint(ctx context.Context) (*Token, error) {
	var body transcriptionSessionRequest
	body.InputAudioFormat = "pcm16"
	body.InputAudioTranscription.Model = m.model
	body.TurnDetection.Type = "server_vad"

	var resp transcriptionSessionResponse
	if err := m.client.Post(ctx, "realtime/transcription_sessions", body, &resp); err != nil {
		return nil, fmt.Errorf("creating transcription session: %w", err)
	}
	if resp.ClientSecret.Value == "" {
		return nil, errors.New("transcription session has no client secret")
	}

	tok := &Token{Value: resp.ClientSecret.Value}
	if resp.ClientSecret.ExpiresAt > 0 {
		tok.ExpiresAt = time.Unix(resp.ClientSecret.ExpiresAt, 0)
	}
	m.logger.Debug("minted realtime token", "expires_at", tok.ExpiresAt)
	return tok, nil
}
