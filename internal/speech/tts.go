// ABOUTME: Text-to-speech synthesis through the OpenAI audio/speech endpoint
// ABOUTME: Turns one assistant text chunk into one encoded audio clip

package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// maxAudioBytes caps one synthesized clip.
const maxAudioBytes = 16 << 20

// SynthesizerConfig configures a Synthesizer.
type SynthesizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string // defaults to "gpt-4o-mini-tts"
	Voice   string // defaults to "alloy"
	Format  string // defaults to "mp3"
	Timeout time.Duration
}

// Synthesizer converts text to audio.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
	format string
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer. It returns ErrNotConfigured without an API key.
func NewSynthesizer(cfg SynthesizerConfig, logger *slog.Logger) (*Synthesizer, error) {
	client, err := newOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client: client,
		model:  cfg.Model,
		voice:  cfg.Voice,
		format: cfg.Format,
		logger: logger.With("component", "tts"),
	}, nil
}

// Format is the audio encoding Synthesize produces.
func (s *Synthesizer) Format() string {
	return s.format
}

// Synthesize returns encoded audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}

	start := time.Now()
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.format),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}

	s.logger.Debug("synthesized speech", "chars", len(text), "bytes", len(audio), "took", time.Since(start))
	return audio, nil
}
