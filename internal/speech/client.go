// ABOUTME: Shared OpenAI client construction for the speech side services
// ABOUTME: Applies the API key, base URL, timeout, and retry budget to openai-go
package speech

import (
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the OpenAI API root. The client appends /v1/.
const DefaultBaseURL = "https://api.openai.com"

// maxRetries bounds retries of one upstream call; a turn waits on synthesis.
const maxRetries = 1

// ErrNotConfigured is returned when a speech service has no API key.
var ErrNotConfigured = errors.New("speech service not configured")

func newOpenAIClient(baseURL, apiKey string, timeout time.Duration) (*openai.Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/v1/"),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(maxRetries),
	)
	return &client, nil
}
