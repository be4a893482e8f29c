// ABOUTME: Supabase REST client that records meals in the shared meals table
// ABOUTME: Backs the log_meal tool; the frontend reads the same table after a data refresh

package meals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Meal types accepted by the meals table.
const (
	TypeBreakfast = "breakfast"
	TypeLunch     = "lunch"
	TypeDinner    = "dinner"
	TypeSnack     = "snack"
)

var (
	ErrNotConfigured = errors.New("meal logging not configured")
	ErrInvalidMeal   = errors.New("invalid meal")
)

// Meal is one row of the meals table.
type Meal struct {
	ID        string     `json:"id,omitempty"`
	UserName  string     `json:"user_name"`
	Calories  int        `json:"calories"`
	MealName  *string    `json:"meal_name,omitempty"`
	MealType  *string    `json:"meal_type,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	EatenAt   *time.Time `json:"eaten_at,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Validate checks the fields the table constrains.
func (m *Meal) Validate() error {
	if strings.TrimSpace(m.UserName) == "" {
		return fmt.Errorf("%w: user_name is required", ErrInvalidMeal)
	}
	if m.Calories <= 0 {
		return fmt.Errorf("%w: calories must be positive", ErrInvalidMeal)
	}
	if m.MealType != nil {
		switch *m.MealType {
		case TypeBreakfast, TypeLunch, TypeDinner, TypeSnack:
		default:
			return fmt.Errorf("%w: unknown meal_type %q", ErrInvalidMeal, *m.MealType)
		}
	}
	return nil
}

// Config configures a Client.
type Config struct {
	URL     string // Supabase project URL
	APIKey  string
	Timeout time.Duration
}

// Client inserts meals through the Supabase REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client. It returns ErrNotConfigured when URL or APIKey is empty.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With("component", "meals"),
	}, nil
}

// Log inserts m and returns the stored row.
func (c *Client) Log(ctx context.Context, m *Meal) (*Meal, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding meal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/meals", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inserting meal: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("inserting meal: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var rows []Meal
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("inserting meal: empty representation")
	}

	c.logger.Info("meal logged", "user", rows[0].UserName, "calories", rows[0].Calories)
	return &rows[0], nil
}
