// ABOUTME: Runtime backed by the Claude CLI in --print stream-json mode, one process per query
// ABOUTME: Resumes sessions with --resume and exposes the tool bridge through --mcp-config

package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ClaudeConfig configures the CLI runtime.
type ClaudeConfig struct {
	Binary         string // defaults to "claude"
	Model          string
	WorkingDir     string
	SystemPrompt   string
	PermissionMode string // defaults to "bypassPermissions"
	ExtraArgs      []string
	Env            []string
	// TurnTimeout bounds one query end to end; zero means no limit.
	TurnTimeout time.Duration
}

// ClaudeRuntime implements Runtime by spawning the Claude CLI.
type ClaudeRuntime struct {
	cfg    ClaudeConfig
	logger *slog.Logger
}

var _ Runtime = (*ClaudeRuntime)(nil)

// NewClaudeRuntime creates a ClaudeRuntime.
func NewClaudeRuntime(cfg ClaudeConfig, logger *slog.Logger) *ClaudeRuntime {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = "bypassPermissions"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaudeRuntime{
		cfg:    cfg,
		logger: logger.With("component", "claude-runtime"),
	}
}

// buildArgs assembles the CLI arguments for q. The query text goes on stdin.
func (r *ClaudeRuntime) buildArgs(q *Query) ([]string, error) {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", r.cfg.PermissionMode,
	}
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if r.cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", r.cfg.SystemPrompt)
	}
	if q.SessionID != "" {
		args = append(args, "--resume", q.SessionID)
	}
	if q.Tools != nil && len(q.Tools.Tools) > 0 {
		mcpCfg, err := q.Tools.MCPConfig()
		if err != nil {
			return nil, err
		}
		args = append(args,
			"--mcp-config", string(mcpCfg),
			"--allowedTools", strings.Join(q.Tools.AllowedTools(), ","),
		)
	}
	args = append(args, r.cfg.ExtraArgs...)
	return args, nil
}

// Submit starts one CLI process for q and streams its parsed output.
func (r *ClaudeRuntime) Submit(ctx context.Context, q *Query) (<-chan *Response, error) {
	args, err := r.buildArgs(q)
	if err != nil {
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.cfg.TurnTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.TurnTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, args...)
	cmd.Dir = r.cfg.WorkingDir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Stdin = strings.NewReader(q.Text)
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", r.cfg.Binary, err)
	}

	r.logger.Debug("runtime started",
		"pid", cmd.Process.Pid,
		"resume", q.SessionID != "",
		"tools", q.Tools != nil,
	)

	out := make(chan *Response, 16)
	go r.stream(runCtx, cancel, cmd, stdout, stderr, out)
	return out, nil
}

// stream forwards parsed events until the process exits, guaranteeing exactly
// one terminal event before closing out.
func (r *ClaudeRuntime) stream(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, out chan<- *Response) {
	defer close(out)
	defer cancel()

	send := func(resp *Response) bool {
		select {
		case out <- resp:
			return true
		case <-ctx.Done():
			return false
		}
	}

	terminal := false
	scanner := bufio.NewScanner(stdout)
	// Long tool results and plot HTML exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for !terminal && scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		responses, err := ParseStreamLine(line)
		if err != nil {
			r.logger.Warn("skipping unparseable runtime output", "error", err)
			continue
		}
		for _, resp := range responses {
			if !send(resp) {
				_ = cmd.Wait()
				return
			}
			if resp.Terminal() {
				terminal = true
				break
			}
		}
	}
	scanErr := scanner.Err()

	// drain so the process is not blocked writing after the terminal event
	if terminal {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if terminal {
		return
	}

	msg := "runtime exited without a result"
	switch {
	case ctx.Err() != nil:
		msg = fmt.Sprintf("runtime canceled: %v", ctx.Err())
	case scanErr != nil:
		msg = fmt.Sprintf("reading runtime output: %v", scanErr)
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg = fmt.Sprintf("runtime exited with code %d", exitErr.ExitCode())
		} else {
			msg = waitErr.Error()
		}
	}
	if tail := strings.TrimSpace(stderr.String()); tail != "" {
		msg += ": " + tail
	}

	r.logger.Warn("runtime stream ended abnormally", "error", msg)
	send(&Response{Event: EventError, Error: msg})
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
