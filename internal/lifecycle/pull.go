package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// PullTimeout bounds a model pull; large models can take a while.
	PullTimeout = 30 * time.Minute

	maxPullLine = 64 << 10
)

// PullProgress is one status line of a streamed pull.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// EnsureOpts configures EnsureModel.
type EnsureOpts struct {
	// Pull downloads a missing model instead of failing.
	Pull     bool
	Progress func(PullProgress)
}

// PullModel downloads model unless it is already installed. progress, when
// set, receives every status line.
func (m *ModelManager) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	has, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("failed to check model: %w", err)
	}
	if has {
		return nil
	}

	body, _ := json.Marshal(map[string]any{"model": model, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("pull %s: %w", model, err)
	}
	return readPullStream(ctx, resp.Body, model, progress)
}

// readPullStream consumes the newline-delimited JSON status stream of
// /api/pull. Blank and undecodable lines are skipped; an "error" field
// ends the pull.
func readPullStream(ctx context.Context, r io.Reader, model string, progress func(PullProgress)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxPullLine)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if json.Unmarshal(sc.Bytes(), &line) != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("pull %s: %s", model, line.Error)
		}
		if progress == nil {
			continue
		}

		p := PullProgress{Status: line.Status, Digest: line.Digest, Total: line.Total, Completed: line.Completed}
		if line.Total > 0 {
			p.Percent = float64(line.Completed) / float64(line.Total) * 100
		}
		progress(p)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// EnsureModel checks Ollama is running and has model, DefaultModel when
// empty, pulling it when opts.Pull is set.
func (m *ModelManager) EnsureModel(ctx context.Context, model string, opts EnsureOpts) error {
	if model == "" {
		model = DefaultModel
	}
	if !m.IsRunning(ctx) {
		return &NotRunningError{Host: m.host}
	}

	has, err := m.HasModel(ctx, model)
	switch {
	case err != nil:
		return fmt.Errorf("failed to check model: %w", err)
	case has:
		return nil
	case !opts.Pull:
		return &ModelNotFoundError{Model: model}
	}

	if err := m.PullModel(ctx, model, opts.Progress); err != nil {
		return fmt.Errorf("failed to pull model: %w", err)
	}
	return nil
}

// NotRunningError means the Ollama API did not answer.
type NotRunningError struct {
	Host string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("ollama is not responding at %s", e.Host)
}

// ModelNotFoundError means the model is not installed and was not pulled.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found (run `bulletinsearch doctor --pull` or `ollama pull %s`)", e.Model, e.Model)
}
