package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agendazap/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const respondPath = "/v1/respond"

// HTTPEngine posts each turn as JSON to the engine service.
type HTTPEngine struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zerolog.Logger
}

func NewHTTPEngine(cfg config.DialogueConfig, logger *zerolog.Logger) (*HTTPEngine, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("dialogue: url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

func (e *HTTPEngine) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	if turn.TenantID <= 0 || turn.Phone == "" {
		return nil, errors.New("dialogue: tenant and phone required")
	}

	body, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("dialogue: encode turn: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+respondPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dialogue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if strings.TrimSpace(e.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	started := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialogue: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dialogue: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("dialogue: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var out Reply
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("dialogue: decode reply: %w", err)
	}
	if out.Action != nil {
		switch out.Action.Kind {
		case ActionCheckAvailability, ActionBook:
		default:
			return nil, fmt.Errorf("dialogue: unknown action %q", out.Action.Kind)
		}
	}

	e.logger.Debug().
		Int64("tenant_id", turn.TenantID).
		Dur("latency", time.Since(started)).
		Bool("has_action", out.Action != nil).
		Msg("Dialogue engine replied")
	return &out, nil
}
