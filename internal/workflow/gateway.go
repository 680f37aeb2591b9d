// Package workflow is the outbound integration point to the external
// workflow-automation engine. All calls are best-effort from the system's
// point of view: errors are returned explicitly so each caller decides
// whether a failed trigger is fatal.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"trackd.sh/internal/derrors"
)

const (
	triggerTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

// Gateway calls the automation engine's webhooks.
type Gateway struct {
	baseURL string
	client  *http.Client
	// health checks use a much shorter deadline than triggers
	healthClient *http.Client
	logger       *slog.Logger
}

// TriggerResult is the engine's reply to a trigger call.
type TriggerResult struct {
	// BuildID is the remote-assigned build identifier, when the engine
	// returns one.
	BuildID string
	// Raw is the decoded response body.
	Raw map[string]any
}

// NewGateway creates a Gateway for the given webhook base URL.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: triggerTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
		logger:       slog.Default().With("component", "workflow-gateway"),
	}
}

// TriggerBuild asks the engine to start a build for a PRD file. Transport
// and non-2xx failures propagate; the caller decides whether the parent
// operation still succeeds.
func (g *Gateway) TriggerBuild(ctx context.Context, prdFile string) (*TriggerResult, error) {
	body, err := g.post(ctx, "/grimlock/start", map[string]any{"prd_file": prdFile})
	if err != nil {
		return nil, err
	}

	result := &TriggerResult{Raw: body}
	if id, ok := body["buildId"].(string); ok {
		result.BuildID = id
	}
	return result, nil
}

// TriggerEscalation notifies the engine's escalation handler.
func (g *Gateway) TriggerEscalation(ctx context.Context, severity, message string, extra map[string]any) error {
	if extra == nil {
		extra = map[string]any{}
	}
	_, err := g.post(ctx, "/grimlock/escalate", map[string]any{
		"severity":  severity,
		"error_msg": message,
		"context":   extra,
	})
	return err
}

// HealthCheck reports whether the engine is reachable. It never returns an
// error: any transport failure or non-200 status is false.
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/grimlock/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.healthClient.Do(req)
	if err != nil {
		g.logger.Debug("workflow engine health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (g *Gateway) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, derrors.Wrapf(err, derrors.KindUnavailable, "workflow engine unreachable at %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, derrors.Newf(derrors.KindUnavailable,
			"workflow engine returned %d for %s", resp.StatusCode, path)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// Some workflows reply with an empty body; treat that as success
		return map[string]any{}, nil
	}
	return body, nil
}

// Severity values accepted by the escalation handler.
const (
	SeverityWarning   = "WARNING"
	SeverityPause     = "PAUSE"
	SeverityEmergency = "EMERGENCY"
)

// String implements fmt.Stringer for log readability.
func (r *TriggerResult) String() string {
	return fmt.Sprintf("TriggerResult{buildId=%s}", r.BuildID)
}
