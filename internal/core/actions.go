package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghost-edr/enforcer/internal/runtime"
)

// ActionExecutor is the interface for pluggable enforcement action handlers.
// Execute reports failure through its error return and must not panic; the
// dispatcher still recovers panics so a broken handler cannot take down the
// pipeline.
type ActionExecutor interface {
	Execute(ctx context.Context, alert *Alert, rule *PolicyRule) (details string, err error)
	Validate(rule *PolicyRule) error
}

// ---------------------------------------------------------------------------
// LogOnlyExecutor — records the alert without enforcement
// ---------------------------------------------------------------------------

type LogOnlyExecutor struct {
	Logger zerolog.Logger
}

func (e *LogOnlyExecutor) Validate(rule *PolicyRule) error { return nil }

func (e *LogOnlyExecutor) Execute(ctx context.Context, alert *Alert, rule *PolicyRule) (string, error) {
	evt := e.Logger.Warn()
	switch {
	case alert.Severity >= SeverityError:
		evt = e.Logger.Error()
	case alert.Severity <= SeverityNotice:
		evt = e.Logger.Info()
	}
	evt.
		Str("rule", alert.Rule).
		Str("severity", alert.Severity.String()).
		Str("container_id", alert.ShortContainerID()).
		Str("container_name", alert.ContainerName).
		Str("container_image", alert.ContainerImage).
		Str("process", alert.ProcName).
		Str("cmdline", alert.ProcCmdline).
		Str("user", alert.UserName).
		Str("connection", alert.FDName).
		Strs("tags", alert.Tags).
		Str("policy", rule.Name).
		Msg("SECURITY ALERT")
	return "logged only, no enforcement action", nil
}

// ---------------------------------------------------------------------------
// WebhookExecutor — delivers a structured alert summary to a webhook
// ---------------------------------------------------------------------------

type WebhookExecutor struct {
	Logger zerolog.Logger

	// DefaultURL is used when the matched rule has no webhook of its own.
	DefaultURL string

	// Client is the HTTP client used for delivery. Left nil, a client
	// with a bounded timeout is used.
	Client *http.Client
}

// webhookTimeout bounds a single delivery attempt.
const webhookTimeout = 10 * time.Second

func (e *WebhookExecutor) Validate(rule *PolicyRule) error {
	if rule.WebhookURL == "" && e.DefaultURL == "" {
		return fmt.Errorf("policy %q uses the webhook action but no webhook URL is configured", rule.Name)
	}
	return nil
}

func (e *WebhookExecutor) Execute(ctx context.Context, alert *Alert, rule *PolicyRule) (string, error) {
	url := rule.WebhookURL
	if url == "" {
		url = e.DefaultURL
	}
	if url == "" {
		return "", fmt.Errorf("no webhook URL configured")
	}

	payload := map[string]interface{}{
		"source": "ghost-edr",
		"alert": map[string]interface{}{
			"rule":            alert.Rule,
			"priority":        alert.Severity.String(),
			"output":          alert.Output,
			"time":            alert.Time.Format(time.RFC3339Nano),
			"container_id":    alert.ContainerID,
			"container_name":  alert.ContainerName,
			"container_image": alert.ContainerImage,
			"process":         alert.ProcName,
			"cmdline":         alert.ProcCmdline,
			"user":            alert.UserName,
			"tags":            alert.Tags,
		},
		"policy": map[string]interface{}{
			"name":   rule.Name,
			"action": string(rule.Action),
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ghost-enforcer/1.0")

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	details := fmt.Sprintf("webhook sent to %s (status=%d)", url, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return details, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return details, nil
}

// ---------------------------------------------------------------------------
// KillExecutor — forcibly terminates the target container
// ---------------------------------------------------------------------------

type KillExecutor struct {
	Logger  zerolog.Logger
	Runtime runtime.ContainerRuntime
}

func (e *KillExecutor) Validate(rule *PolicyRule) error {
	if e.Runtime == nil {
		return fmt.Errorf("policy %q uses the kill action but no container runtime is available", rule.Name)
	}
	return nil
}

func (e *KillExecutor) Execute(ctx context.Context, alert *Alert, rule *PolicyRule) (string, error) {
	if alert.ContainerID == "" {
		return "", fmt.Errorf("alert has no container ID, cannot kill")
	}

	e.Logger.Warn().
		Str("container_id", alert.ShortContainerID()).
		Str("container_name", alert.ContainerName).
		Str("rule", alert.Rule).
		Str("policy", rule.Name).
		Msg("killing container")

	if err := e.Runtime.Kill(ctx, alert.ContainerID); err != nil {
		return "", err
	}
	return fmt.Sprintf("killed container %s", alert.ShortContainerID()), nil
}

// ---------------------------------------------------------------------------
// QuarantineExecutor — detaches the target container from all networks
// ---------------------------------------------------------------------------

type QuarantineExecutor struct {
	Logger  zerolog.Logger
	Runtime runtime.ContainerRuntime
}

func (e *QuarantineExecutor) Validate(rule *PolicyRule) error {
	if e.Runtime == nil {
		return fmt.Errorf("policy %q uses the quarantine action but no container runtime is available", rule.Name)
	}
	return nil
}

func (e *QuarantineExecutor) Execute(ctx context.Context, alert *Alert, rule *PolicyRule) (string, error) {
	if alert.ContainerID == "" {
		return "", fmt.Errorf("alert has no container ID, cannot quarantine")
	}

	e.Logger.Warn().
		Str("container_id", alert.ShortContainerID()).
		Str("container_name", alert.ContainerName).
		Str("rule", alert.Rule).
		Str("policy", rule.Name).
		Msg("quarantining container")

	detached, err := e.Runtime.Quarantine(ctx, alert.ContainerID)
	if err != nil {
		return "", err
	}
	if detached == 0 {
		// Zero attachments counts as success: there was nothing to detach.
		return fmt.Sprintf("container %s had no network attachments", alert.ShortContainerID()), nil
	}
	return fmt.Sprintf("detached %d network(s) from container %s", detached, alert.ShortContainerID()), nil
}
