package core

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// actionTimeout bounds a single enforcement action invocation. Actions that
// exceed it are treated as failures, never retried.
const actionTimeout = 10 * time.Second

// ActionStatus tracks the outcome of a dispatched action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "SUCCESS"
	StatusFailed  ActionStatus = "FAILED"
	StatusDryRun  ActionStatus = "DRY_RUN"
)

// ResponseRecord is the audit entry produced for every dispatched (or
// dry-run) action. Records are published to the audit bus when one is
// configured.
type ResponseRecord struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	AlertID    string       `json:"alert_id"`
	Rule       string       `json:"rule"`
	Policy     string       `json:"policy"`
	Action     ActionType   `json:"action"`
	Status     ActionStatus `json:"status"`
	Target     string       `json:"target,omitempty"`
	Details    string       `json:"details,omitempty"`
	DurationMs int64        `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
}

// AuditPublisher receives alerts and response records for out-of-band
// consumption. Publishing is best-effort: the pipeline never fails because
// the publisher does.
type AuditPublisher interface {
	PublishAlert(alert *Alert) error
	PublishResponse(record *ResponseRecord) error
}

// PolicyEngine evaluates alerts against the ordered policy and dispatches
// enforcement actions. It owns the cooldown state and the metrics; both are
// safe for concurrent ProcessAlert callers.
type PolicyEngine struct {
	cfg       *ResolvedConfig
	logger    zerolog.Logger
	metrics   *Metrics
	bus       AuditPublisher
	executors map[ActionType]ActionExecutor

	mu        sync.Mutex
	cooldowns map[string]time.Time // "containerID:ruleName" -> last admitted

	now func() time.Time
}

// NewPolicyEngine creates a policy engine for the resolved configuration.
// Executors are registered separately; call ValidateActions before serving
// traffic so a rule naming an unregistered action fails at startup.
func NewPolicyEngine(cfg *ResolvedConfig, logger zerolog.Logger, metrics *Metrics, bus AuditPublisher) *PolicyEngine {
	return &PolicyEngine{
		cfg:       cfg,
		logger:    logger.With().Str("component", "policy_engine").Logger(),
		metrics:   metrics,
		bus:       bus,
		executors: make(map[ActionType]ActionExecutor),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// RegisterExecutor binds an action kind to its handler.
func (e *PolicyEngine) RegisterExecutor(kind ActionType, ex ActionExecutor) {
	e.executors[kind] = ex
}

// ValidateActions checks that every action kind referenced by the policy
// has a registered, valid executor. Called once at startup; a failure here
// aborts the process instead of surfacing per-alert at runtime.
func (e *PolicyEngine) ValidateActions() error {
	for i := range e.cfg.Policies {
		rule := &e.cfg.Policies[i]
		ex, ok := e.executors[rule.Action]
		if !ok {
			return fmt.Errorf("policy %q references unregistered action %q", rule.Name, rule.Action)
		}
		if err := ex.Validate(rule); err != nil {
			return err
		}
	}
	return nil
}

// Metrics returns the engine's metrics accumulator.
func (e *PolicyEngine) Metrics() *Metrics {
	return e.metrics
}

// PolicyCount returns the number of loaded policy rules.
func (e *PolicyEngine) PolicyCount() int {
	return len(e.cfg.Policies)
}

// ProcessAlert runs one alert through the full pipeline: exclusion filter,
// ordered rule matching, cooldown admission, action dispatch, and metrics.
// It returns when the alert has been fully evaluated; completion does not
// imply an action was taken.
func (e *PolicyEngine) ProcessAlert(ctx context.Context, alert *Alert) {
	e.metrics.AlertReceived()

	if e.bus != nil {
		if err := e.bus.PublishAlert(alert); err != nil {
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert to bus")
		}
	}

	if e.isExcluded(alert) {
		e.metrics.SkippedExcluded()
		e.logger.Debug().
			Str("container_name", alert.ContainerName).
			Msg("container excluded from enforcement")
		return
	}

	rule := e.matchPolicy(alert)
	if rule == nil {
		e.logger.Debug().
			Str("rule", alert.Rule).
			Str("severity", alert.Severity.String()).
			Msg("no policy matched")
		return
	}
	e.metrics.AlertMatched(rule.Name)

	if !e.admit(alert, rule) {
		e.metrics.SkippedCooldown()
		e.logger.Debug().
			Str("container_id", alert.ShortContainerID()).
			Str("policy", rule.Name).
			Msg("action suppressed by cooldown")
		return
	}

	e.dispatch(ctx, alert, rule)
}

// isExcluded reports whether the alert's container name matches any global
// exclusion pattern. Alerts without a container name are never excluded.
func (e *PolicyEngine) isExcluded(alert *Alert) bool {
	if alert.ContainerName == "" {
		return false
	}
	return matchAny(e.cfg.ExcludedContainers, alert.ContainerName)
}

// matchPolicy returns the first rule, in declaration order, whose full
// condition set is satisfied by the alert, or nil. There is no backtracking
// and no scoring: first match wins.
func (e *PolicyEngine) matchPolicy(alert *Alert) *PolicyRule {
	for i := range e.cfg.Policies {
		rule := &e.cfg.Policies[i]
		if e.matches(alert, rule) {
			return rule
		}
	}
	return nil
}

func (e *PolicyEngine) matches(alert *Alert, rule *PolicyRule) bool {
	if alert.Severity < rule.PriorityMin {
		return false
	}

	if len(rule.RulePatterns) > 0 && !matchAny(rule.RulePatterns, alert.Rule) {
		return false
	}

	// A rule constrained to container names cannot match an alert that has
	// none; same for image constraints.
	if len(rule.ContainerPatterns) > 0 {
		if alert.ContainerName == "" || !matchAny(rule.ContainerPatterns, alert.ContainerName) {
			return false
		}
	}
	if len(rule.ImagePatterns) > 0 {
		if alert.ContainerImage == "" || !matchAny(rule.ImagePatterns, alert.ContainerImage) {
			return false
		}
	}

	if len(rule.ExcludeContainers) > 0 && alert.ContainerName != "" {
		if matchAny(rule.ExcludeContainers, alert.ContainerName) {
			return false
		}
	}

	return true
}

// admit performs the atomic cooldown check-and-update. The timestamp is
// recorded at admission time, so an action that later fails does not re-arm
// the window. Alerts without a container ID and rules without a cooldown
// are always admitted and touch no state.
func (e *PolicyEngine) admit(alert *Alert, rule *PolicyRule) bool {
	if alert.ContainerID == "" || rule.Cooldown <= 0 {
		return true
	}

	key := alert.ContainerID + ":" + rule.Name

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if last, ok := e.cooldowns[key]; ok && now.Sub(last) < rule.Cooldown {
		return false
	}
	e.cooldowns[key] = now
	return true
}

// dispatch resolves the rule's action to its executor and invokes it under
// a bounded timeout. Failures and panics are contained here: they are
// logged, counted, and never propagate to the caller.
func (e *PolicyEngine) dispatch(ctx context.Context, alert *Alert, rule *PolicyRule) {
	e.logger.Warn().
		Str("policy", rule.Name).
		Str("action", string(rule.Action)).
		Str("container_id", alert.ShortContainerID()).
		Str("container_name", alert.ContainerName).
		Str("rule", alert.Rule).
		Msg("executing policy action")

	if e.cfg.DryRun {
		e.logger.Info().
			Str("action", string(rule.Action)).
			Str("container_id", alert.ShortContainerID()).
			Msg("DRY RUN: would execute action")
		e.metrics.ActionExecuted(rule.Action)
		e.record(alert, rule, StatusDryRun, "dry run, no action taken", 0, nil)
		return
	}

	ex, ok := e.executors[rule.Action]
	if !ok {
		// ValidateActions makes this unreachable for loaded policies; the
		// guard remains so a future registration bug drops one alert
		// instead of panicking.
		e.logger.Error().Str("action", string(rule.Action)).Msg("unknown action type")
		return
	}

	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	start := e.now()
	details, err := e.invoke(actx, ex, alert, rule)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		e.logger.Error().Err(err).
			Str("action", string(rule.Action)).
			Str("policy", rule.Name).
			Str("container_id", alert.ShortContainerID()).
			Msg("action execution failed")
		e.metrics.ActionFailed()
		e.record(alert, rule, StatusFailed, details, durationMs, err)
		return
	}

	e.metrics.ActionExecuted(rule.Action)
	e.record(alert, rule, StatusSuccess, details, durationMs, nil)
}

// invoke calls the executor, converting a panic into an error so one bad
// handler cannot abort the pipeline for subsequent alerts.
func (e *PolicyEngine) invoke(ctx context.Context, ex ActionExecutor, alert *Alert, rule *PolicyRule) (details string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action handler panicked: %v", r)
		}
	}()
	return ex.Execute(ctx, alert, rule)
}

func (e *PolicyEngine) record(alert *Alert, rule *PolicyRule, status ActionStatus, details string, durationMs int64, err error) {
	if e.bus == nil {
		return
	}
	rec := &ResponseRecord{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		AlertID:    alert.ID,
		Rule:       alert.Rule,
		Policy:     rule.Name,
		Action:     rule.Action,
		Status:     status,
		Target:     alert.ShortContainerID(),
		Details:    details,
		DurationMs: durationMs,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if pubErr := e.bus.PublishResponse(rec); pubErr != nil {
		e.logger.Error().Err(pubErr).Msg("failed to publish response record")
	}
}

// matchAny reports whether name matches at least one shell-glob pattern.
// A malformed pattern never matches.
func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
