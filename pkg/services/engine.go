package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/praxlaw/crm-alert-engine/pkg/analytics"
	"github.com/praxlaw/crm-alert-engine/pkg/models"
	"github.com/praxlaw/crm-alert-engine/pkg/notify"
	"github.com/praxlaw/crm-alert-engine/pkg/telemetry"
)

// Subscriber receives the full ordered alert list on every state change,
// and once immediately at subscribe time. It must not block for long;
// fan-out is synchronous.
type Subscriber func(alerts []models.Alert)

// Engine owns the rule registry, cooldown state, the append-only alert log
// and the subscriber set. All of that mutable state lives behind one mutex,
// so external mutators and the evaluation tick serialize on a single owner.
// Metric fetches happen outside the lock; they are the only blocking point
// of a tick.
type Engine struct {
	source       analytics.MetricSource
	escalator    notify.Escalator
	interval     time.Duration
	window       time.Duration
	queryTimeout time.Duration

	mu          sync.Mutex
	rules       []models.AlertRule
	lastFired   map[string]time.Time
	alerts      []models.Alert // most-recent-first
	subscribers map[int]Subscriber
	nextSubID   int

	cancel context.CancelFunc
	done   chan struct{}
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithEscalator sets the best-effort escalation channel for critical alerts
func WithEscalator(e notify.Escalator) EngineOption {
	return func(eng *Engine) {
		eng.escalator = e
	}
}

// WithInterval sets the evaluation tick interval
func WithInterval(d time.Duration) EngineOption {
	return func(eng *Engine) {
		eng.interval = d
	}
}

// WithWindow sets the trailing metric aggregation window
func WithWindow(d time.Duration) EngineOption {
	return func(eng *Engine) {
		eng.window = d
	}
}

// WithQueryTimeout bounds each metric fetch so one slow backend call
// cannot stall an entire tick
func WithQueryTimeout(d time.Duration) EngineOption {
	return func(eng *Engine) {
		eng.queryTimeout = d
	}
}

// WithRules replaces the built-in seed rules
func WithRules(rules []models.AlertRule) EngineOption {
	return func(eng *Engine) {
		eng.rules = append([]models.AlertRule(nil), rules...)
	}
}

// NewEngine creates an engine seeded with the built-in rules
func NewEngine(source analytics.MetricSource, opts ...EngineOption) *Engine {
	e := &Engine{
		source:       source,
		interval:     30 * time.Second,
		window:       time.Hour,
		queryTimeout: 10 * time.Second,
		rules:        models.DefaultRules(),
		lastFired:    make(map[string]time.Time),
		alerts:       make([]models.Alert, 0),
		subscribers:  make(map[int]Subscriber),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the periodic evaluation loop. It runs until Stop is called
// or the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	logrus.Infof("Starting alert engine: interval=%s window=%s queryTimeout=%s rules=%d",
		e.interval, e.window, e.queryTimeout, len(e.Rules()))

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.evaluate(time.Now())
			}
		}
	}()
}

// Stop cancels the evaluation timer and waits for the loop to exit. A tick
// already in flight completes; metric fetches are not cancelled mid-tick.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	logrus.Info("Stopping alert engine")
	e.cancel()
	<-e.done
}

// evaluate runs one evaluation tick at the given instant. Per-rule faults
// are isolated: a failing metric fetch skips that rule only.
func (e *Engine) evaluate(now time.Time) {
	for _, rule := range e.Rules() {
		if !rule.IsEnabled {
			continue
		}

		e.mu.Lock()
		last, fired := e.lastFired[rule.ID]
		e.mu.Unlock()
		if fired && now.Sub(last) < time.Duration(rule.CooldownMinutes)*time.Minute {
			continue
		}

		// The fetch is bounded independently of the engine's lifecycle
		// context so an in-flight tick can finish after Stop.
		queryCtx, cancel := context.WithTimeout(context.Background(), e.queryTimeout)
		value, err := e.source.GetValue(queryCtx, rule.Metric, now.Add(-e.window), now)
		cancel()

		if errors.Is(err, analytics.ErrNoData) {
			continue
		}
		if err != nil {
			logrus.Warnf("Metric query failed for rule %s (metric %s), skipping until next tick: %v",
				rule.ID, rule.Metric, err)
			telemetry.ObserveMetricQueryError(rule.Metric)
			continue
		}

		if !rule.Condition.Satisfied(value, rule.Threshold) {
			continue
		}

		e.fire(rule, value, now)
	}
	telemetry.ObserveTick()
}

// fire creates the alert for a satisfied rule, stamps the cooldown, fans
// out the new snapshot and escalates critical severities.
func (e *Engine) fire(rule models.AlertRule, value float64, now time.Time) {
	unit := models.MetricUnit(rule.Metric)
	alert := models.Alert{
		ID:       fmt.Sprintf("%s-%d", rule.ID, now.UnixMilli()),
		Type:     rule.Type,
		Severity: rule.Severity,
		Title:    rule.Name,
		Description: fmt.Sprintf("%s: %s%s (threshold: %s%s)",
			rule.Name,
			models.FormatMetricValue(value), unit,
			models.FormatMetricValue(rule.Threshold), unit),
		Data: map[string]interface{}{
			"ruleId":    rule.ID,
			"metric":    rule.Metric,
			"threshold": rule.Threshold,
			"condition": string(rule.Condition),
		},
		Threshold:    rule.Threshold,
		CurrentValue: value,
		Timestamp:    now,
	}

	e.mu.Lock()
	e.alerts = append([]models.Alert{alert}, e.alerts...)
	e.lastFired[rule.ID] = now
	snapshot := e.snapshotLocked()
	subs := e.subscribersLocked()
	e.mu.Unlock()

	logrus.Infof("Alert fired: %s (severity=%s value=%s threshold=%s)",
		alert.ID, alert.Severity, models.FormatMetricValue(value), models.FormatMetricValue(rule.Threshold))
	telemetry.ObserveAlertFired(string(alert.Severity))

	fanOut(subs, snapshot)

	if alert.Severity == models.SeverityCritical {
		e.escalate(alert)
	}
}

// escalate attempts the best-effort side channel. Every failure mode,
// including a panicking escalator, is swallowed.
func (e *Engine) escalate(alert models.Alert) {
	if e.escalator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Escalator panicked for alert %s: %v", alert.ID, r)
			telemetry.ObserveEscalationFailure()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.queryTimeout)
	defer cancel()
	if err := e.escalator.Escalate(ctx, alert); err != nil {
		logrus.Warnf("Escalation failed for alert %s: %v", alert.ID, err)
		telemetry.ObserveEscalationFailure()
	}
}

// CreateRule builds a rule from the request, minting an id when omitted,
// and registers it.
func (e *Engine) CreateRule(req *models.CreateRuleRequest) (models.AlertRule, error) {
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	rule := models.AlertRule{
		ID:              strings.TrimSpace(req.ID),
		Name:            req.Name,
		Type:            req.Type,
		Metric:          req.Metric,
		Condition:       req.Condition,
		Threshold:       req.Threshold,
		Severity:        req.Severity,
		IsEnabled:       enabled,
		CooldownMinutes: req.CooldownMinutes,
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := e.AddRule(rule); err != nil {
		return models.AlertRule{}, err
	}
	return rule, nil
}

// AddRule registers a rule. Adding a duplicate id fails with a
// DuplicateRuleError and leaves the registry unchanged.
func (e *Engine) AddRule(rule models.AlertRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Metric == "" {
		return fmt.Errorf("rule metric is required")
	}
	if !rule.Condition.Valid() {
		return fmt.Errorf("unsupported rule condition %q", rule.Condition)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == rule.ID {
			return &DuplicateRuleError{RuleID: rule.ID}
		}
	}
	e.rules = append(e.rules, rule)
	logrus.Infof("Registered alert rule %s (metric=%s severity=%s)", rule.ID, rule.Metric, rule.Severity)
	return nil
}

// UpdateRule merges the provided fields into an existing rule. Nil request
// fields are left unchanged; the id is immutable.
func (e *Engine) UpdateRule(id string, req *models.UpdateRuleRequest) (models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID != id {
			continue
		}
		rule := &e.rules[i]
		if req.Name != nil {
			rule.Name = *req.Name
		}
		if req.Type != nil {
			rule.Type = *req.Type
		}
		if req.Metric != nil {
			rule.Metric = *req.Metric
		}
		if req.Condition != nil {
			if !req.Condition.Valid() {
				return models.AlertRule{}, fmt.Errorf("unsupported rule condition %q", *req.Condition)
			}
			rule.Condition = *req.Condition
		}
		if req.Threshold != nil {
			rule.Threshold = *req.Threshold
		}
		if req.Severity != nil {
			rule.Severity = *req.Severity
		}
		if req.IsEnabled != nil {
			rule.IsEnabled = *req.IsEnabled
		}
		if req.CooldownMinutes != nil {
			rule.CooldownMinutes = *req.CooldownMinutes
		}
		return *rule, nil
	}
	return models.AlertRule{}, ErrRuleNotFound
}

// RemoveRule deletes a rule. Removing an unknown id is a no-op.
func (e *Engine) RemoveRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			delete(e.lastFired, id)
			logrus.Infof("Removed alert rule %s", id)
			return
		}
	}
}

// Rules returns a copy of the registered rules
func (e *Engine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AlertRule(nil), e.rules...)
}

// Rule returns the rule with the given id
func (e *Engine) Rule(id string) (models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return models.AlertRule{}, ErrRuleNotFound
}

// Alerts returns alerts matching the filter, most recent first. A nil
// filter returns everything.
func (e *Engine) Alerts(filter *models.AlertFilter) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Alert, 0, len(e.alerts))
	for i := range e.alerts {
		if filter.Matches(&e.alerts[i]) {
			out = append(out, e.alerts[i])
		}
	}
	return out
}

// ResolveAlert marks an alert resolved and fans out the change. Resolving
// an unknown or already-resolved id is a silent no-op so callers racing
// with each other never fail.
func (e *Engine) ResolveAlert(id, resolvedBy string) {
	e.mu.Lock()
	var snapshot []models.Alert
	var subs []Subscriber
	for i := range e.alerts {
		if e.alerts[i].ID != id || e.alerts[i].Resolved {
			continue
		}
		now := time.Now()
		e.alerts[i].Resolved = true
		e.alerts[i].ResolvedAt = &now
		e.alerts[i].ResolvedBy = resolvedBy
		snapshot = e.snapshotLocked()
		subs = e.subscribersLocked()
		break
	}
	e.mu.Unlock()

	if snapshot == nil {
		return
	}
	logrus.Infof("Alert %s resolved by %q", id, resolvedBy)
	fanOut(subs, snapshot)
}

// ActiveAlertsCount returns the number of unresolved alerts
func (e *Engine) ActiveAlertsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for i := range e.alerts {
		if !e.alerts[i].Resolved {
			count++
		}
	}
	return count
}

// CriticalAlertsCount returns the number of unresolved critical alerts
func (e *Engine) CriticalAlertsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for i := range e.alerts {
		if !e.alerts[i].Resolved && e.alerts[i].Severity == models.SeverityCritical {
			count++
		}
	}
	return count
}

// Counts returns the active/critical summary in one call
func (e *Engine) Counts() models.AlertCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := models.AlertCounts{}
	for i := range e.alerts {
		if e.alerts[i].Resolved {
			continue
		}
		counts.Active++
		if e.alerts[i].Severity == models.SeverityCritical {
			counts.Critical++
		}
	}
	return counts
}

// Subscribe registers a listener and immediately replays the current alert
// list to it, so new subscribers never wait for the next change to see
// state. The returned function unsubscribes.
func (e *Engine) Subscribe(fn Subscriber) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	invoke(fn, snapshot)

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// snapshotLocked copies the alert list; callers hold e.mu.
func (e *Engine) snapshotLocked() []models.Alert {
	return append([]models.Alert{}, e.alerts...)
}

// subscribersLocked copies the subscriber set; callers hold e.mu.
func (e *Engine) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

// fanOut invokes every subscriber with the snapshot. A panicking
// subscriber must not break fan-out to the others.
func fanOut(subs []Subscriber, snapshot []models.Alert) {
	for _, fn := range subs {
		invoke(fn, snapshot)
	}
}

func invoke(fn Subscriber, snapshot []models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Alert subscriber panicked: %v", r)
		}
	}()
	fn(snapshot)
}
