package automation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/verdantlabs/hydrocore/internal/control"
	"github.com/verdantlabs/hydrocore/internal/telemetry"
)

const (
	// DefaultInterval is the pause between evaluation cycles.
	DefaultInterval = 30 * time.Second

	// DefaultCronGrace is how long after a scheduled cron tick a
	// condition still counts as due.
	DefaultCronGrace = 60 * time.Second
)

// AgentRunner runs an external AI agent with a prompt. The engine only
// logs the outcome; agent responses never gate later actions.
type AgentRunner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// ActuatorController issues arbitrated actuator commands.
type ActuatorController interface {
	ControlBatch(ctx context.Context, commands []control.Command, source control.Source, force bool) control.BatchResult
}

// Config assembles an Engine's collaborators.
type Config struct {
	Store      *Store
	Cache      *telemetry.ValueCache
	Controller ActuatorController
	Agent      AgentRunner
	Interval   time.Duration
	CronGrace  time.Duration
	Logger     Logger
}

// Engine periodically evaluates automation rules against the value
// cache and wall-clock time, executing matching rules' actions through
// the permission arbiter. Stateless across cycles except per-rule cron
// bookkeeping; a failing rule never stops the rest.
type Engine struct {
	store      *Store
	cache      *telemetry.ValueCache
	controller ActuatorController
	agent      AgentRunner
	interval   time.Duration
	grace      time.Duration
	logger     Logger

	now func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewEngine creates an engine. Interval defaults to 30s; the cron grace
// window defaults to 60s and is raised to twice the interval when the
// configured value would let slow loops miss scheduled ticks.
func NewEngine(cfg Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	grace := cfg.CronGrace
	if grace <= 0 {
		grace = DefaultCronGrace
	}
	if grace < 2*interval {
		grace = 2 * interval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:      cfg.Store,
		cache:      cfg.Cache,
		controller: cfg.Controller,
		agent:      cfg.Agent,
		interval:   interval,
		grace:      grace,
		logger:     logger,
		now:        time.Now,
		lastFired:  make(map[string]time.Time),
	}
}

// Run evaluates rules every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("automation engine started",
		"interval", e.interval, "cron_grace", e.grace)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("automation engine stopped")
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single evaluation cycle over all enabled rules.
func (e *Engine) RunOnce(ctx context.Context) {
	for _, rule := range e.store.Rules() {
		if !rule.Enabled {
			continue
		}
		e.evaluateRule(ctx, rule)
	}
}

// evaluateRule checks one rule's conditions and runs its actions on a
// match. Panics are contained so a broken rule cannot take the loop
// down.
func (e *Engine) evaluateRule(ctx context.Context, rule Rule) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic evaluating rule",
				"rule", rule.Name, "rule_id", rule.ID, "panic", r)
		}
	}()

	if !e.ruleMatches(rule) {
		return
	}
	e.logger.Debug("rule conditions met", "rule", rule.Name, "rule_id", rule.ID)
	e.executeActions(ctx, rule)
}

func (e *Engine) ruleMatches(rule Rule) bool {
	for _, cond := range rule.Conditions.AllOf {
		if !e.evaluateCondition(rule, cond) {
			return false
		}
	}

	anyOf := rule.Conditions.AnyOf
	if len(anyOf) > 0 {
		met := false
		for _, cond := range anyOf {
			if e.evaluateCondition(rule, cond) {
				met = true
				break
			}
		}
		if !met {
			return false
		}
	}

	return true
}

// evaluateCondition dispatches on condition type. Unknown types and
// malformed conditions evaluate to false, never to an error.
func (e *Engine) evaluateCondition(rule Rule, cond Condition) bool {
	switch cond.Type {
	case ConditionTimeRange:
		return e.evaluateTimeRange(cond)
	case ConditionDaysOfWeek:
		return e.evaluateDaysOfWeek(cond)
	case ConditionSensorThreshold:
		return e.evaluateSensorThreshold(cond)
	case ConditionCron:
		return e.evaluateCron(rule, cond)
	default:
		e.logger.Warn("unknown condition type", "rule", rule.Name, "type", cond.Type)
		return false
	}
}

func (e *Engine) evaluateTimeRange(cond Condition) bool {
	start, err := parseClock(cond.StartTime, 0, 0)
	if err != nil {
		e.logger.Warn("bad time_range start", "start", cond.StartTime, "error", err)
		return false
	}
	end, err := parseClock(cond.EndTime, 23, 59)
	if err != nil {
		e.logger.Warn("bad time_range end", "end", cond.EndTime, "error", err)
		return false
	}

	now := e.now()
	current := now.Hour()*60 + now.Minute()

	// An inverted range spans midnight, 22:00 to 06:00.
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// parseClock converts HH:MM to minutes since midnight, applying the
// given default when the field is empty.
func parseClock(s string, defaultHour, defaultMin int) (int, error) {
	if s == "" {
		return defaultHour*60 + defaultMin, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (e *Engine) evaluateDaysOfWeek(cond Condition) bool {
	today := strings.ToLower(e.now().Weekday().String())
	for _, day := range cond.Days {
		if strings.ToLower(day) == today {
			return true
		}
	}
	return false
}

// evaluateSensorThreshold compares the cached value for the named
// device metric against the threshold. A missing or non-numeric value
// is false, not an error.
func (e *Engine) evaluateSensorThreshold(cond Condition) bool {
	current, ok := e.cache.Float(cond.DeviceKey, cond.MetricKey)
	if !ok {
		e.logger.Debug("metric not in cache",
			"device", cond.DeviceKey, "metric", cond.MetricKey)
		return false
	}

	switch cond.Operator {
	case ">":
		return current > cond.Value
	case "<":
		return current < cond.Value
	case "==":
		return current == cond.Value
	case ">=":
		return current >= cond.Value
	case "<=":
		return current <= cond.Value
	default:
		e.logger.Warn("unknown threshold operator", "operator", cond.Operator)
		return false
	}
}

// evaluateCron is true at most once per scheduled tick: the most recent
// tick within the grace window fires, and its timestamp is recorded per
// rule so later cycles in the same window stay false.
func (e *Engine) evaluateCron(rule Rule, cond Condition) bool {
	schedule, err := cron.ParseStandard(cond.Expression)
	if err != nil {
		e.logger.Warn("bad cron expression",
			"rule", rule.Name, "expression", cond.Expression, "error", err)
		return false
	}

	now := e.now()
	tick := schedule.Next(now.Add(-e.grace))
	if tick.After(now) {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !tick.After(e.lastFired[rule.ID]) {
		return false
	}
	e.lastFired[rule.ID] = tick
	return true
}

// executeActions runs a rule's actions in order. Failed actions are
// logged and do not stop later ones.
func (e *Engine) executeActions(ctx context.Context, rule Rule) {
	for _, action := range rule.Actions {
		switch action.Type {
		case ActionSetActuator:
			e.executeSetActuator(ctx, rule, action)
		case ActionRunAIAgent:
			e.executeRunAgent(ctx, rule, action)
		default:
			e.logger.Warn("unknown action type", "rule", rule.Name, "type", action.Type)
		}
	}
}

// executeSetActuator issues an automation-sourced command, skipping
// when the cache already reports the desired state.
func (e *Engine) executeSetActuator(ctx context.Context, rule Rule, action Action) {
	desired := strings.ToLower(action.State)
	if v, ok := e.cache.Get(action.DeviceKey, action.ActuatorKey); ok {
		if state, ok := v.Value.(string); ok && state == desired {
			e.logger.Debug("actuator already in desired state",
				"rule", rule.Name, "device", action.DeviceKey,
				"actuator", action.ActuatorKey, "state", desired)
			return
		}
	}

	result := e.controller.ControlBatch(ctx, []control.Command{{
		DeviceID: action.DeviceKey,
		Actuator: action.ActuatorKey,
		State:    desired,
	}}, control.SourceAutomation, false)

	switch {
	case len(result.Processed) == 1:
		e.logger.Info("rule set actuator",
			"rule", rule.Name, "device", action.DeviceKey,
			"actuator", action.ActuatorKey, "state", desired)
	case len(result.Blocked) == 1:
		e.logger.Info("rule action blocked",
			"rule", rule.Name, "device", action.DeviceKey,
			"actuator", action.ActuatorKey, "reason", result.Blocked[0].Reason)
	case len(result.Missing) == 1:
		e.logger.Warn("rule targets unknown actuator",
			"rule", rule.Name, "device", action.DeviceKey, "actuator", action.ActuatorKey)
	}
}

func (e *Engine) executeRunAgent(ctx context.Context, rule Rule, action Action) {
	if e.agent == nil {
		e.logger.Warn("no agent runner configured", "rule", rule.Name)
		return
	}
	out, err := e.agent.Run(ctx, action.Prompt)
	if err != nil {
		e.logger.Error("agent run failed", "rule", rule.Name, "error", err)
		return
	}
	e.logger.Info("agent run completed", "rule", rule.Name, "result", truncate(out, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
