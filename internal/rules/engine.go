package rules

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/envelope"
)

// Engine holds the rule set and evaluates envelopes against it. The rule
// list is guarded by a read-mostly lock: registration takes the write
// lock, evaluation takes the read lock and snapshots before dispatch.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule
	seq   int64

	bus *bus.Bus

	evaluated  atomic.Int64
	matched    atomic.Int64
	autoSubID  string
	autoActive atomic.Bool

	log *slog.Logger
}

// New creates an Engine publishing ROUTING_DECIDED on b.
func New(b *bus.Bus, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{bus: b, log: log}
}

// AddRule registers rule, re-sorting the rule list by priority descending
// with stable insertion-order tie-break.
func (e *Engine) AddRule(r *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	r.seq = e.seq
	e.rules = append(e.rules, r)
	e.sortLocked()
	e.log.Info("routing rule added", "rule_id", r.ID, "name", r.Name, "priority", r.Priority)
}

// RemoveRule deletes the rule with id, if present.
func (e *Engine) RemoveRule(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.rules[:0]
	for _, r := range e.rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	e.rules = out
	e.log.Info("routing rule removed", "rule_id", id)
}

// Reload replaces the rule identified by r.ID with r, preserving the
// ordering of every other rule (their seq values are untouched).
func (e *Engine) Reload(r *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.rules {
		if existing.ID == r.ID {
			r.seq = existing.seq
			e.rules[i] = r
			e.sortLocked()
			e.log.Info("routing rule reloaded", "rule_id", r.ID)
			return
		}
	}
	e.seq++
	r.seq = e.seq
	e.rules = append(e.rules, r)
	e.sortLocked()
}

func (e *Engine) sortLocked() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		if e.rules[i].Priority != e.rules[j].Priority {
			return e.rules[i].Priority > e.rules[j].Priority
		}
		return e.rules[i].seq < e.rules[j].seq
	})
}

// snapshot copies the current rule slice under the read lock so evaluation
// runs lock-free; per spec.md §5, evaluation sees a consistent snapshot
// taken at the start of a single envelope's evaluation.
func (e *Engine) snapshot() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// FindMatchingRules returns the rules (priority order) that match data.
func (e *Engine) FindMatchingRules(data map[string]any) []*Rule {
	var matched []*Rule
	for _, r := range e.snapshot() {
		if !r.IsActive {
			continue
		}
		if evaluateRule(r, data) {
			matched = append(matched, r)
		}
	}
	return matched
}

// RouteMessage evaluates data against the current rule set and publishes
// ROUTING_DECIDED with the matched-rule diagnostics and deduplicated
// target_system_ids union.
func (e *Engine) RouteMessage(data map[string]any) Decision {
	e.evaluated.Add(1)
	matched := e.FindMatchingRules(data)
	if len(matched) > 0 {
		e.matched.Add(1)
	}

	seen := make(map[string]struct{})
	var targets []string
	diag := make([]MatchedRule, 0, len(matched))
	for _, r := range matched {
		diag = append(diag, MatchedRule{RuleID: r.ID, RuleName: r.Name, Priority: r.Priority})
		for _, tid := range r.TargetSystemIDs {
			if _, ok := seen[tid]; ok {
				continue
			}
			seen[tid] = struct{}{}
			targets = append(targets, tid)
		}
	}

	decision := Decision{MatchedRules: diag, TargetSystemIDs: targets}

	if e.bus != nil {
		payload := make(map[string]any, len(data)+2)
		for k, v := range data {
			payload[k] = v
		}
		payload["matched_rules"] = diag
		payload["target_system_ids"] = targets
		e.bus.Publish(TopicRoutingDecided, payload, "routing_engine")
	}

	e.log.Debug("message routed",
		"message_id", data["message_id"],
		"matched_rules", len(matched),
		"target_systems", len(targets))

	return decision
}

// StartAutoRouting subscribes RouteMessage to DATA_PARSED. A second call is
// a no-op.
func (e *Engine) StartAutoRouting() {
	if e.autoActive.Load() {
		e.log.Warn("auto routing already started")
		return
	}
	if e.bus == nil {
		return
	}
	id := e.bus.Subscribe(TopicDataParsed, func(payload any, topic, source string) {
		data, ok := payload.(map[string]any)
		if !ok {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("routing message panicked", "error", r)
			}
		}()
		e.RouteMessage(data)
	})
	e.autoSubID = id
	e.autoActive.Store(true)
	e.log.Info("auto routing started")
}

// StopAutoRouting unsubscribes from DATA_PARSED.
func (e *Engine) StopAutoRouting() {
	if !e.autoActive.Load() {
		return
	}
	if e.bus != nil && e.autoSubID != "" {
		e.bus.Unsubscribe(e.autoSubID)
	}
	e.autoActive.Store(false)
	e.log.Info("auto routing stopped")
}

// Stats reports engine counters.
type Stats struct {
	TotalRules       int   `json:"total_rules"`
	ActiveRules      int   `json:"active_rules"`
	AutoRoutingActive bool `json:"auto_routing_active"`
	Evaluated        int64 `json:"evaluated"`
	Matched          int64 `json:"matched"`
}

// Stats returns current engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	active := 0
	for _, r := range e.rules {
		if r.IsActive {
			active++
		}
	}
	return Stats{
		TotalRules:        len(e.rules),
		ActiveRules:       active,
		AutoRoutingActive: e.autoActive.Load(),
		Evaluated:         e.evaluated.Load(),
		Matched:           e.matched.Load(),
	}
}

func evaluateRule(r *Rule, data map[string]any) bool {
	if !matchesSourceConfig(r.SourceConfig, data) {
		return false
	}
	if len(r.Conditions) == 0 {
		return true
	}

	switch r.LogicalOperator {
	case LogicalOR:
		for _, c := range r.Conditions {
			if evaluateCondition(c, data) {
				return true
			}
		}
		return false
	default: // AND is the default, matching an unset/zero-value operator
		for _, c := range r.Conditions {
			if !evaluateCondition(c, data) {
				return false
			}
		}
		return true
	}
}

func matchesSourceConfig(cfg SourceConfig, data map[string]any) bool {
	if len(cfg.Protocols) == 0 && len(cfg.SourceIDs) == 0 && cfg.Pattern == "" {
		return true
	}

	if len(cfg.Protocols) > 0 {
		msgProto := strings.ToUpper(envelope.Stringify(data["source_protocol"]))
		allowed := false
		for _, p := range cfg.Protocols {
			if strings.ToUpper(p) == msgProto {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(cfg.SourceIDs) > 0 {
		msgSourceID, ok := data["source_id"]
		if !ok || msgSourceID == nil {
			return false
		}
		want := envelope.Stringify(msgSourceID)
		found := false
		for _, sid := range cfg.SourceIDs {
			if sid == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if cfg.Pattern != "" && cfg.Pattern != "*" {
		candidate := candidateForPattern(data)
		if candidate == "" {
			return false
		}
		ok, err := filepath.Match(cfg.Pattern, candidate)
		if err != nil || !ok {
			return false
		}
	}

	return true
}

// candidateForPattern mirrors the Python fallback chain: raw_text, then
// stringified parsed_data, then stringified raw_data.
func candidateForPattern(data map[string]any) string {
	if rt, ok := data["raw_text"]; ok && rt != nil {
		if s, ok := rt.(string); ok && s != "" {
			return s
		}
	}
	if pd, ok := data["parsed_data"]; ok && pd != nil {
		return envelope.Stringify(pd)
	}
	if rd, ok := data["raw_data"]; ok && rd != nil {
		return envelope.Stringify(rd)
	}
	return ""
}

func evaluateCondition(c Condition, data map[string]any) bool {
	value := envelope.Lookup(data, c.FieldPath)
	if envelope.IsAbsent(value) || value == nil {
		return false
	}

	switch c.Operator {
	case OpEqual:
		return compareEqual(value, c.Value)
	case OpNotEqual:
		return !compareEqual(value, c.Value)
	case OpGreaterThan:
		cmp, ok := compareNumeric(value, c.Value)
		return ok && cmp > 0
	case OpGreaterThanOrEqual:
		cmp, ok := compareNumeric(value, c.Value)
		return ok && cmp >= 0
	case OpLessThan:
		cmp, ok := compareNumeric(value, c.Value)
		return ok && cmp < 0
	case OpLessThanOrEqual:
		cmp, ok := compareNumeric(value, c.Value)
		return ok && cmp <= 0
	case OpIn:
		return membership(value, c.Value)
	case OpNotIn:
		return !membership(value, c.Value)
	case OpContains:
		return membership(c.Value, value)
	case OpNotContains:
		return !membership(c.Value, value)
	default:
		return false
	}
}

func compareEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return envelope.Stringify(a) == envelope.Stringify(b)
}

func compareNumeric(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// membership reports whether value is a member of container, which must
// be a slice for IN/NOT_IN, or reports substring containment when
// container is a string (CONTAINS/NOT_CONTAINS on the field value).
func membership(value, container any) bool {
	switch c := container.(type) {
	case []any:
		for _, item := range c {
			if compareEqual(item, value) {
				return true
			}
		}
		return false
	case []string:
		want := envelope.Stringify(value)
		for _, item := range c {
			if item == want {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(c, envelope.Stringify(value))
	default:
		return false
	}
}
