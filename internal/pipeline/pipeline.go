// Package pipeline implements the central orchestrator driving
// parse -> route -> transform -> forward across bus topics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/crypto"
	"github.com/ocx/gateway/internal/envelope"
	"github.com/ocx/gateway/internal/forwarders"
	"github.com/ocx/gateway/internal/frame"
	"github.com/ocx/gateway/internal/metrics"
	"github.com/ocx/gateway/internal/rules"
	"github.com/ocx/gateway/internal/transform"
)

// Stage names a point the pipeline reached, per spec.md §4.8.
type Stage string

const (
	StageDecrypt   Stage = "decrypt"
	StageParse     Stage = "parse"
	StageRoute     Stage = "route"
	StageTransform Stage = "transform"
	StageForward   Stage = "forward"
	StageComplete  Stage = "complete"
)

// Result is returned by ProcessMessage, the synchronous test entry point.
type Result struct {
	Success bool
	Stage   Stage
	Error   string
}

// targetBinding is a registered target: its transform config and forwarder.
type targetBinding struct {
	id          string
	transformCfg transform.Config
	forwarder   forwarders.Forwarder
}

// Pipeline subscribes to the bus and drives message flow. Registrations
// (schemas, targets) are id-keyed and idempotent: re-registering replaces
// the prior instance after cleanly stopping it.
type Pipeline struct {
	bus         *bus.Bus
	routing     *rules.Engine
	transformer *transform.Transformer
	cryptoSvc   *crypto.Service
	metrics     *metrics.Metrics
	log         *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*frame.Schema
	targets map[string]*targetBinding

	subIDs []string
}

// New constructs a Pipeline wired to b and routing. m may be nil, in
// which case no metrics are recorded.
func New(b *bus.Bus, routing *rules.Engine, cryptoSvc *crypto.Service, m *metrics.Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		bus:         b,
		routing:     routing,
		transformer: transform.New(cryptoSvc),
		cryptoSvc:   cryptoSvc,
		metrics:     m,
		log:         log.With("component", "pipeline"),
		schemas:     make(map[string]*frame.Schema),
		targets:     make(map[string]*targetBinding),
	}
}

// RegisterSchema binds a frame schema for a source_id so future <PROTO>_RECEIVED
// envelopes for that source are parsed downstream.
func (p *Pipeline) RegisterSchema(sourceID string, schema *frame.Schema) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schemas[sourceID] = schema
}

// UnregisterSchema removes a previously bound schema.
func (p *Pipeline) UnregisterSchema(sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.schemas, sourceID)
}

// RegisterTarget installs (or replaces) a target's transform config and
// forwarder. Re-registering an id stops the prior forwarder first.
func (p *Pipeline) RegisterTarget(id string, cfg transform.Config, fwd forwarders.Forwarder) error {
	p.mu.Lock()
	prior, had := p.targets[id]
	p.mu.Unlock()

	if had {
		prior.forwarder.Stop()
	}
	if err := fwd.Start(); err != nil {
		return fmt.Errorf("start forwarder %q: %w", id, err)
	}

	p.mu.Lock()
	p.targets[id] = &targetBinding{id: id, transformCfg: cfg, forwarder: fwd}
	p.mu.Unlock()
	return nil
}

// UnregisterTarget stops and removes a target's forwarder.
func (p *Pipeline) UnregisterTarget(id string) {
	p.mu.Lock()
	t, ok := p.targets[id]
	delete(p.targets, id)
	p.mu.Unlock()
	if ok {
		t.forwarder.Stop()
	}
}

// Start subscribes the pipeline to the bus topics it orchestrates.
func (p *Pipeline) Start() {
	p.subIDs = append(p.subIDs,
		p.bus.Subscribe(bus.TopicAnyReceived, p.onReceived),
		p.bus.Subscribe(bus.TopicDataParsed, p.onDataParsed),
		p.bus.Subscribe(bus.TopicRoutingDecided, p.onRoutingDecided),
	)
	p.log.Info("pipeline started")
}

// Stop unsubscribes the pipeline from the bus.
func (p *Pipeline) Stop() {
	for _, id := range p.subIDs {
		p.bus.Unsubscribe(id)
	}
	p.subIDs = nil
	p.log.Info("pipeline stopped")
}

func (p *Pipeline) onReceived(payload any, topic, source string) {
	data, ok := payload.(map[string]any)
	if !ok {
		return
	}
	defer p.recoverLog("onReceived")

	data = p.decryptIfNeeded(data)
	data = p.parseIfSchemaBound(data)
	p.bus.Publish(bus.TopicDataParsed, data, "pipeline")
}

func (p *Pipeline) onDataParsed(payload any, topic, source string) {
	data, ok := payload.(map[string]any)
	if !ok {
		return
	}
	defer p.recoverLog("onDataParsed")
	decision := p.routing.RouteMessage(data)
	if p.metrics != nil {
		for _, mr := range decision.MatchedRules {
			p.metrics.RulesMatched.WithLabelValues(mr.RuleID).Inc()
		}
	}
}

func (p *Pipeline) onRoutingDecided(payload any, topic, source string) {
	data, ok := payload.(map[string]any)
	if !ok {
		return
	}
	defer p.recoverLog("onRoutingDecided")

	targetIDs, _ := data["target_system_ids"].([]string)
	p.dispatchToTargets(context.Background(), targetIDs, data)
}

// dispatchToTargets transforms and forwards data to every target
// concurrently, per spec.md §5: "subscribers for different
// target_system_ids in a single ROUTING_DECIDED dispatch SHOULD run
// concurrently."
func (p *Pipeline) dispatchToTargets(ctx context.Context, targetIDs []string, data map[string]any) {
	var wg sync.WaitGroup
	for _, tid := range targetIDs {
		p.mu.RLock()
		t, ok := p.targets[tid]
		p.mu.RUnlock()
		if !ok {
			continue
		}

		wg.Add(1)
		go func(t *targetBinding) {
			defer wg.Done()
			defer p.recoverLog("dispatch:" + t.id)

			out, err := p.transformer.Apply(t.transformCfg, data)
			if err != nil {
				p.log.Error("transform failed", "target", t.id, "error", err)
				p.bus.Publish(bus.TopicErrorOccurred, map[string]any{
					"stage": "transform", "target_id": t.id, "error": err.Error(),
				}, "pipeline")
				return
			}

			start := time.Now()
			result, err := t.forwarder.Forward(ctx, out)
			if p.metrics != nil {
				p.metrics.ForwardDuration.WithLabelValues(t.id).Observe(time.Since(start).Seconds())
				p.metrics.ForwardTotal.WithLabelValues(t.id, string(result.Status)).Inc()
			}

			p.bus.Publish(bus.TopicForwardResult, map[string]any{
				"target_id": t.id,
				"status":    result.Status,
				"attempts":  result.Attempts,
				"error":     result.Error,
			}, "pipeline")
			if err != nil {
				p.log.Warn("forward failed", "target", t.id, "error", err)
				p.bus.Publish(bus.TopicErrorOccurred, map[string]any{
					"stage": "forward", "target_id": t.id, "error": err.Error(),
				}, "pipeline")
			}
		}(t)
	}
	wg.Wait()
}

func (p *Pipeline) decryptIfNeeded(data map[string]any) map[string]any {
	encrypted, _ := data["is_encrypted"].(bool)
	if !encrypted || p.cryptoSvc == nil {
		return data
	}
	payloadB64, _ := data["encrypted_payload"].(string)
	if payloadB64 == "" {
		return data
	}

	decrypted, err := p.cryptoSvc.UnwrapPayload(payloadB64)
	if err != nil {
		data["decrypt_error"] = err.Error()
		return data
	}
	data["payload"] = decrypted
	return data
}

func (p *Pipeline) parseIfSchemaBound(data map[string]any) map[string]any {
	sourceID := envelope.Stringify(data["source_id"])
	p.mu.RLock()
	schema, ok := p.schemas[sourceID]
	p.mu.RUnlock()
	if !ok {
		return data
	}

	raw, ok := data["raw_data"].([]byte)
	if !ok {
		return data
	}

	parsed, err := frame.NewParser(schema).Parse(raw)
	if err != nil {
		data["parse_error"] = err.Error()
		return data
	}
	data["parsed_data"] = parsed
	return data
}

func (p *Pipeline) recoverLog(where string) {
	if r := recover(); r != nil {
		p.log.Error("pipeline handler panicked", "where", where, "panic", r)
	}
}

// ProcessMessage is a synchronous test entry point driving decrypt(if
// needed) -> parse(if schema bound) -> route -> transform -> forward for
// a single message, without touching the bus, per spec.md §4.8.
func (p *Pipeline) ProcessMessage(rawData []byte, frameSchemaID string, sourceInfo map[string]any) Result {
	data := make(map[string]any, len(sourceInfo)+2)
	for k, v := range sourceInfo {
		data[k] = v
	}
	data["message_id"] = uuid.NewString()
	data["raw_data"] = rawData

	if enc, _ := data["is_encrypted"].(bool); enc {
		data = p.decryptIfNeeded(data)
		if errMsg, _ := data["decrypt_error"].(string); errMsg != "" {
			return Result{Stage: StageDecrypt, Error: errMsg}
		}
	}

	p.mu.RLock()
	schema, hasSchema := p.schemas[frameSchemaID]
	p.mu.RUnlock()
	if hasSchema {
		parsed, err := frame.NewParser(schema).Parse(rawData)
		if err != nil {
			return Result{Stage: StageParse, Error: err.Error()}
		}
		data["parsed_data"] = parsed
	}

	decision := p.routing.RouteMessage(data)
	if len(decision.TargetSystemIDs) == 0 {
		return Result{Success: true, Stage: StageComplete}
	}

	for _, tid := range decision.TargetSystemIDs {
		p.mu.RLock()
		t, ok := p.targets[tid]
		p.mu.RUnlock()
		if !ok {
			continue
		}

		out, err := p.transformer.Apply(t.transformCfg, data)
		if err != nil {
			return Result{Stage: StageTransform, Error: err.Error()}
		}

		if _, err := t.forwarder.Forward(context.Background(), out); err != nil {
			return Result{Stage: StageForward, Error: err.Error()}
		}
	}

	return Result{Success: true, Stage: StageComplete}
}
