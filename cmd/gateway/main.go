package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/gateway/internal/adapters"
	"github.com/ocx/gateway/internal/bus"
	"github.com/ocx/gateway/internal/config"
	"github.com/ocx/gateway/internal/crypto"
	"github.com/ocx/gateway/internal/forwarders"
	"github.com/ocx/gateway/internal/frame"
	"github.com/ocx/gateway/internal/manager"
	"github.com/ocx/gateway/internal/metrics"
	"github.com/ocx/gateway/internal/pipeline"
	"github.com/ocx/gateway/internal/rules"
	"github.com/ocx/gateway/internal/transform"
)

func main() {
	slog.Info("starting ocx gateway")

	cfgPath := getEnvOrDefault("GATEWAY_CONFIG_PATH", "config/gateway.yaml")
	cfg, err := config.LoadGatewayConfig(cfgPath)
	if err != nil {
		log.Fatalf("load gateway config: %v", err)
	}

	eventBus := bus.New()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		redisBus := bus.NewRedisBus(eventBus, rdb, cfg.Redis.Prefix)
		if err := redisBus.Start(context.Background()); err != nil {
			slog.Warn("redis bus disabled: connection failed", "addr", cfg.Redis.Addr, "error", err)
		} else {
			slog.Info("redis bus mirroring METRICS_*/ERROR_OCCURRED", "addr", cfg.Redis.Addr)
			defer redisBus.Close()
		}
	}

	cryptoSvc := crypto.NewService()
	if err := installKeys(cryptoSvc, cfg.Keys); err != nil {
		log.Fatalf("install encryption keys: %v", err)
	}

	gatewayMetrics := metrics.New()
	routing := rules.New(eventBus, nil)
	pl := pipeline.New(eventBus, routing, cryptoSvc, gatewayMetrics, nil)
	mgr := manager.New(eventBus, routing, pl, nil)

	schemasByName := make(map[string]*frame.Schema, len(cfg.Schemas))
	for _, sc := range cfg.Schemas {
		schema := buildSchema(sc)
		if err := schema.Validate(); err != nil {
			log.Fatalf("schema %q invalid: %v", sc.Name, err)
		}
		schemasByName[sc.Name] = schema
	}

	for _, rc := range cfg.Rules {
		mgr.RegisterRoutingRule(buildRule(rc))
	}

	for _, tc := range cfg.Targets {
		if !tc.IsActive {
			continue
		}
		fwd, err := buildForwarder(tc, schemasByName[tc.SchemaName])
		if err != nil {
			log.Fatalf("target %q: %v", tc.ID, err)
		}
		if err := mgr.RegisterTargetSystem(tc.ID, buildTransformConfig(tc), fwd); err != nil {
			log.Fatalf("register target %q: %v", tc.ID, err)
		}
	}

	for _, ac := range cfg.Adapters {
		if !ac.Enabled {
			continue
		}
		schema := schemasByName[ac.SchemaName]
		if schema != nil {
			if err := mgr.RegisterFrameSchema(ac.SourceID, schema); err != nil {
				log.Fatalf("register schema for adapter %q: %v", ac.Name, err)
			}
		}
		adapter, err := adapters.New(buildAdapterSpec(ac, schema), eventBus, nil)
		if err != nil {
			log.Fatalf("adapter %q: %v", ac.Name, err)
		}
		if err := mgr.AddAdapter(adapter); err != nil {
			log.Fatalf("add adapter %q: %v", ac.Name, err)
		}
	}

	if err := mgr.Start(); err != nil {
		log.Fatalf("start gateway manager: %v", err)
	}

	httpServer := newAdminServer(cfg.Metrics, mgr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutdown signal received, stopping gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}
	if err := mgr.Stop(); err != nil {
		slog.Error("gateway manager shutdown error", "error", err)
	}
	slog.Info("ocx gateway stopped")
}

// newAdminServer builds the /health and /metrics HTTP server.
func newAdminServer(mc config.MetricsConfig, mgr *manager.Manager) *http.Server {
	addr := mc.ListenAddress
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := mc.ListenPort
	if port == 0 {
		port = 9090
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := mgr.GetStatus()
		w.Header().Set("Content-Type", "application/json")
		if !status.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"running":%v,"adapter_count":%d}`, status.Running, status.AdapterCount)
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", addr, port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// installKeys installs the key marked is_active as the crypto service's
// active key. A config with no active key leaves the service unable to
// encrypt/decrypt, which is only a problem for targets that request it.
func installKeys(svc *crypto.Service, keys []config.EncryptionKey) error {
	for _, k := range keys {
		if !k.IsActive {
			continue
		}
		secret, err := hex.DecodeString(k.SecretHex)
		if err != nil {
			return fmt.Errorf("key %q: invalid secret_hex: %w", k.ID, err)
		}
		if len(secret) != crypto.KeySize {
			return fmt.Errorf("key %q: secret must be %d bytes, got %d", k.ID, crypto.KeySize, len(secret))
		}
		key := &crypto.Key{ID: k.ID, Name: k.Name}
		copy(key.Secret[:], secret)
		svc.SetActiveKey(key)
		return nil
	}
	return nil
}

func buildSchema(sc config.SchemaConfig) *frame.Schema {
	fields := make([]frame.Field, len(sc.Fields))
	for i, fc := range sc.Fields {
		fields[i] = frame.Field{
			Name:        fc.Name,
			Offset:      fc.Offset,
			Length:      fc.Length,
			DataType:    frame.DataType(fc.DataType),
			ByteOrder:   frame.ByteOrder(fc.ByteOrder),
			Scale:       fc.Scale,
			OffsetValue: fc.OffsetValue,
			Description: fc.Description,
		}
	}

	schema := &frame.Schema{
		Name:        sc.Name,
		Version:     sc.Version,
		FrameType:   frame.FrameType(sc.FrameType),
		TotalLength: sc.TotalLength,
		HeaderLength: sc.HeaderLength,
		Fields:      fields,
	}
	if sc.Delimiter != "" {
		schema.Delimiter = []byte(sc.Delimiter)
	}
	if sc.Checksum != nil {
		schema.ChecksumType = frame.ChecksumType(sc.Checksum.Type)
		schema.ChecksumOffset = sc.Checksum.Offset
		schema.ChecksumLength = sc.Checksum.Length
	} else {
		schema.ChecksumType = frame.ChecksumNone
	}
	return schema
}

func buildRule(rc config.RuleConfig) *rules.Rule {
	conditions := make([]rules.Condition, len(rc.Conditions))
	for i, cc := range rc.Conditions {
		conditions[i] = rules.Condition{
			FieldPath: cc.FieldPath,
			Operator:  rules.Operator(cc.Operator),
			Value:     cc.Value,
		}
	}

	return &rules.Rule{
		ID:          rc.ID,
		Name:        rc.Name,
		Priority:    rc.Priority,
		IsActive:    rc.IsActive,
		IsPublished: rc.IsPublished,
		SourceConfig: rules.SourceConfig{
			Protocols: rc.SourceConfig.Protocols,
			SourceIDs: rc.SourceConfig.SourceIDs,
			Pattern:   rc.SourceConfig.Pattern,
		},
		Conditions:      conditions,
		LogicalOperator: rules.LogicalOperator(rc.LogicalOperator),
		TargetSystemIDs: rc.TargetSystemIDs,
	}
}

func buildTransformConfig(tc config.TargetConfig) transform.Config {
	return transform.Config{
		FieldMapping: tc.FieldMapping,
		AddFields:    tc.AddFields,
		DropFields:   tc.DropFields,
		Encrypt:      tc.Encrypt,
	}
}

// buildForwarder constructs the per-protocol Forwarder for tc, wrapped in
// batching per its batch_size/batch_window_ms.
func buildForwarder(tc config.TargetConfig, schema *frame.Schema) (forwarders.Forwarder, error) {
	fwdCfg := forwarders.Config{
		Timeout:     time.Duration(tc.Timeout) * time.Second,
		MaxRetries:  tc.MaxRetries,
		BatchSize:   tc.BatchSize,
		BatchWindow: time.Duration(tc.BatchWindowMS) * time.Millisecond,
		Auth:        tc.Auth,
	}

	var fwd forwarders.Forwarder
	switch tc.ProtocolType {
	case "HTTP":
		fwd = forwarders.NewHTTPForwarder(tc.Address, "", fwdCfg)
	case "MQTT":
		fwd = forwarders.NewMQTTForwarder(fmt.Sprintf("%s:%d", tc.Address, tc.Port), tc.Topic, byte(tc.QoS), tc.Retain, fwdCfg)
	case "TCP":
		fwd = forwarders.NewTCPForwarder(fmt.Sprintf("%s:%d", tc.Address, tc.Port), schema, fwdCfg)
	case "UDP":
		fwd = forwarders.NewUDPForwarder(fmt.Sprintf("%s:%d", tc.Address, tc.Port), schema, fwdCfg)
	case "WEBSOCKET":
		fwd = forwarders.NewWebSocketForwarder(tc.Address, fwdCfg)
	default:
		return nil, fmt.Errorf("unknown target protocol_type %q", tc.ProtocolType)
	}

	return forwarders.NewBatchingForwarder(fwd, fwdCfg), nil
}

func buildAdapterSpec(ac config.AdapterConfig, schema *frame.Schema) adapters.Spec {
	return adapters.Spec{
		Protocol:       ac.Protocol,
		Name:           ac.Name,
		SourceID:       ac.SourceID,
		ListenAddress:  ac.ListenAddress,
		ListenPort:     ac.ListenPort,
		BufferSize:     ac.BufferSize,
		Endpoint:       ac.Endpoint,
		Method:         ac.Method,
		Path:           ac.Path,
		MaxConnections: ac.MaxConnections,
		BrokerAddr:     ac.BrokerAddr,
		Topics:         ac.Topics,
		QoS:            byte(ac.QoS),
		AutoParse:      ac.AutoParse,
		Schema:         schema,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
