// Package transform builds per-target outgoing payloads from an
// envelope: field mapping, constant injection, field dropping, and
// optional AEAD envelope wrapping.
package transform

import (
	"github.com/ocx/gateway/internal/crypto"
	"github.com/ocx/gateway/internal/envelope"
)

// Config is a target's transform_config, per spec.md §3.
type Config struct {
	FieldMapping map[string]string // source dotted path -> target key
	AddFields    map[string]any    // constant key -> value
	DropFields   []string
	Encrypt      bool
}

// Transformer applies a Config against envelope data to build a target's
// outgoing payload.
type Transformer struct {
	cryptoSvc *crypto.Service
}

// New creates a Transformer. cryptoSvc may be nil if no target requests
// encryption.
func New(cryptoSvc *crypto.Service) *Transformer {
	return &Transformer{cryptoSvc: cryptoSvc}
}

// Apply builds the outgoing payload for data under cfg:
//  1. for each (source_path, target_key) in FieldMapping, resolve
//     source_path by dotted lookup and set target_key; missing source
//     paths are omitted silently.
//  2. merge AddFields, without overriding values set by FieldMapping.
//  3. drop DropFields.
//  4. if cfg.Encrypt, wrap the result as {encrypted_payload: base64(...)}.
func (t *Transformer) Apply(cfg Config, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(cfg.FieldMapping)+len(cfg.AddFields))

	for sourcePath, targetKey := range cfg.FieldMapping {
		v := envelope.Lookup(data, sourcePath)
		if envelope.IsAbsent(v) {
			continue
		}
		out[targetKey] = v
	}

	for k, v := range cfg.AddFields {
		if _, mapped := out[k]; mapped {
			continue // mapped fields win over add_fields
		}
		out[k] = v
	}

	for _, field := range cfg.DropFields {
		delete(out, field)
	}

	if !cfg.Encrypt {
		return out, nil
	}
	return t.cryptoSvc.WrapPayload(out)
}
