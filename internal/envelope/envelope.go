// Package envelope defines the message envelope that flows through the
// bus from ingress to forwarding, and the dotted-path lookup helper used
// by the routing engine and transformer to read into it.
package envelope

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Envelope is the in-flight message carried across bus topics. Only
// MessageID is required from ingress onward; every other field is
// populated as the message moves through the pipeline. Envelope is a
// plain map-backed structure (rather than a fixed struct) because
// parsed_data, payload, and routing decoration are all heterogeneous and
// the routing/transform layers need dotted-path lookups into them.
type Envelope struct {
	MessageID        string
	Timestamp        time.Time
	SourceProtocol    string
	SourceID          string
	SourceAddress     string
	RawData           []byte
	RawText           string
	Payload           map[string]any
	ParsedData        map[string]any
	IsEncrypted       bool
	EncryptedPayload  string
	ParseError        string
	DecryptError      string
	MatchedRules      []string
	TargetSystemIDs   []string
}

// New creates an envelope with a generated MessageID and current
// timestamp; adapters call this at ingress per spec.md §3.
func New(messageID, sourceProtocol, sourceID, sourceAddress string) *Envelope {
	return &Envelope{
		MessageID:      messageID,
		Timestamp:      time.Now(),
		SourceProtocol: sourceProtocol,
		SourceID:       sourceID,
		SourceAddress:  sourceAddress,
	}
}

// ToMap flattens the envelope into the dotted-path-addressable form the
// routing engine and transformer operate on.
func (e *Envelope) ToMap() map[string]any {
	m := map[string]any{
		"message_id":      e.MessageID,
		"timestamp":       e.Timestamp,
		"source_protocol": e.SourceProtocol,
		"source_id":       e.SourceID,
		"source_address":  e.SourceAddress,
		"is_encrypted":    e.IsEncrypted,
	}
	if e.RawData != nil {
		m["raw_data"] = e.RawData
	}
	if e.RawText != "" {
		m["raw_text"] = e.RawText
	}
	if e.Payload != nil {
		m["payload"] = e.Payload
	}
	if e.ParsedData != nil {
		m["parsed_data"] = e.ParsedData
	}
	if e.EncryptedPayload != "" {
		m["encrypted_payload"] = e.EncryptedPayload
	}
	if e.ParseError != "" {
		m["parse_error"] = e.ParseError
	}
	if e.DecryptError != "" {
		m["decrypt_error"] = e.DecryptError
	}
	if e.MatchedRules != nil {
		m["matched_rules"] = e.MatchedRules
	}
	if e.TargetSystemIDs != nil {
		m["target_system_ids"] = e.TargetSystemIDs
	}
	return m
}

// absent is a sentinel distinct from a legitimate nil/null field value,
// per spec.md §9 ("a standalone helper returning an absent marker
// distinct from a legitimate null").
type absentType struct{}

var Absent = absentType{}

// Lookup resolves a dotted field path (e.g. "parsed_data.temperature")
// against a heterogeneous map of maps/slices/scalars. Returns Absent if
// any segment along the path does not exist; returns a legitimate nil if
// the path exists but the stored value is nil.
func Lookup(data map[string]any, path string) any {
	if path == "" {
		return Absent
	}
	parts := strings.Split(path, ".")

	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return Absent
		}
		v, exists := m[part]
		if !exists {
			return Absent
		}
		current = v
	}
	return current
}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absentType)
	return ok
}

// Stringify renders a field value (raw_text, parsed_data, raw_data) to a
// string for glob pattern matching, mirroring the Python
// `_matches_source_config` candidate-selection fallback chain.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return toGoString(x)
	}
}

func toGoString(v any) string {
	// map/slice values fall back to Go's %v-equivalent rendering, matching
	// the Python fallback of str(parsed_data) for a dict/list.
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
