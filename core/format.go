package core

import "fmt"

// This file centralizes the versioned-value envelope every record written
// to the KV engine is wrapped in (§6: "Versioned value serialization tags
// every stored value with a schema version").

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current schema version for all persisted entity
	// and observation values. Readers accept any version <= FormatVersion
	// and must reject newer versions with a clear error.
	FormatVersion uint8 = 1
)

// EnvelopeHeaderSize is the fixed prefix written before every encoded value:
// one byte of schema version followed by one byte of compression type.
const EnvelopeHeaderSize = 2

// EncodeEnvelope prepends the schema version and compression type to an
// already-serialized payload.
func EncodeEnvelope(payload []byte, ct CompressionType) []byte {
	out := make([]byte, EnvelopeHeaderSize+len(payload))
	out[0] = FormatVersion
	out[1] = byte(ct)
	copy(out[EnvelopeHeaderSize:], payload)
	return out
}

// DecodeEnvelope splits a stored value back into its schema version,
// compression type and payload, rejecting versions newer than this binary
// understands.
func DecodeEnvelope(stored []byte) (version uint8, ct CompressionType, payload []byte, err error) {
	if len(stored) < EnvelopeHeaderSize {
		return 0, 0, nil, fmt.Errorf("stored value too short to contain an envelope header: %d bytes", len(stored))
	}
	version = stored[0]
	if version > FormatVersion {
		return 0, 0, nil, fmt.Errorf("stored value has schema version %d, newer than this binary supports (%d)", version, FormatVersion)
	}
	ct = CompressionType(stored[1])
	return version, ct, stored[EnvelopeHeaderSize:], nil
}
