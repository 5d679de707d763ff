package store

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/sensorhub-io/hub/core"
)

// EntityCodec lets FeatureStore operate generically over any versioned
// entity (core.System, core.FOI) without resorting to Java-style
// inheritance: the store owns key encoding and version history, the codec
// owns reading/writing the handful of fields every versioned entity shares.
// Grounded on spec §9's direction to replace deep class hierarchies with
// small interfaces plus a parametrized struct.
type EntityCodec[T any] interface {
	UID(e T) string
	InternalID(e T) int64
	SetInternalID(e *T, id int64)
	ValidTime(e T) core.Instant
	SetValidTime(e *T, t core.Instant)
}

// encodeFeatureKey packs (internalID, validTime) into the 16-byte primary
// key, big-endian so lexicographic byte order matches
// internalID-ascending-then-validTime-ascending (spec §4.2).
func encodeFeatureKey(internalID int64, validTime core.Instant) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(internalID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(validTime))
	return buf
}

func encodeIDPrefix(internalID int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(internalID))
	return buf
}

func decodeFeatureKey(key []byte) core.FeatureKey {
	return core.FeatureKey{
		InternalID: int64(binary.BigEndian.Uint64(key[0:8])),
		ValidTime:  core.Instant(binary.BigEndian.Uint64(key[8:16])),
	}
}

func encodeUIDIndexValue(internalID int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(internalID))
	return buf
}

func decodeUIDIndexValue(value []byte) int64 {
	return int64(binary.BigEndian.Uint64(value))
}

// encodeEntity/decodeEntity use JSON: entity metadata is small, infrequently
// written control-plane state whose shape evolves over time, unlike the
// hot-path observation payloads (which stay raw compressed bytes). No pack
// dependency offers a generic struct codec better suited to that than the
// standard library's own.
func encodeEntity[T any](e T) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntity[T any](data []byte) (T, error) {
	var e T
	err := json.Unmarshal(data, &e)
	return e, err
}

// decodeEnvelopedEntity reverses PutEncoded's envelope+compression wrapping
// and decodes the resulting JSON into T. Kept alongside NamedMap.GetDecoded
// (which returns raw bytes) because scans need to unwrap many values
// without allocating a []byte round trip through the NamedMap API for each.
func decodeEnvelopedEntity[T any](stored []byte) (T, error) {
	var zero T
	_, ct, payload, err := core.DecodeEnvelope(stored)
	if err != nil {
		return zero, core.WrapError(core.ErrKindDataStore, "envelope decode failed", err)
	}
	c, err := core.CompressorFor(ct)
	if err != nil {
		return zero, err
	}
	rc, err := c.Decompress(payload)
	if err != nil {
		return zero, core.WrapError(core.ErrKindDataStore, "decompress failed", err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return zero, core.WrapError(core.ErrKindDataStore, "decompress read failed", err)
	}
	return decodeEntity[T](buf)
}
