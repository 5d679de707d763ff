package bridge

import (
	"sort"
	"strings"
	"sync"

	"github.com/sensorhub-io/hub/core"
)

// timeIndexer resolves which field of a data stream's record structure
// carries the phenomenonTime, caching the answer per dataStreamID so a hot
// stream's observations don't re-walk the field tree on every event (spec
// §4.7 step 4: "extract phenomenonTime via a cached indexer over the
// record schema").
type timeIndexer struct {
	mu   sync.RWMutex
	byDS map[int64]string // dataStreamID -> time field name, "" if none
}

func newTimeIndexer() *timeIndexer {
	return &timeIndexer{byDS: make(map[int64]string)}
}

func (idx *timeIndexer) fieldFor(dataStreamID int64, structure core.RecordStructure) string {
	idx.mu.RLock()
	name, ok := idx.byDS[dataStreamID]
	idx.mu.RUnlock()
	if ok {
		return name
	}

	name = findTimeField(structure.Fields)
	idx.mu.Lock()
	idx.byDS[dataStreamID] = name
	idx.mu.Unlock()
	return name
}

func findTimeField(fields []core.RecordField) string {
	for _, f := range fields {
		if f.DataType == "time" {
			return f.Name
		}
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, "time") || strings.EqualFold(f.Name, "phenomenonTime") {
			return f.Name
		}
	}
	return ""
}

// inferRecordStructure derives a RecordStructure from a decoded field map's
// runtime shape. Producers that attach no separate schema message (the MQTT
// ingress, for one) have their payload's own shape stand in as the record
// description spec §4.7 step 2 asks for; a field literally named "time" or
// "phenomenonTime" is tagged DataType "time" so the indexer above finds it
// without a user-supplied schema. Fields are sorted by name so two events
// with the same keys always describe structurally identical streams,
// matching store.RecordStructureIdentical's order-sensitive comparison.
func inferRecordStructure(fields core.FieldValues) core.RecordStructure {
	rf := make([]core.RecordField, 0, len(fields))
	for name, v := range fields {
		rf = append(rf, core.RecordField{Name: name, DataType: inferDataType(name, v)})
	}
	sort.Slice(rf, func(i, j int) bool { return rf[i].Name < rf[j].Name })
	return core.RecordStructure{Name: "record", Fields: rf}
}

func inferDataType(name string, v any) string {
	if strings.EqualFold(name, "time") || strings.EqualFold(name, "phenomenonTime") {
		return "time"
	}
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return "double"
	case bool:
		return "boolean"
	default:
		return "string"
	}
}

// extractPhenomenonTime implements spec §4.7 step 4: use the indexed time
// field if the record has one and it decodes to a time value, otherwise
// fall back to the event's own receipt time.
func extractPhenomenonTime(idx *timeIndexer, dataStreamID int64, structure core.RecordStructure, fields core.FieldValues, fallback core.Instant) core.Instant {
	name := idx.fieldFor(dataStreamID, structure)
	if name == "" {
		return fallback
	}
	v, ok := fields[name]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case core.Instant:
		return t
	case int64:
		return core.Instant(t)
	case float64:
		return core.Instant(t)
	}
	return fallback
}
