package core

// FeatureKey identifies one version of a system, procedure, or feature of
// interest: the pair (internalID, validTime) from spec §3.
type FeatureKey struct {
	InternalID int64
	ValidTime  Instant
}

// GeometryOp enumerates the spatial predicate operators from spec §4.1.
type GeometryOp int

const (
	GeomIntersects GeometryOp = iota
	GeomContains
	GeomWithinDistance
)

// Geometry is an opaque WKB-encoded point or polygon plus a precomputed
// bounding box, so filter intersection can reject disjoint regions without
// invoking full geometry math (out of scope per spec §1).
type Geometry struct {
	WKB  []byte
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Disjoint reports whether two bounding boxes cannot possibly overlap. A
// false result is NOT a guarantee of intersection — callers must still run
// the full geometry predicate (delegated to an external collaborator) when
// boxes overlap.
func (g Geometry) Disjoint(other Geometry) bool {
	return g.MaxX < other.MinX || other.MaxX < g.MinX ||
		g.MaxY < other.MinY || other.MaxY < g.MinY
}

// Properties holds a system/FOI's typed property bag; values are either a
// string (matched with wildcard patterns) or a float64 (matched exactly),
// per spec §4.1.
type Properties map[string]any

// System is the describing metadata for a producer (system or procedure),
// spec §3.
type System struct {
	InternalID int64
	UID        string
	Name       string
	Description string
	Geom       *Geometry
	Properties Properties
	ParentID   int64 // 0 = root
	ValidTime  Instant
}

// FOI is a feature of interest: same shape as System, with no implicit link
// to the system(s) that observed it — that link lives in the observations
// that reference it (many-to-many, spec §3).
type FOI struct {
	InternalID  int64
	UID         string
	Name        string
	Description string
	Geom        *Geometry
	Properties  Properties
	ParentID    int64
	ValidTime   Instant
}

// RecordField describes one leaf of a data stream's record structure, used
// for structural-compatibility checks (spec §4.3). Nested records are
// expressed by Children being non-empty; Children's ordering is significant
// for "same tree shape."
type RecordField struct {
	Name     string
	DataType string // e.g. "double", "string", "boolean", "record", "array"
	Unit     string // relaxed in compatibility checks, strict in equality
	Children []RecordField
}

// RecordStructure is the tree of fields a data stream's observations carry.
type RecordStructure struct {
	Name   string
	Fields []RecordField
}

// DataStream is one output channel of a system over a validity interval,
// spec §3.
type DataStream struct {
	DataStreamID       int64
	SystemID           int64
	OutputName         string
	RecordStructure    RecordStructure
	RecordEncoding     CompressionType
	ValidTime          Instant
	ObservedTimeRangeBegin Instant
	ObservedTimeRangeEnd   Instant
	ResultTimeRangeBegin   Instant
	ResultTimeRangeEnd     Instant
}

// NoFOI is the sentinel FOI internal ID used when an observation has no
// associated feature of interest (spec §4.7 step 3).
const NoFOI int64 = 0

// Series identifies the concrete (dataStream, FOI, resultTime) triple under
// which observations accumulate, spec §3.
type Series struct {
	SeriesID      int64
	DataStreamID  int64
	FoiID         int64
	ResultTime    Instant
}

// FieldValues holds one observation's decoded result fields, keyed by
// record field name, mirroring the teacher's own FieldValues shape in
// core/fields.go but without the TSDB-specific float/int/bool union: result
// payloads here are opaque byte blocks (resultBlock) plus an optional
// decoded preview map used by the REST serializer.
type FieldValues map[string]any

// ObsData is one observation: the value half of the (seriesID,
// phenomenonTime) -> ObsData primary index, spec §3.
type ObsData struct {
	SeriesID       int64
	PhenomenonTime Instant
	ResultTime     Instant
	ResultBlock    []byte // opaque bytes, stored as supplied (not compressed by the store)
	Fields         FieldValues
}
