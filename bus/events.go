package bus

import "github.com/sensorhub-io/hub/core"

// DataEvent is the payload published on IngestTopic for one inbound
// producer data message, spec §4.7 step 1: which system and output
// produced it, its decoded field values, an optional FOI UID, and the
// wall-clock time it was received — the phenomenonTime fallback when the
// record carries no time column (spec §4.7 step 4).
type DataEvent struct {
	SystemUID  string
	OutputName string
	FOIUID     string // empty: no explicit FOI on this event
	Fields     core.FieldValues
	EventTime  core.Instant
}

// FOIEvent is published on IngestTopic when a producer registers or
// updates a feature of interest, spec §4.7's "feature-of-interest events".
type FOIEvent struct {
	SystemUID string
	FOI       core.FOI
}
