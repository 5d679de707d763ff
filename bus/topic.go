package bus

// Topic helpers build the hierarchical topic strings from spec §4.6:
// <registry-root> for global system metadata, <system-uid>/status for one
// system's lifecycle events, <system-uid>/<stream-name> for one of its data
// streams.

// RegistryRoot is the topic carrying system/FOI registration events not
// scoped to any one system.
const RegistryRoot = "_registry"

// IngestTopic is the single topic every ingress source (MQTT, REST push, or
// otherwise) publishes raw producer events to. The persistence bridge is
// its one subscriber; once an event is persisted, the bridge republishes
// the materialized result onto the per-system/stream topics below for live
// REST subscribers (spec §4's data flow: producers -> bus -> bridge ->
// stores -> bus fans out again).
const IngestTopic = "_ingest"

// SystemStatusTopic is the topic a system's status events publish to.
func SystemStatusTopic(systemUID string) string {
	return systemUID + "/status"
}

// StreamTopic is the topic one of a system's data streams publishes
// observations to.
func StreamTopic(systemUID, outputName string) string {
	return systemUID + "/" + outputName
}
