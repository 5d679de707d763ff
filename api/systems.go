package api

import (
	"net/url"

	"github.com/sensorhub-io/hub/bus"
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
)

// SystemAdapter builds the ResourceAdapter backing the /systems collection.
func SystemAdapter() ResourceAdapter[core.System, filter.System] {
	return ResourceAdapter[core.System, filter.System]{
		Name:       "systems",
		Validate:   validateFeature[core.System](func(s core.System) (string, string) { return s.UID, s.Name }),
		ParseQuery: parseSystemQuery,
	}
}

// FOIAdapter builds the ResourceAdapter backing the /featuresOfInterest
// collection. FOIs share the exact same versioned-entity shape as systems
// (spec §3), so the only per-resource piece is the query parser — FOIs
// have no parent-ID clause.
func FOIAdapter() ResourceAdapter[core.FOI, filter.FOI] {
	return ResourceAdapter[core.FOI, filter.FOI]{
		Name:       "featuresOfInterest",
		Validate:   validateFeature[core.FOI](func(f core.FOI) (string, string) { return f.UID, f.Name }),
		ParseQuery: parseFOIQuery,
	}
}

// minUIDLength is spec §8's invariant: "for every feature f stored,
// f.uid != empty and |f.uid| >= 12".
const minUIDLength = 12

// validateFeature builds a Validate closure shared by every feature-typed
// resource (systems, FOIs): both must carry a sufficiently long uid and a
// non-empty name (spec §8).
func validateFeature[T any](fields func(T) (uid, name string)) func(T) error {
	return func(e T) error {
		uid, name := fields(e)
		if len(uid) < minUIDLength {
			return &core.ValidationError{Field: "uid", Value: uid, Message: "must be at least 12 characters"}
		}
		if name == "" {
			return &core.ValidationError{Field: "name", Message: "must not be empty"}
		}
		return nil
	}
}

func parseSystemQuery(q url.Values) (filter.System, error) {
	f := filter.AnySystem()
	vt, err := parseValidTime(q)
	if err != nil {
		return filter.System{}, err
	}
	f = f.WithValidTime(vt)
	f = f.WithProperties(parseProperties(q))
	region, err := parseBBox(q)
	if err != nil {
		return filter.System{}, err
	}
	f = f.WithRegion(region)
	return f, nil
}

func parseFOIQuery(q url.Values) (filter.FOI, error) {
	f := filter.AnyFOI()
	vt, err := parseValidTime(q)
	if err != nil {
		return filter.FOI{}, err
	}
	f = f.WithValidTime(vt)
	f = f.WithProperties(parseProperties(q))
	region, err := parseBBox(q)
	if err != nil {
		return filter.FOI{}, err
	}
	f = f.WithRegion(region)
	return f, nil
}

// systemTopic is a System's live-push topic, spec §6: "urn:osh:system:
// <systemUid>" standing in here for bus.SystemStatusTopic's own string
// form (see bus/topic.go).
func systemTopic(s core.System) string { return bus.SystemStatusTopic(s.UID) }
