// Package api is the resource handler core from spec §4.8: a generic
// CRUD/list/count/stream dispatch over a path stack, parameterized per
// resource kind by a ResourceAdapter value instead of a class hierarchy
// (spec §9: "reframe as a single generic CRUD core that takes an interface
// object... variants become values, not subclasses").
package api

import (
	"context"
	"net/url"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/filter"
	"github.com/sensorhub-io/hub/store"
)

// EntityFilter is the narrow shape a resolved query filter must provide:
// spec §4.1's ground-truth predicate. filter.System and filter.FOI already
// satisfy this with no adapter code required.
type EntityFilter[T any] interface {
	Test(e T, isLatest bool, now core.Instant) bool
}

// FeatureResourceStore is the subset of *store.FeatureStore[T]'s method set
// the generic handler needs. *store.FeatureStore[T] already implements it
// for any T; this interface exists so Handler doesn't depend on the
// concrete store type, only the shape spec §4.2 gives every versioned
// feature store.
type FeatureResourceStore[T any] interface {
	Add(ctx context.Context, e T) (core.FeatureKey, error)
	AddVersion(ctx context.Context, e T) (core.FeatureKey, error)
	Put(ctx context.Context, key core.FeatureKey, e T) (T, error)
	GetCurrentVersion(ctx context.Context, internalID int64) (T, core.FeatureKey, error)
	SelectEntries(ctx context.Context, ids filter.IDSet, test func(T, bool, core.Instant) bool) (store.Cursor[T], error)
	RemoveEntries(ctx context.Context, ids filter.IDSet, test func(T, bool, core.Instant) bool) (int, error)
	ResolveUID(ctx context.Context, uid string) (int64, error)
}

// ResourceAdapter supplies the per-resource-kind pieces spec §9 asks for:
// validate and buildFilter (query parsing). decodeKey/encodeKey are handled
// once, centrally, by Handler itself via a shared core.IDScrambler, since
// every feature-typed resource decodes external IDs the same way; only
// validation and filter construction actually vary per resource kind.
type ResourceAdapter[T any, F EntityFilter[T]] struct {
	// Name identifies the resource kind in log lines ("systems",
	// "featuresOfInterest").
	Name string
	// Validate rejects a record failing the resource's own invariants
	// (spec §8: uid non-empty and >= 12 bytes, name non-empty) before it
	// reaches the store.
	Validate func(T) error
	// ParseQuery builds the resource's filter value from the request's
	// query string (bbox/p:/validTime, spec §6).
	ParseQuery func(q url.Values) (F, error)
}
