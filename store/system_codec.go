package store

import (
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/kvstore"
)

// SystemCodec adapts core.System to EntityCodec.
type SystemCodec struct{}

func (SystemCodec) UID(e core.System) string                 { return e.UID }
func (SystemCodec) InternalID(e core.System) int64            { return e.InternalID }
func (SystemCodec) SetInternalID(e *core.System, id int64)    { e.InternalID = id }
func (SystemCodec) ValidTime(e core.System) core.Instant      { return e.ValidTime }
func (SystemCodec) SetValidTime(e *core.System, t core.Instant) { e.ValidTime = t }

// FOICodec adapts core.FOI to EntityCodec.
type FOICodec struct{}

func (FOICodec) UID(e core.FOI) string                 { return e.UID }
func (FOICodec) InternalID(e core.FOI) int64            { return e.InternalID }
func (FOICodec) SetInternalID(e *core.FOI, id int64)    { e.InternalID = id }
func (FOICodec) ValidTime(e core.FOI) core.Instant      { return e.ValidTime }
func (FOICodec) SetValidTime(e *core.FOI, t core.Instant) { e.ValidTime = t }

// NewSystemStore builds the systems/procedures feature store.
func NewSystemStore(kv *kvstore.Store, alloc *core.IDAllocator, clock core.Clock) *FeatureStore[core.System] {
	return NewFeatureStore[core.System](kv, "systems", SystemCodec{}, alloc, clock)
}

// NewFOIStore builds the features-of-interest feature store.
func NewFOIStore(kv *kvstore.Store, alloc *core.IDAllocator, clock core.Clock) *FeatureStore[core.FOI] {
	return NewFeatureStore[core.FOI](kv, "fois", FOICodec{}, alloc, clock)
}
