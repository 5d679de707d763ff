// Package bridge is the persistence bridge from spec §4.7: it subscribes
// to producer data/FOI events on the bus, materializes systems, data
// streams and observations on first sighting, and republishes the
// materialized result for live REST subscribers. Grounded on the teacher's
// hooks/hooks.go event style (a typed payload plus a manager that fans it
// out to listeners) and on engine/pubsub.go's Subscribe/Publish contract,
// which bus.Bus already generalizes.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/sensorhub-io/hub/bus"
	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/db"
)

// defaultMaxConcurrentEvents bounds how many producer events the bridge
// processes at once. golang.org/x/sync/semaphore.Weighted is the correct
// fit here (unlike bus/subscription.go's demand counter, see DESIGN.md):
// every Acquire is matched by exactly one Release, which is exactly what
// Weighted requires to avoid its "released more than held" panic.
const defaultMaxConcurrentEvents = 32

const (
	defaultBreakerMaxRequests      = 1
	defaultBreakerInterval         = time.Minute
	defaultBreakerTimeout          = 30 * time.Second
	defaultBreakerFailureThreshold = 5
)

// Options configures a Bridge.
type Options struct {
	Logger *slog.Logger

	// MaxConcurrentEvents bounds concurrent event-processing goroutines.
	// Defaults to 32.
	MaxConcurrentEvents int64

	// Circuit breaker tuning, one breaker per producer system UID: after a
	// run of failures from one producer, its further events are refused
	// without touching the store until the breaker half-opens. Each refused
	// event is still logged.
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerFailureThreshold uint32
}

// Bridge wires the bus's IngestTopic to a db.Facade.
type Bridge struct {
	facade *db.Facade
	eventBus *bus.Bus
	logger *slog.Logger

	sem *semaphore.Weighted
	timeIdx *timeIndexer

	systemCacheMu sync.RWMutex
	systemCache   map[string]int64 // systemUID -> systemID

	currentFOIMu sync.Mutex
	currentFOI   map[int64]int64 // systemID -> foiID

	breakersMu  sync.Mutex
	breakers    map[string]*gobreaker.CircuitBreaker[any]
	breakerOpts Options

	dataSub *bus.Subscription
	foiSub  *bus.Subscription

	wg sync.WaitGroup
}

// New builds a Bridge over facade and b. Call Start to begin consuming
// producer events.
func New(facade *db.Facade, b *bus.Bus, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := opts.MaxConcurrentEvents
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentEvents
	}
	return &Bridge{
		facade:      facade,
		eventBus:    b,
		logger:      logger,
		sem:         semaphore.NewWeighted(maxConcurrent),
		timeIdx:     newTimeIndexer(),
		systemCache: make(map[string]int64),
		currentFOI:  make(map[int64]int64),
		breakers:    make(map[string]*gobreaker.CircuitBreaker[any]),
		breakerOpts: opts,
	}
}

// Start subscribes to bus.IngestTopic for both data and FOI events. Each
// subscription replenishes its own demand by one immediately after
// processing the event it just consumed, so the bridge always has exactly
// one unit of outstanding demand and never accumulates an unbounded credit
// balance (spec §4.6's demand model, applied to an always-on consumer).
func (br *Bridge) Start() {
	br.dataSub = br.eventBus.Subscribe(bus.IngestTopic, []any{bus.DataEvent{}}, func(evt bus.Event) {
		br.handleDataEvent(evt)
		br.dataSub.Request(1)
	})
	br.dataSub.Request(1)

	br.foiSub = br.eventBus.Subscribe(bus.IngestTopic, []any{bus.FOIEvent{}}, func(evt bus.Event) {
		br.handleFOIEvent(evt)
		br.foiSub.Request(1)
	})
	br.foiSub.Request(1)
}

// Stop unregisters both subscriptions and waits for in-flight deliveries to
// drain, spec §5's cancellation contract for the bridge.
func (br *Bridge) Stop() {
	if br.dataSub != nil {
		br.dataSub.Cancel()
	}
	if br.foiSub != nil {
		br.foiSub.Cancel()
	}
	br.wg.Wait()
}

func (br *Bridge) handleDataEvent(evt bus.Event) {
	data, ok := evt.Payload.(bus.DataEvent)
	if !ok {
		return
	}
	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		ctx := context.Background()
		if err := br.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer br.sem.Release(1)
		br.processDataEvent(ctx, data)
	}()
}

func (br *Bridge) handleFOIEvent(evt bus.Event) {
	foiEvt, ok := evt.Payload.(bus.FOIEvent)
	if !ok {
		return
	}
	// Processed on the publishing goroutine, so the current-FOI cache is
	// updated before any data event published after this one is handled.
	ctx := context.Background()
	if err := br.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer br.sem.Release(1)
	br.processFOIEvent(ctx, foiEvt)
}

func (br *Bridge) breakerFor(systemUID string) *gobreaker.CircuitBreaker[any] {
	br.breakersMu.Lock()
	defer br.breakersMu.Unlock()
	if cb, ok := br.breakers[systemUID]; ok {
		return cb
	}

	maxRequests := br.breakerOpts.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = defaultBreakerMaxRequests
	}
	interval := br.breakerOpts.BreakerInterval
	if interval <= 0 {
		interval = defaultBreakerInterval
	}
	timeout := br.breakerOpts.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	failureThreshold := br.breakerOpts.BreakerFailureThreshold
	if failureThreshold == 0 {
		failureThreshold = defaultBreakerFailureThreshold
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "bridge:" + systemUID,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			br.logger.Warn("bridge circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
	br.breakers[systemUID] = cb
	return cb
}

func (br *Bridge) processDataEvent(ctx context.Context, evt bus.DataEvent) {
	cb := br.breakerFor(evt.SystemUID)
	_, err := cb.Execute(func() (any, error) {
		return nil, br.persistDataEvent(ctx, evt)
	})
	if err != nil {
		br.logger.Warn("dropping producer data event", "system_uid", evt.SystemUID, "output", evt.OutputName, "error", err)
	}
}

// persistDataEvent implements spec §4.7's five-step algorithm for one data
// event.
func (br *Bridge) persistDataEvent(ctx context.Context, evt bus.DataEvent) error {
	systemID, err := br.resolveOrCreateSystem(ctx, evt.SystemUID)
	if err != nil {
		return fmt.Errorf("resolve system %q: %w", evt.SystemUID, err)
	}

	structure := inferRecordStructure(evt.Fields)
	ds, _, err := br.facade.DataStreams.Register(ctx, systemID, evt.OutputName, structure, core.CompressionNone)
	if err != nil {
		return fmt.Errorf("register data stream %q: %w", evt.OutputName, err)
	}

	foiID, err := br.resolveFOI(ctx, systemID, evt.FOIUID)
	if err != nil {
		return err
	}

	phenomenonTime := extractPhenomenonTime(br.timeIdx, ds.DataStreamID, structure, evt.Fields, evt.EventTime)
	resultTime := evt.EventTime

	if _, err := br.facade.Observations.Add(ctx, ds.DataStreamID, foiID, resultTime, phenomenonTime, nil, evt.Fields); err != nil {
		return fmt.Errorf("add observation: %w", err)
	}

	br.eventBus.Publish(bus.StreamTopic(evt.SystemUID, evt.OutputName), evt)
	return nil
}

func (br *Bridge) processFOIEvent(ctx context.Context, evt bus.FOIEvent) {
	cb := br.breakerFor(evt.SystemUID)
	_, err := cb.Execute(func() (any, error) {
		return nil, br.persistFOIEvent(ctx, evt)
	})
	if err != nil {
		br.logger.Warn("dropping producer FOI event", "system_uid", evt.SystemUID, "error", err)
	}
}

// persistFOIEvent upserts the feature and updates the system's "current
// FOI" cache, spec §4.7: "subsequent observations from that system inherit
// it until another FOI event arrives."
func (br *Bridge) persistFOIEvent(ctx context.Context, evt bus.FOIEvent) error {
	systemID, err := br.resolveOrCreateSystem(ctx, evt.SystemUID)
	if err != nil {
		return fmt.Errorf("resolve system %q: %w", evt.SystemUID, err)
	}

	foiID, err := br.upsertFOI(ctx, evt.FOI)
	if err != nil {
		return fmt.Errorf("upsert foi %q: %w", evt.FOI.UID, err)
	}

	br.currentFOIMu.Lock()
	br.currentFOI[systemID] = foiID
	br.currentFOIMu.Unlock()

	br.eventBus.Publish(bus.SystemStatusTopic(evt.SystemUID), evt)
	return nil
}

// resolveOrCreateSystem implements spec §4.7 step 1. An empty UID gets one
// generated via google/uuid: original_source's SystemRegistry supports
// anonymous producers registering without a caller-supplied UID, a case
// spec.md's distillation omits.
func (br *Bridge) resolveOrCreateSystem(ctx context.Context, systemUID string) (int64, error) {
	if systemUID == "" {
		systemUID = uuid.NewString()
	}

	br.systemCacheMu.RLock()
	id, ok := br.systemCache[systemUID]
	br.systemCacheMu.RUnlock()
	if ok {
		return id, nil
	}

	_, key, err := br.facade.Systems.GetCurrentVersionByUID(ctx, systemUID)
	if err == nil {
		br.cacheSystem(systemUID, key.InternalID)
		return key.InternalID, nil
	}
	if !core.IsNotFound(err) {
		return 0, err
	}

	key, err = br.facade.Systems.Add(ctx, core.System{UID: systemUID, Name: systemUID})
	if err != nil {
		if core.IsAlreadyExists(err) {
			// Lost a race with another goroutine registering the same UID.
			if _, existing, getErr := br.facade.Systems.GetCurrentVersionByUID(ctx, systemUID); getErr == nil {
				br.cacheSystem(systemUID, existing.InternalID)
				return existing.InternalID, nil
			}
		}
		return 0, err
	}
	br.cacheSystem(systemUID, key.InternalID)
	return key.InternalID, nil
}

func (br *Bridge) cacheSystem(uid string, id int64) {
	br.systemCacheMu.Lock()
	br.systemCache[uid] = id
	br.systemCacheMu.Unlock()
}

// resolveFOI implements spec §4.7 step 3: an explicit, known FOI UID wins;
// an explicit, unknown one fails the event ("Unknown FOI"); an absent one
// falls back to the system's cached "current FOI", defaulting to
// core.NoFOI when no FOI event has arrived yet for this system.
func (br *Bridge) resolveFOI(ctx context.Context, systemID int64, foiUID string) (int64, error) {
	if foiUID != "" {
		_, key, err := br.facade.FOIs.GetCurrentVersionByUID(ctx, foiUID)
		if core.IsNotFound(err) {
			return 0, fmt.Errorf("unknown FOI %q", foiUID)
		}
		if err != nil {
			return 0, err
		}
		return key.InternalID, nil
	}

	br.currentFOIMu.Lock()
	defer br.currentFOIMu.Unlock()
	if id, ok := br.currentFOI[systemID]; ok {
		return id, nil
	}
	return core.NoFOI, nil
}

// upsertFOI implements spec §4.7's "FOI events upsert the feature": adds it
// on first sighting, appends a new version only if its description
// changed.
func (br *Bridge) upsertFOI(ctx context.Context, foi core.FOI) (int64, error) {
	current, key, err := br.facade.FOIs.GetCurrentVersionByUID(ctx, foi.UID)
	if core.IsNotFound(err) {
		newKey, addErr := br.facade.FOIs.Add(ctx, foi)
		if addErr != nil {
			return 0, addErr
		}
		return newKey.InternalID, nil
	}
	if err != nil {
		return 0, err
	}
	if foiDescriptionEqual(current, foi) {
		return key.InternalID, nil
	}
	newKey, err := br.facade.FOIs.AddVersion(ctx, foi)
	if err != nil {
		return 0, err
	}
	return newKey.InternalID, nil
}

func foiDescriptionEqual(a, b core.FOI) bool {
	return a.Name == b.Name && a.Description == b.Description
}
