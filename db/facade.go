// Package db composes the four entity stores behind one embedded KV handle,
// spec §4.5. Grounded on the teacher's storageEngine (engine/engine.go),
// which owns its WAL/memtable/levels/compactor as a single unit behind an
// Options struct and a Start/Close lifecycle; here the "compactor" role is
// played by a cron-scheduled auto-commit tick instead of LSM compaction,
// since the underlying engine (badger) already manages its own levels.
package db

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/sensorhub-io/hub/core"
	"github.com/sensorhub-io/hub/kvstore"
	"github.com/sensorhub-io/hub/metrics"
	"github.com/sensorhub-io/hub/store"
)

const (
	defaultAutoCommitInterval   = 30 * time.Second
	defaultAutoCommitDirtyBytes = 64 << 20 // 64 MiB
)

// Options configures a Facade. Zero-valued fields get the same sane
// defaults the teacher's StorageEngineOptions applies in
// initializeStorageEngine.
type Options struct {
	DataDir  string
	InMemory bool
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Clock    core.Clock

	// AutoCommitInterval triggers a sync once this much wall time has
	// elapsed since the last one, regardless of dirty-byte volume. Defaults
	// to 30s.
	AutoCommitInterval time.Duration
	// AutoCommitDirtyBytes triggers an out-of-cycle sync once the embedded
	// engine's pending (uncompacted) bytes cross this threshold. Defaults to
	// 64 MiB.
	AutoCommitDirtyBytes int64

	// MetricsRegistry, if non-nil, receives the facade's commit/query
	// latency digests as prometheus collectors. Nil skips registration
	// (tests can open a Facade without touching a global metrics surface).
	MetricsRegistry *prometheus.Registry
}

// Facade is the database facade from spec §4.5: it owns the single embedded
// KV handle, composes the four entity stores behind it, and serializes
// ExecuteTransaction calls and commits through one lock. Methods called
// directly on Systems, FOIs, DataStreams or Observations do not take that
// lock; each runs in its own engine transaction.
type Facade struct {
	kv     *kvstore.Store
	meta   *kvstore.NamedMap
	logger *slog.Logger
	clock  core.Clock

	mu sync.Mutex

	Systems      *store.FeatureStore[core.System]
	FOIs         *store.FeatureStore[core.FOI]
	DataStreams  *store.DataStreamStore
	Observations *store.ObservationStore

	systemAlloc     *core.IDAllocator
	foiAlloc        *core.IDAllocator
	dataStreamAlloc *core.IDAllocator
	seriesAlloc     *core.IDAllocator

	autoCommitInterval   time.Duration
	autoCommitDirtyBytes int64
	lastCommit           core.Instant
	cronSched            *cron.Cron

	commitLatency *metrics.LatencyDigest
	queryLatency  *metrics.LatencyDigest
}

// CommitLatency exposes the facade's commit-path latency digest (spec
// SPEC_FULL §4.0's ambient self-monitoring layer).
func (f *Facade) CommitLatency() *metrics.LatencyDigest { return f.commitLatency }

// QueryLatency exposes the facade's query-path latency digest. The API
// router's request-logging middleware feeds it on every read request,
// since reads all resolve to calls against these stores.
func (f *Facade) QueryLatency() *metrics.LatencyDigest { return f.queryLatency }

// Open builds a Facade over a fresh or existing embedded store, restoring
// every ID allocator's high-water mark, and starts the auto-commit
// scheduler.
func Open(opts Options) (*Facade, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = core.SystemClock
	}
	interval := opts.AutoCommitInterval
	if interval <= 0 {
		interval = defaultAutoCommitInterval
	}
	dirtyThreshold := opts.AutoCommitDirtyBytes
	if dirtyThreshold <= 0 {
		dirtyThreshold = defaultAutoCommitDirtyBytes
	}

	kv, err := kvstore.Open(kvstore.Options{
		Dir:      opts.DataDir,
		InMemory: opts.InMemory,
		Logger:   logger,
		Tracer:   opts.Tracer,
	})
	if err != nil {
		return nil, err
	}

	commitLatency, err := metrics.NewLatencyDigest()
	if err != nil {
		kv.Close()
		return nil, core.WrapError(core.ErrKindDataStore, "failed to init commit latency digest", err)
	}
	queryLatency, err := metrics.NewLatencyDigest()
	if err != nil {
		kv.Close()
		return nil, core.WrapError(core.ErrKindDataStore, "failed to init query latency digest", err)
	}
	if opts.MetricsRegistry != nil {
		opts.MetricsRegistry.MustRegister(commitLatency.Collectors(
			"sensorhub_facade_commit_latency_seconds", "Facade commit-path latency in seconds.")...)
		opts.MetricsRegistry.MustRegister(queryLatency.Collectors(
			"sensorhub_facade_query_latency_seconds", "Facade query-path latency in seconds.")...)
	}

	f := &Facade{
		kv:                   kv,
		meta:                 kv.NamedMap("meta"),
		logger:               logger,
		clock:                clk,
		autoCommitInterval:   interval,
		autoCommitDirtyBytes: dirtyThreshold,
		lastCommit:           clk.Now(),
		commitLatency:        commitLatency,
		queryLatency:         queryLatency,
	}

	if err := f.restoreAllocators(); err != nil {
		kv.Close()
		return nil, err
	}

	f.Systems = store.NewSystemStore(kv, f.systemAlloc, clk)
	f.FOIs = store.NewFOIStore(kv, f.foiAlloc, clk)
	f.DataStreams = store.NewDataStreamStore(kv, f.dataStreamAlloc, clk)
	f.Observations = store.NewObservationStore(kv, f.seriesAlloc, clk, f.DataStreams)

	f.startAutoCommit()
	return f, nil
}

const (
	allocKeySystems     = "alloc.systems"
	allocKeyFOIs        = "alloc.fois"
	allocKeyDataStreams = "alloc.datastreams"
	allocKeySeries      = "alloc.series"
)

func (f *Facade) restoreAllocators() error {
	marks := map[string]int64{}
	err := f.kv.View(context.Background(), func(txn *kvstore.Txn) error {
		for _, key := range []string{allocKeySystems, allocKeyFOIs, allocKeyDataStreams, allocKeySeries} {
			raw, err := f.meta.Get(txn, []byte(key))
			if err == core.ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			marks[key] = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return err
	}
	f.systemAlloc = core.NewIDAllocator(marks[allocKeySystems] + 1)
	f.foiAlloc = core.NewIDAllocator(marks[allocKeyFOIs] + 1)
	f.dataStreamAlloc = core.NewIDAllocator(marks[allocKeyDataStreams] + 1)
	f.seriesAlloc = core.NewIDAllocator(marks[allocKeySeries] + 1)
	return nil
}

func (f *Facade) persistAllocators(ctx context.Context) error {
	return f.kv.Update(ctx, func(txn *kvstore.Txn) error {
		marks := map[string]int64{
			allocKeySystems:     f.systemAlloc.Peek(),
			allocKeyFOIs:        f.foiAlloc.Peek(),
			allocKeyDataStreams: f.dataStreamAlloc.Peek(),
			allocKeySeries:      f.seriesAlloc.Peek(),
		}
		for key, mark := range marks {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(mark))
			if err := f.meta.Put(txn, []byte(key), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExecuteTransaction implements spec §4.5's executeTransaction(fn): runs fn
// under the facade's single writer lock and a single embedded-engine
// transaction (kvstore.Store.WithTxn), so every store call fn makes -
// however many stores or NamedMaps it touches - joins that one transaction
// and rolls back together if fn returns an error, restoring the pre-call
// version across stores rather than leaving earlier ops committed.
func (f *Facade) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kv.WithTxn(ctx, fn)
}

// Commit forces a sync of the embedded engine and persists every ID
// allocator's current high-water mark, the facade's explicit "commit"
// primitive.
func (f *Facade) Commit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitLocked(ctx)
}

func (f *Facade) commitLocked(ctx context.Context) error {
	start := f.clock.Now()
	defer func() {
		f.commitLatency.Observe(float64(f.clock.Now()-start) / float64(time.Second))
	}()

	if err := f.persistAllocators(ctx); err != nil {
		return err
	}
	if err := f.kv.Sync(); err != nil {
		return err
	}
	f.lastCommit = f.clock.Now()
	return nil
}

// startAutoCommit installs the periodic commit from spec §4.5: a cron tick
// every second checks both triggers (elapsed wall time, dirty-byte
// threshold) and commits if either fires. Grounded on db/facade.go's sibling
// db package having no prior art in the teacher tree for scheduled
// background work; github.com/robfig/cron/v3 is the pack's only cron
// scheduler (used nowhere else in the teacher, newly wired here).
func (f *Facade) startAutoCommit() {
	f.cronSched = cron.New(cron.WithSeconds())
	_, err := f.cronSched.AddFunc("* * * * * *", func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		elapsed := int64(f.clock.Now()-f.lastCommit) >= int64(f.autoCommitInterval)
		dirty := f.kv.PendingBytes() >= f.autoCommitDirtyBytes
		if !elapsed && !dirty {
			return
		}
		if err := f.commitLocked(context.Background()); err != nil {
			f.logger.Error("auto-commit failed", "error", err)
		}
	})
	if err != nil {
		f.logger.Error("failed to schedule auto-commit", "error", err)
		return
	}
	f.cronSched.Start()
}

// Close stops the auto-commit scheduler, commits one last time, and closes
// the embedded engine.
func (f *Facade) Close() error {
	if f.cronSched != nil {
		<-f.cronSched.Stop().Done()
	}
	if err := f.Commit(context.Background()); err != nil {
		f.logger.Error("final commit failed during close", "error", err)
	}
	return f.kv.Close()
}
