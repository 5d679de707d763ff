// Package kvstore is the thin adapter over the embedded KV engine that
// backs every store in db/ (spec §6). Rather than re-implement an
// LSM engine from scratch, it wraps github.com/dgraph-io/badger/v4 and
// exposes the narrow surface the store layer actually needs: named logical
// key spaces, point/range scans and transactional commit/rollback.
package kvstore

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sensorhub-io/hub/core"
)

// Options configures a Store, mirroring the teacher's engine options-struct
// construction style (zero values get sane defaults in Open).
type Options struct {
	// Dir is the on-disk directory badger will use. Ignored when InMemory
	// is true.
	Dir string
	// InMemory runs the engine without touching disk, for tests.
	InMemory bool
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Store is a typed wrapper over one embedded badger.DB.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	tracer   trace.Tracer
	inMemory bool
}

// Open opens (creating if necessary) the embedded engine at opts.Dir.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("sensorhub/kvstore")
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(badgerLogAdapter{opts.Logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, core.WrapError(core.ErrKindDataStore, "failed to open embedded kv engine", err)
	}
	return &Store{db: db, logger: opts.Logger, tracer: opts.Tracer, inMemory: opts.InMemory}, nil
}

// Close releases all resources held by the underlying engine.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return core.WrapError(core.ErrKindDataStore, "failed to close embedded kv engine", err)
	}
	return nil
}

// NamedMap returns a logical namespace within the store, keyed by a name
// prefix, so unrelated stores can share one badger.DB without key
// collisions.
func (s *Store) NamedMap(name string) *NamedMap {
	return &NamedMap{prefix: []byte(name + "\x00")}
}

type ctxTxnKey struct{}

// View runs fn in a read-only transaction, or joins one already open on ctx
// (see WithTxn) instead of starting a new one.
func (s *Store) View(ctx context.Context, fn func(txn *Txn) error) error {
	if txn, ok := ctx.Value(ctxTxnKey{}).(*Txn); ok {
		return fn(txn)
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.View")
	defer span.End()
	return s.db.View(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt, ctx: ctx})
	})
}

// Update runs fn in a read-write transaction, committing when fn returns
// nil and rolling back otherwise, or joins one already open on ctx (see
// WithTxn) instead of starting a new one.
func (s *Store) Update(ctx context.Context, fn func(txn *Txn) error) error {
	if txn, ok := ctx.Value(ctxTxnKey{}).(*Txn); ok {
		return fn(txn)
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.Update")
	defer span.End()
	return s.db.Update(func(bt *badger.Txn) error {
		return fn(&Txn{txn: bt, ctx: ctx})
	})
}

// WithTxn runs fn under a single read-write transaction, committing when fn
// returns nil and rolling back every write it made otherwise. Any
// Store.View/Update call made against the context WithTxn passes to fn
// (directly, or threaded through further calls) joins this same
// transaction rather than opening its own, so a sequence of writes spanning
// several NamedMaps or stores rolls back as one unit on any failure. This
// is the primitive behind Facade.ExecuteTransaction.
func (s *Store) WithTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(ctxTxnKey{}).(*Txn); ok {
		return fn(ctx)
	}
	ctx, span := s.tracer.Start(ctx, "kvstore.WithTxn")
	defer span.End()
	return s.db.Update(func(bt *badger.Txn) error {
		txn := &Txn{txn: bt, ctx: ctx}
		return fn(context.WithValue(ctx, ctxTxnKey{}, txn))
	})
}

// Sync flushes badger's value log and LSM memtables to stable storage. This
// is the facade's "commit" primitive (spec §4.5): the badger engine itself
// is already durable per-transaction via its WAL, so Sync here means
// "force the background compaction/flush path to catch up now" rather than
// "without this, writes are lost." An in-memory store has no files to flush,
// so Sync returns nil for it.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil
	}
	if err := s.db.Sync(); err != nil {
		return core.WrapError(core.ErrKindDataStore, "sync embedded kv engine failed", err)
	}
	return nil
}

// PendingBytes estimates the volume of data sitting in the LSM tree and
// value log that hasn't yet been compacted away, the facade's dirty-byte
// auto-commit trigger signal (spec §4.5).
func (s *Store) PendingBytes() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// badgerLogAdapter routes badger's internal logging through log/slog, the
// way the teacher threads one logger through every subsystem.
type badgerLogAdapter struct{ l *slog.Logger }

func (a badgerLogAdapter) Errorf(f string, args ...interface{}) {
	a.l.Error("badger: " + fmt.Sprintf(f, args...))
}
func (a badgerLogAdapter) Warningf(f string, args ...interface{}) {
	a.l.Warn("badger: " + fmt.Sprintf(f, args...))
}
func (a badgerLogAdapter) Infof(f string, args ...interface{}) {
	a.l.Info("badger: " + fmt.Sprintf(f, args...))
}
func (a badgerLogAdapter) Debugf(f string, args ...interface{}) {
	a.l.Debug("badger: " + fmt.Sprintf(f, args...))
}
