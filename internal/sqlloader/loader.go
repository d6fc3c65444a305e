// Package sqlloader implements the fixtures loader over database/sql and GORM.
//
// A Loader persists a dataset.Tree inside one transaction and removes it
// again in reverse order. Datasets are written into targets looked up in the
// loader's Env: a *types.Table is written as column maps by a TableMedium, a
// *types.MappedClass is written as a GORM model by a MappedClassMedium.
package sqlloader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// State is a position in the loader's transactional state machine.
type State int

// Loader states.
const (
	StateIdle State = iota
	StateBegun
	StateLoaded
	StateCommitted
	StateRolledBack
	StateUnloaded
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBegun:
		return "begun"
	case StateLoaded:
		return "loaded"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	case StateUnloaded:
		return "unloaded"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Env maps target names to storage targets (*types.Table or
// *types.MappedClass).
type Env map[string]any

// NewEnv returns an Env holding targets under their own names.
func NewEnv(targets ...any) Env {
	env := make(Env, len(targets))
	for _, t := range targets {
		env[types.TargetName(t)] = t
	}
	return env
}

// MediumFunc returns the medium that persists rows into target.
type MediumFunc func(target any) (types.Medium, error)

// loadedRow is one retained handle with the medium that saved it.
type loadedRow struct {
	medium types.Medium
	handle types.Handle
}

// transaction is an open transaction on a connection or a session.
type transaction interface {
	Commit() error
	Rollback() error
}

type sqlTransaction struct{ tx *sql.Tx }

func (t sqlTransaction) Commit() error   { return t.tx.Commit() }
func (t sqlTransaction) Rollback() error { return t.tx.Rollback() }

type sessionTransaction struct{ db *gorm.DB }

func (t sessionTransaction) Commit() error   { return t.db.Commit().Error }
func (t sessionTransaction) Rollback() error { return t.db.Rollback().Error }

// sessionScope is the loader's private GORM session. It is discarded lazily
// by the next loading Begin.
type sessionScope struct {
	base    *gorm.DB
	current *gorm.DB
	tracked map[string]any
}

// Loader loads dataset trees into a database. A Loader is not safe for
// concurrent use; give every concurrently running test its own.
type Loader struct {
	env       Env
	driver    string
	db        *sql.DB
	ownsDB    bool
	conn      *sql.Conn
	ownsConn  bool
	session   *gorm.DB
	scope     *sessionScope
	tx        transaction
	txMark    int
	loaded    []loadedRow
	state     State
	loadID    string
	negotiate MediumFunc
	log       zerolog.Logger
	metrics   *Metrics
}

// Option configures a Loader.
type Option func(*Loader)

// WithEngine sets the database a connection is taken from on Begin.
func WithEngine(db *sql.DB) Option {
	return func(l *Loader) { l.db = db }
}

// WithConnection sets an explicit connection. It takes precedence over the
// engine. The caller keeps ownership: Dispose does not close it.
func WithConnection(conn *sql.Conn) Option {
	return func(l *Loader) { l.conn = conn }
}

// WithSession sets an external GORM session. Without an engine or a
// connection, the engine is taken from the session.
func WithSession(session *gorm.DB) Option {
	return func(l *Loader) { l.session = session }
}

// WithDriver sets the driver name that picks the GORM dialect. The default is
// types.DriverSQLite.
func WithDriver(driver string) Option {
	return func(l *Loader) { l.driver = driver }
}

// WithMedium overrides medium negotiation.
func WithMedium(fn MediumFunc) Option {
	return func(l *Loader) { l.negotiate = fn }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithMetrics sets the collectors the loader counts into.
func WithMetrics(m *Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// New creates an idle Loader over env.
func New(env Env, opts ...Option) *Loader {
	l := &Loader{
		env:       env,
		driver:    types.DriverSQLite,
		negotiate: Negotiate,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	l.log = l.log.With().Str("component", "loader").Logger()
	return l
}

// State returns the current state.
func (l *Loader) State() State { return l.state }

// Loaded returns the retained handles in creation order.
func (l *Loader) Loaded() []types.Handle {
	out := make([]types.Handle, len(l.loaded))
	for i, lr := range l.loaded {
		out[i] = lr.handle
	}
	return out
}

// Conn returns the explicit connection, bound to the open transaction when
// there is one. It is nil when statements run implicitly through the session.
func (l *Loader) Conn() gorm.ConnPool {
	if l.conn == nil {
		return nil
	}
	if t, ok := l.tx.(sqlTransaction); ok {
		return t.tx
	}
	return l.conn
}

// Session returns the session of the current scope.
func (l *Loader) Session() *gorm.DB {
	if l.scope == nil {
		return l.session
	}
	return l.scope.current
}

// Tracked returns the object registered under key in the current scope.
func (l *Loader) Tracked(key string) (any, bool) {
	if l.scope == nil {
		return nil, false
	}
	obj, ok := l.scope.tracked[key]
	return obj, ok
}

// Track registers obj under key in the current scope.
func (l *Loader) Track(key string, obj any) {
	if l.scope != nil {
		l.scope.tracked[key] = obj
	}
}

// Begin opens a transaction. When not unloading, the session scope of a
// previous load is discarded first. The working connection is the explicit
// connection, else one taken from the engine (itself taken from the session
// when unset), else the session alone.
func (l *Loader) Begin(ctx context.Context, unloading bool) error {
	if l.state == StateDisposed {
		return fmt.Errorf("begin: loader is disposed: %w", types.ErrUninitialized)
	}
	if l.tx != nil {
		return types.ErrTransactionOpen
	}
	if !unloading {
		l.scope = nil
		l.loadID = newLoadID()
	}

	if l.conn == nil && l.db == nil && l.session != nil {
		if db, err := l.session.DB(); err == nil {
			l.db = db
		}
	}
	if l.db != nil && l.conn == nil {
		conn, err := l.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("acquiring connection: %w", err)
		}
		l.conn = conn
		l.ownsConn = true
	}
	if l.scope == nil {
		scope, err := l.openScope()
		if err != nil {
			return err
		}
		l.scope = scope
	}

	tx, err := l.createTransaction(ctx)
	if err != nil {
		return err
	}
	l.tx = tx
	l.txMark = len(l.loaded)
	l.state = StateBegun
	l.log.Debug().Str("load_id", l.loadID).Bool("unloading", unloading).Msg("begin")
	return nil
}

func (l *Loader) openScope() (*sessionScope, error) {
	var base *gorm.DB
	switch {
	case l.session != nil:
		base = l.session
	case l.conn != nil:
		db, err := gorm.Open(dialector(l.driver, l.conn), &gorm.Config{
			SkipDefaultTransaction: true,
			Logger:                 gormlogger.Discard,
		})
		if err != nil {
			return nil, fmt.Errorf("opening session: %w", err)
		}
		base = db
	default:
		return nil, fmt.Errorf("begin: no engine, connection or session: %w", types.ErrUninitialized)
	}
	return &sessionScope{base: base, current: base, tracked: make(map[string]any)}, nil
}

// createTransaction begins on the connection when there is one and binds the
// session scope to it; otherwise it begins through the session.
func (l *Loader) createTransaction(ctx context.Context) (transaction, error) {
	if l.conn != nil {
		tx, err := l.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("beginning transaction: %w", err)
		}
		bound := l.scope.base.Session(&gorm.Session{NewDB: true, Context: ctx})
		bound.Statement.ConnPool = tx
		l.scope.current = bound
		l.log.Debug().Msg("connection.begin()")
		return sqlTransaction{tx: tx}, nil
	}
	gtx := l.scope.base.WithContext(ctx).Begin()
	if gtx.Error != nil {
		return nil, fmt.Errorf("beginning session transaction: %w", gtx.Error)
	}
	l.scope.current = gtx
	l.log.Debug().Msg("session.begin()")
	return sessionTransaction{db: gtx}, nil
}

// Load persists every row of tree in one transaction and commits it. Any
// failure rolls the transaction back and discards the handles of this load.
func (l *Loader) Load(ctx context.Context, tree *dataset.Tree) (err error) {
	if err := l.Begin(ctx, false); err != nil {
		return err
	}
	mark := len(l.loaded)
	defer func() {
		if err == nil {
			l.metrics.loads.WithLabelValues(outcomeCommitted).Inc()
			return
		}
		l.metrics.loads.WithLabelValues(outcomeRolledBack).Inc()
		if l.tx != nil {
			if rbErr := l.Rollback(ctx); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
		l.loaded = l.loaded[:mark]
		l.log.Debug().Err(err).Str("load_id", l.loadID).Msg("load failed")
	}()

	for _, ds := range tree.LoadOrder() {
		if err := l.loadDataset(ctx, ds); err != nil {
			return err
		}
	}
	l.state = StateLoaded
	return l.Commit(ctx)
}

func (l *Loader) loadDataset(ctx context.Context, ds *dataset.Dataset) error {
	target, ok := l.env[ds.Target()]
	if !ok {
		return fmt.Errorf("%w: no target %q for dataset %q", types.ErrResolution, ds.Target(), ds.Name())
	}
	medium, err := l.negotiate(target)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", ds.Name(), err)
	}
	for _, row := range ds.Rows() {
		values, err := row.Resolve(ctx)
		if err != nil {
			return err
		}
		medium.VisitLoader(l)
		h, err := medium.Save(ctx, row.Key(), values)
		if err != nil {
			return fmt.Errorf("saving %s.%s: %w", ds.Name(), row.Key(), err)
		}
		row.Bind(h)
		l.loaded = append(l.loaded, loadedRow{medium: medium, handle: h})
		l.metrics.saved.WithLabelValues(ds.Target()).Inc()
	}
	l.log.Debug().Str("dataset", ds.Name()).Int("rows", ds.Len()).Msg("dataset saved")
	return nil
}

// Commit commits the open transaction.
func (l *Loader) Commit(ctx context.Context) error {
	if l.state == StateDisposed {
		return fmt.Errorf("commit: loader is disposed: %w", types.ErrUninitialized)
	}
	if l.tx == nil {
		return types.ErrNoTransaction
	}
	l.log.Debug().Str("load_id", l.loadID).Msg("transaction.commit()")
	err := l.tx.Commit()
	l.closeTransaction()
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	l.state = StateCommitted
	return nil
}

// Rollback aborts the open transaction. Handles retained since Begin are
// dropped without being cleared; the database undoes them.
func (l *Loader) Rollback(ctx context.Context) error {
	if l.state == StateDisposed {
		return fmt.Errorf("rollback: loader is disposed: %w", types.ErrUninitialized)
	}
	if l.tx == nil {
		return types.ErrNoTransaction
	}
	err := l.abort()
	l.loaded = l.loaded[:l.txMark]
	l.state = StateRolledBack
	return err
}

func (l *Loader) abort() error {
	l.log.Debug().Str("load_id", l.loadID).Msg("transaction.rollback()")
	err := l.tx.Rollback()
	l.closeTransaction()
	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (l *Loader) closeTransaction() {
	l.tx = nil
	if l.scope != nil {
		l.scope.current = l.scope.base
	}
}

// Unload clears every retained handle in reverse order of creation inside
// its own transaction. With nothing retained it does nothing. A failing clear
// rolls back and returns its error; the handles stay retained.
func (l *Loader) Unload(ctx context.Context) error {
	if l.state == StateDisposed {
		return fmt.Errorf("unload: loader is disposed: %w", types.ErrUninitialized)
	}
	if len(l.loaded) == 0 {
		return nil
	}
	if l.tx == nil {
		if err := l.Begin(ctx, true); err != nil {
			return err
		}
	}
	for i := len(l.loaded) - 1; i >= 0; i-- {
		lr := l.loaded[i]
		lr.medium.VisitLoader(l)
		if err := lr.medium.Clear(ctx, lr.handle); err != nil {
			err = fmt.Errorf("clearing %s %v: %w", lr.handle.Target(), lr.handle.Identity(), err)
			err = errors.Join(err, l.abort())
			l.state = StateRolledBack
			return err
		}
		l.metrics.cleared.WithLabelValues(lr.handle.Target()).Inc()
	}
	if err := l.Commit(ctx); err != nil {
		return err
	}
	l.log.Debug().Str("load_id", l.loadID).Int("rows", len(l.loaded)).Msg("unloaded")
	l.loaded = nil
	l.state = StateUnloaded
	return nil
}

// Dispose rolls back an open transaction and drops the session scope. It
// returns a connection taken from the engine to its pool and closes the
// engine when the loader opened it; a connection or engine the caller passed
// in stays open. After Dispose every other method fails with
// types.ErrUninitialized.
func (l *Loader) Dispose(ctx context.Context) error {
	if l.state == StateDisposed {
		return nil
	}
	var errs []error
	if l.tx != nil {
		errs = append(errs, l.abort())
	}
	if l.conn != nil && l.ownsConn {
		errs = append(errs, l.conn.Close())
	}
	l.conn = nil
	l.scope = nil
	l.loaded = nil
	if l.db != nil && l.ownsDB {
		errs = append(errs, l.db.Close())
	}
	l.db = nil
	l.state = StateDisposed
	l.log.Debug().Msg("disposed")
	return errors.Join(errs...)
}

// newLoadID returns a UUID v7 identifying one load in logs.
func newLoadID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
