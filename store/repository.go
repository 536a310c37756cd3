package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
)

var dialect = goqu.Dialect("sqlite3")

// Fields maps column names to values for Add and Edit.
type Fields map[string]any

// Selector picks the rows an operation applies to: every live row, or the
// live rows whose Field equals Value.
type Selector struct {
	Field string
	Value any
}

func All() Selector { return Selector{} }

func Where(field string, value any) Selector {
	return Selector{Field: field, Value: value}
}

func (s Selector) IsAll() bool { return s.Field == "" }

func (s Selector) String() string {
	if s.IsAll() {
		return "all"
	}
	return fmt.Sprintf("%s=%v", s.Field, s.Value)
}

// Logger is the logging surface the repository needs; *slog.Logger fits.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Option func(*options)

type options struct {
	logger Logger
	now    func() time.Time
}

func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the source of audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Repository is the audited, soft-deleting store of one model type. Every
// read path leaves out soft-deleted rows; nothing is ever physically removed.
type Repository[T any, P ModelPtr[T]] struct {
	db     *Database
	schema *schema
	logger Logger
	now    func() time.Time
}

func NewRepository[T any, P ModelPtr[T]](db *Database, opts ...Option) *Repository[T, P] {
	o := options{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var zero T
	return &Repository[T, P]{
		db:     db,
		schema: newSchema(reflect.TypeOf(zero), P(&zero).TableName()),
		logger: o.logger,
		now:    o.now,
	}
}

// Select returns a dataset over the live rows of the table, ordered by id.
// Callers narrow it with further Where clauses and run it with Find.
func (r *Repository[T, P]) Select() *goqu.SelectDataset {
	return r.selectAny().Where(goqu.C(ColDeleted).Eq(false))
}

// selectAny includes soft-deleted rows.
func (r *Repository[T, P]) selectAny() *goqu.SelectDataset {
	return dialect.From(r.schema.table).
		Prepared(true).
		Select(r.schema.selectColumns()...).
		Order(goqu.C(ColID).Asc())
}

func (r *Repository[T, P]) Find(ctx context.Context, ds *goqu.SelectDataset) ([]T, error) {
	return r.FindTx(ctx, r.db.DB(), ds)
}

// FindTx runs ds through q and maps every row onto T.
func (r *Repository[T, P]) FindTx(ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) ([]T, error) {
	op := "fetch " + r.schema.table
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, &Failure{Kind: ErrPersistence, Op: op, Msg: "build query", Err: err}
	}
	items := []T{}
	start := time.Now()
	err = sqlx.SelectContext(ctx, q, &items, query, args...)
	r.logQuery(query, start, err)
	if err != nil {
		return nil, classify(op, err)
	}
	return items, nil
}

func (r *Repository[T, P]) Count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	return r.CountTx(ctx, r.db.DB(), ds)
}

// CountTx counts the rows ds would return.
func (r *Repository[T, P]) CountTx(ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) (int, error) {
	op := "count " + r.schema.table
	query, args, err := ds.ClearOrder().Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, &Failure{Kind: ErrPersistence, Op: op, Msg: "build query", Err: err}
	}
	var n int
	start := time.Now()
	err = sqlx.GetContext(ctx, q, &n, query, args...)
	r.logQuery(query, start, err)
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// Fetch returns the live entities matching sel in id order, or an empty
// slice when none match.
func (r *Repository[T, P]) Fetch(ctx context.Context, sel Selector) ([]T, error) {
	return r.FetchTx(ctx, r.db.DB(), sel)
}

func (r *Repository[T, P]) FetchTx(ctx context.Context, q sqlx.QueryerContext, sel Selector) ([]T, error) {
	ds := r.Select()
	if !sel.IsAll() {
		if !r.schema.has(sel.Field) {
			return nil, Validation("fetch "+r.schema.table, "unknown field %q", sel.Field)
		}
		ds = ds.Where(goqu.C(sel.Field).Eq(sel.Value))
	}
	return r.FindTx(ctx, q, ds)
}

// Get returns the live entity with the given id.
func (r *Repository[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	return r.GetTx(ctx, r.db.DB(), id)
}

func (r *Repository[T, P]) GetTx(ctx context.Context, q sqlx.QueryerContext, id int64) (*T, error) {
	items, err := r.FetchTx(ctx, q, Where(ColID, id))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, NotFound("get "+r.schema.table, "%s %d", r.schema.table, id)
	}
	return &items[0], nil
}

// Add validates and inserts a new entity built from fields and returns it as
// stored, with id and created_at assigned.
func (r *Repository[T, P]) Add(ctx context.Context, fields Fields) (*T, error) {
	var created *T
	err := r.db.InTx(ctx, "add "+r.schema.table, func(tx *sqlx.Tx) error {
		var err error
		created, err = r.AddTx(ctx, tx, fields)
		return err
	})
	if err != nil {
		r.logger.Warn("add rejected", "table", r.schema.table, "error", err)
		return nil, err
	}
	r.logger.Info("entity added", "table", r.schema.table, "id", P(created).Base().ID)
	return created, nil
}

// AddTx is Add inside the caller's transaction.
func (r *Repository[T, P]) AddTx(ctx context.Context, tx sqlx.ExtContext, fields Fields) (*T, error) {
	op := "add " + r.schema.table
	entity := P(new(T))
	v := reflect.ValueOf(entity).Elem()
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if auditColumns[name] {
			return nil, Validation(op, "field %q is managed by the store", name)
		}
		if err := r.schema.set(v, name, fields[name]); err != nil {
			return nil, Validation(op, "%v", err)
		}
	}
	if err := validateModel(op, entity); err != nil {
		return nil, err
	}
	base := entity.Base()
	base.CreatedAt = r.now().UTC()
	base.LastEditedAt, base.Modified = nil, false
	base.DeletedAt, base.Deleted = nil, false

	query, args, err := dialect.Insert(r.schema.table).
		Prepared(true).
		Rows(r.schema.record(v, ColID)).
		ToSQL()
	if err != nil {
		return nil, &Failure{Kind: ErrPersistence, Op: op, Msg: "build insert", Err: err}
	}
	start := time.Now()
	res, err := tx.ExecContext(ctx, query, args...)
	r.logQuery(query, start, err)
	if err != nil {
		return nil, classify(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, classify(op, err)
	}
	return r.GetTx(ctx, tx, id)
}

// Edit applies changes to every live entity matching sel, stamps them as
// modified and returns them as stored. Nothing is written unless every
// matched entity validates; no match is a NotFound failure.
func (r *Repository[T, P]) Edit(ctx context.Context, sel Selector, changes Fields) ([]T, error) {
	var edited []T
	err := r.db.InTx(ctx, "edit "+r.schema.table, func(tx *sqlx.Tx) error {
		var err error
		edited, err = r.EditTx(ctx, tx, sel, changes)
		return err
	})
	if err != nil {
		r.logger.Warn("edit rejected", "table", r.schema.table, "selector", sel.String(), "error", err)
		return nil, err
	}
	r.logger.Info("entities edited", "table", r.schema.table, "selector", sel.String(), "count", len(edited))
	return edited, nil
}

func (r *Repository[T, P]) EditTx(ctx context.Context, tx sqlx.ExtContext, sel Selector, changes Fields) ([]T, error) {
	op := "edit " + r.schema.table
	for name := range changes {
		if auditColumns[name] {
			return nil, Validation(op, "field %q is managed by the store", name)
		}
	}
	return r.update(ctx, tx, op, sel, changes, r.now().UTC())
}

// SoftDelete marks every live entity matching sel as deleted. Related rows
// are left untouched.
func (r *Repository[T, P]) SoftDelete(ctx context.Context, sel Selector) ([]T, error) {
	var deleted []T
	err := r.db.InTx(ctx, "soft delete "+r.schema.table, func(tx *sqlx.Tx) error {
		var err error
		deleted, err = r.SoftDeleteTx(ctx, tx, sel)
		return err
	})
	if err != nil {
		r.logger.Warn("soft delete rejected", "table", r.schema.table, "selector", sel.String(), "error", err)
		return nil, err
	}
	r.logger.Info("entities soft deleted", "table", r.schema.table, "selector", sel.String(), "count", len(deleted))
	return deleted, nil
}

func (r *Repository[T, P]) SoftDeleteTx(ctx context.Context, tx sqlx.ExtContext, sel Selector) ([]T, error) {
	now := r.now().UTC()
	return r.update(ctx, tx, "soft delete "+r.schema.table, sel, Fields{
		ColDeletedAt: now,
		ColDeleted:   true,
	}, now)
}

func (r *Repository[T, P]) update(ctx context.Context, tx sqlx.ExtContext, op string, sel Selector, changes Fields, now time.Time) ([]T, error) {
	targets, err := r.FetchTx(ctx, tx, sel)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, NotFound(op, "no %s matched %s", r.schema.table, sel)
	}

	names := slices.Sorted(maps.Keys(changes))
	ids := make([]int64, 0, len(targets))
	for i := range targets {
		entity := P(&targets[i])
		v := reflect.ValueOf(entity).Elem()
		for _, name := range names {
			if err := r.schema.set(v, name, changes[name]); err != nil {
				return nil, Validation(op, "%v", err)
			}
		}
		if err := validateModel(op, entity); err != nil {
			return nil, err
		}
		base := entity.Base()
		base.LastEditedAt = &now
		base.Modified = true

		query, args, err := dialect.Update(r.schema.table).
			Prepared(true).
			Set(r.schema.record(v, ColID, ColCreatedAt)).
			Where(goqu.C(ColID).Eq(base.ID)).
			ToSQL()
		if err != nil {
			return nil, &Failure{Kind: ErrPersistence, Op: op, Msg: "build update", Err: err}
		}
		start := time.Now()
		_, err = tx.ExecContext(ctx, query, args...)
		r.logQuery(query, start, err)
		if err != nil {
			return nil, classify(op, err)
		}
		ids = append(ids, base.ID)
	}

	// Read back through selectAny so soft-deleted rows are returned too.
	return r.FindTx(ctx, tx, r.selectAny().Where(goqu.C(ColID).In(ids)))
}

func (r *Repository[T, P]) logQuery(query string, start time.Time, err error) {
	if err != nil {
		r.logger.Error("query failed", "table", r.schema.table, "query", query, "error", err)
		return
	}
	r.logger.Debug("query executed",
		"table", r.schema.table,
		"query", query,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func validateModel(op string, m Model) error {
	v, ok := m.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return &Failure{Kind: ErrValidation, Op: op, Err: err}
	}
	return nil
}
