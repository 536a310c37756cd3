package library

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"lending-library/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations of the library tables.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager is a thin façade wiring the repositories and the three domains
// over one Database, keeping CLI code simple.
type Manager struct {
	db *store.Database

	People *store.Repository[Person, *Person]
	Books  *store.Repository[Book, *Book]
	Loans  *store.Repository[Loan, *Loan]

	Directory *Directory
	Catalog   *Catalog
	Lending   *Lending
}

type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	now      func() time.Time
	loanDays int
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock sets the source of "now" for audit stamps and of "today" for loans.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLoanDays sets the default loan length; non-positive values are ignored.
func WithLoanDays(days int) Option {
	return func(s *settings) {
		if days > 0 {
			s.loanDays = days
		}
	}
}

// Open opens (or creates) the SQLite database at dbPath, brings its schema up
// to date and returns a Manager over it. Close releases the database.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Manager, error) {
	db, err := store.Open(ctx, store.Config{Path: dbPath, Migrations: Migrations()})
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return NewManager(db, opts...), nil
}

// NewManager wires a Manager over an already open database.
func NewManager(db *store.Database, opts ...Option) *Manager {
	s := settings{
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		loanDays: DefaultLoanDays,
	}
	for _, opt := range opts {
		opt(&s)
	}

	repoOpts := []store.Option{store.WithLogger(s.logger), store.WithClock(s.now)}
	m := &Manager{
		db:     db,
		People: store.NewRepository[Person](db, repoOpts...),
		Books:  store.NewRepository[Book](db, repoOpts...),
		Loans:  store.NewRepository[Loan](db, repoOpts...),
	}
	m.Directory = &Directory{people: m.People, loans: m.Loans}
	m.Catalog = &Catalog{db: db, books: m.Books, loans: m.Loans}
	m.Lending = &Lending{
		db:       db,
		people:   m.People,
		books:    m.Books,
		loans:    m.Loans,
		catalog:  m.Catalog,
		logger:   s.logger,
		now:      s.now,
		loanDays: s.loanDays,
	}
	return m
}

// Close closes the underlying database.
func (m *Manager) Close() error { return m.db.Close() }

// ------------------ Projections ------------------

// Project returns the live rows of the named collection: "people", "books"
// or "loans".
func (m *Manager) Project(ctx context.Context, collection string) (*store.Table, error) {
	switch strings.ToLower(collection) {
	case "people", "persons":
		return m.People.Project(ctx)
	case "books":
		return m.Books.Project(ctx)
	case "loans":
		return m.Loans.Project(ctx)
	default:
		return nil, store.Validation("project", "unknown collection %q", collection)
	}
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b Book, available bool) string {
	return fmt.Sprintf("%-5d %-30s %-25s %-12s %-10t", b.ID, b.Title, b.Author, b.Genre, available)
}
