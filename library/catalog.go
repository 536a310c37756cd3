package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"lending-library/store"
)

// Catalog answers questions about books.
type Catalog struct {
	db    *store.Database
	books *store.Repository[Book, *Book]
	loans *store.Repository[Loan, *Loan]
}

// BookInput describes a donated book.
type BookInput struct {
	Title       string
	Author      string
	Genre       string
	DonorID     int64
	Cover       []byte
	CoverFormat string
	Note        string
}

func (c *Catalog) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	return c.books.Add(ctx, store.Fields{
		"title":        strings.TrimSpace(in.Title),
		"author":       strings.TrimSpace(in.Author),
		"genre":        strings.TrimSpace(in.Genre),
		"donor_id":     in.DonorID,
		"cover":        in.Cover,
		"cover_format": in.CoverFormat,
		"note":         strings.TrimSpace(in.Note),
	})
}

// AddBookFromFile reads the cover image at path (relative paths resolve from
// cwd) and stores the book with the cover's format taken from its extension.
func (c *Catalog) AddBookFromFile(ctx context.Context, in BookInput, path string) (*Book, error) {
	cover, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	in.Cover = cover
	in.CoverFormat = CoverFormat(path)
	return c.AddBook(ctx, in)
}

// CoverFormat derives the format tag of an image from its file name.
func CoverFormat(path string) string {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// AvailableBooks returns the live books that no open loan refers to.
func (c *Catalog) AvailableBooks(ctx context.Context) ([]Book, error) {
	lent := openLoans(c.loans).ClearOrder().Select(goqu.C("book_id"))
	return c.books.Find(ctx, c.books.Select().Where(goqu.C("id").NotIn(lent)))
}

// IsAvailable reports whether no open loan refers to the book.
func (c *Catalog) IsAvailable(ctx context.Context, bookID int64) (bool, error) {
	return c.isAvailable(ctx, c.db.DB(), bookID)
}

func (c *Catalog) isAvailable(ctx context.Context, q sqlx.QueryerContext, bookID int64) (bool, error) {
	n, err := c.loans.CountTx(ctx, q, openLoans(c.loans).Where(goqu.C("book_id").Eq(bookID)))
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
