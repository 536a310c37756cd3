package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-library/store"
)

// testNow is a Tuesday.
var testNow = time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)

func newManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	mgr, err := Open(context.Background(), filepath.Join(dir, "lib.db"),
		WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func addPerson(t *testing.T, mgr *Manager, name, email string) *Person {
	t.Helper()
	p, err := mgr.Directory.AddPerson(context.Background(), name, email, "")
	if err != nil {
		t.Fatalf("add person %s: %v", name, err)
	}
	return p
}

func addBook(t *testing.T, mgr *Manager, title string, donor int64) *Book {
	t.Helper()
	b, err := mgr.Catalog.AddBook(context.Background(), BookInput{
		Title:       title,
		Author:      "Anon",
		Genre:       "fiction",
		DonorID:     donor,
		Cover:       []byte{0xff, 0xd8, 0xff},
		CoverFormat: "jpg",
	})
	if err != nil {
		t.Fatalf("add book %s: %v", title, err)
	}
	return b
}

func TestAddBookFromFile(t *testing.T) {
	mgr := newManager(t)
	donor := addPerson(t, mgr, "Ana", "ana@x.com")

	tmp := filepath.Join(t.TempDir(), "cover.JPEG")
	if err := os.WriteFile(tmp, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	b, err := mgr.Catalog.AddBookFromFile(context.Background(), BookInput{
		Title: "Hello", Author: "Anon", Genre: "essay", DonorID: donor.ID,
	}, tmp)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := mgr.Books.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Cover) != "not really a jpeg" {
		t.Fatalf("cover not stored")
	}
	assert.Equal(t, "jpg", got.CoverFormat)
}

func TestAddFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	p, err := mgr.Directory.AddPerson(ctx, "  Bruno ", "bruno@library.org", "poetry, sci-fi")
	require.NoError(t, err)

	got, err := mgr.People.Fetch(ctx, store.Where("id", p.ID))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bruno", got[0].Name)
	assert.Equal(t, "bruno@library.org", got[0].Email)
	assert.Equal(t, "poetry, sci-fi", got[0].PreferredGenres)
	assert.True(t, got[0].CreatedAt.Equal(testNow))
	assert.Equal(t, "(#1) Bruno", got[0].String())

	b := addBook(t, mgr, "Dune", p.ID)
	assert.Equal(t, "(#1) Dune <Anon>", b.String())
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, b.Cover)
}

func TestAddRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	_, err := mgr.Directory.AddPerson(ctx, "Ana", "not-an-email", "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = mgr.Directory.AddPerson(ctx, "", "ana@x.com", "")
	assert.ErrorIs(t, err, store.ErrValidation)

	donor := addPerson(t, mgr, "Ana", "ana@x.com")
	_, err = mgr.Catalog.AddBook(ctx, BookInput{Title: "No cover", Author: "A", Genre: "g", DonorID: donor.ID, CoverFormat: "jpg"})
	assert.ErrorIs(t, err, store.ErrValidation)

	// A donor that does not exist trips the foreign key.
	_, err = mgr.Catalog.AddBook(ctx, BookInput{Title: "T", Author: "A", Genre: "g", DonorID: 99, Cover: []byte{1}, CoverFormat: "png"})
	assert.ErrorIs(t, err, store.ErrPersistence)

	books, err := mgr.Books.Fetch(ctx, store.All())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestProjectCollections(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	addBook(t, mgr, "Dune", ana.ID)

	people, err := mgr.Project(ctx, "people")
	require.NoError(t, err)
	assert.Contains(t, people.Columns, "Preferred genres")
	require.Len(t, people.Rows, 1)

	books, err := mgr.Project(ctx, "books")
	require.NoError(t, err)
	assert.Contains(t, books.Columns, "Cover format")
	assert.Contains(t, books.Columns, "Donor id")

	_, err = mgr.Project(ctx, "shelves")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCoverFormat(t *testing.T) {
	cases := map[string]string{
		"covers/dune.JPG":  "jpg",
		"covers/dune.jpeg": "jpg",
		"emma.png":         "png",
		"noext":            "",
	}
	for in, want := range cases {
		if got := CoverFormat(in); got != want {
			t.Errorf("CoverFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
