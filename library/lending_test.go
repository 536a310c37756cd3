package library

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-library/store"
)

func contains(books []Book, id int64) bool {
	for _, b := range books {
		if b.ID == id {
			return true
		}
	}
	return false
}

func TestLoanLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	today := store.DateOf(testNow)

	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	avail, err := mgr.Catalog.AvailableBooks(ctx)
	require.NoError(t, err)
	assert.True(t, contains(avail, book.ID))

	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{
		BorrowerID: ana.ID,
		BookID:     book.ID,
		Start:      today,
		Due:        today.AddDays(7),
	})
	if err != nil {
		t.Fatalf("open loan: %v", err)
	}
	assert.False(t, loan.Closed)
	assert.Nil(t, loan.ReturnDate)

	avail, err = mgr.Catalog.AvailableBooks(ctx)
	require.NoError(t, err)
	assert.False(t, contains(avail, book.ID))
	ok, err := mgr.Catalog.IsAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	extended, err := mgr.Lending.Extend(ctx, loan.ID, 3)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	assert.Equal(t, today.AddDays(10), extended.DueDate)
	assert.True(t, extended.Modified)

	closed, err := mgr.Lending.Close(ctx, loan.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	assert.True(t, closed.Closed)
	require.NotNil(t, closed.ReturnDate)
	assert.Equal(t, today, *closed.ReturnDate)

	avail, err = mgr.Catalog.AvailableBooks(ctx)
	require.NoError(t, err)
	assert.True(t, contains(avail, book.ID))

	_, err = mgr.Lending.Close(ctx, loan.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = mgr.Lending.Extend(ctx, loan.ID, DefaultExtensionDays)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestOpenLoanDefaults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mgr, err := Open(ctx, filepath.Join(dir, "lib.db"),
		WithClock(func() time.Time { return testNow }),
		WithLoanDays(14))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", loan.StartDate.String())
	assert.Equal(t, "2024-03-19", loan.DueDate.String())
	assert.Equal(t, 14, mgr.Lending.DaysUntilDue(*loan))
}

func TestOpenLoanRejections(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	today := store.DateOf(testNow)

	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	bruno := addPerson(t, mgr, "Bruno", "bruno@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)
	gone := addBook(t, mgr, "Gone", ana.ID)
	_, err := mgr.Books.SoftDelete(ctx, store.Where("id", gone.ID))
	require.NoError(t, err)

	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: 42, BookID: book.ID})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: gone.ID})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID, Start: today, Due: today.AddDays(-1)})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID})
	require.NoError(t, err)
	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: bruno.ID, BookID: book.ID})
	assert.ErrorIs(t, err, store.ErrConflict)

	open, err := mgr.Lending.OpenLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestExtendBeforeStartIsRejected(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	today := store.DateOf(testNow)

	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)
	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID, Start: today, Due: today.AddDays(2)})
	require.NoError(t, err)

	shortened, err := mgr.Lending.Extend(ctx, loan.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, today, shortened.DueDate)

	_, err = mgr.Lending.Extend(ctx, loan.ID, -1)
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := mgr.Loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, today, got.DueDate)
}

func TestOpenLoansOrderedByDueDate(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	today := store.DateOf(testNow)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")

	dues := []int{5, 2, 5, -1, 2}
	var ids []int64
	for i, d := range dues {
		book := addBook(t, mgr, string(rune('A'+i)), ana.ID)
		loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{
			BorrowerID: ana.ID,
			BookID:     book.ID,
			Start:      today.AddDays(-3),
			Due:        today.AddDays(d),
		})
		if err != nil {
			t.Fatalf("open loan %d: %v", i, err)
		}
		ids = append(ids, loan.ID)
	}
	closedBook := addBook(t, mgr, "Closed", ana.ID)
	closedLoan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: closedBook.ID, Start: today.AddDays(-3), Due: today.AddDays(-2)})
	require.NoError(t, err)
	_, err = mgr.Lending.Close(ctx, closedLoan.ID)
	require.NoError(t, err)

	open, err := mgr.Lending.OpenLoans(ctx)
	require.NoError(t, err)
	got := make([]int64, len(open))
	for i, l := range open {
		got[i] = l.ID
	}
	assert.Equal(t, []int64{ids[3], ids[1], ids[4], ids[0], ids[2]}, got)

	for i := 1; i < len(open); i++ {
		if open[i].DueDate.Before(open[i-1].DueDate) {
			t.Fatalf("loan %d due %s sorted after %s", open[i].ID, open[i].DueDate, open[i-1].DueDate)
		}
	}

	overdue, err := mgr.Lending.OverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, ids[3], overdue[0].ID)
	assert.Equal(t, -1, mgr.Lending.DaysUntilDue(overdue[0]))
}

func TestDaysUntilDue(t *testing.T) {
	today := store.NewDate(2024, time.March, 5)
	loan := Loan{StartDate: today.AddDays(-10), DueDate: today}
	assert.Equal(t, 0, loan.DaysUntilDue(today))
	assert.Equal(t, -4, loan.DaysUntilDue(today.AddDays(4)))
	assert.Equal(t, 3, loan.DaysUntilDue(today.AddDays(-3)))
}

func TestSoftDeletedLoanFreesBook(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID})
	require.NoError(t, err)
	_, err = mgr.Loans.SoftDelete(ctx, store.Where("id", loan.ID))
	require.NoError(t, err)

	ok, err := mgr.Catalog.IsAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID})
	assert.NoError(t, err)
}

func TestOneOpenLoanPerBookInStore(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	bruno := addPerson(t, mgr, "Bruno", "bruno@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	loanFields := func(borrower int64) store.Fields {
		return store.Fields{
			"borrower_id": borrower,
			"book_id":     book.ID,
			"start_date":  testDate(5),
			"due_date":    testDate(12),
		}
	}

	closed := loanFields(ana.ID)
	closed["closed"] = true
	closed["return_date"] = testDate(6)
	_, err := mgr.Loans.Add(ctx, closed)
	require.NoError(t, err)

	first, err := mgr.Loans.Add(ctx, loanFields(ana.ID))
	require.NoError(t, err)

	_, err = mgr.Loans.Add(ctx, loanFields(bruno.ID))
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = mgr.Loans.SoftDelete(ctx, store.Where("id", first.ID))
	require.NoError(t, err)
	_, err = mgr.Loans.Add(ctx, loanFields(bruno.ID))
	assert.NoError(t, err)
}

func TestClosedLoanCannotBeReopened(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID})
	require.NoError(t, err)
	_, err = mgr.Lending.Close(ctx, loan.ID)
	require.NoError(t, err)

	_, err = mgr.Loans.Edit(ctx, store.Where("id", loan.ID), store.Fields{"closed": false})
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := mgr.Loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	ok, err := mgr.Catalog.IsAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestConcurrentOpenLoan races two borrowers for one book.
func TestConcurrentOpenLoan(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	bruno := addPerson(t, mgr, "Bruno", "bruno@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, borrower := range []int64{ana.ID, bruno.ID} {
		wg.Add(1)
		go func(borrower int64) {
			defer wg.Done()
			_, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: borrower, BookID: book.ID})
			errs <- err
		}(borrower)
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("want 1 success and 1 conflict, got %d and %d", succeeded, conflicts)
	}

	open, err := mgr.Lending.OpenLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	ana := addPerson(t, mgr, "Ana", "ana@x.com")
	book := addBook(t, mgr, "Dune", ana.ID)

	loan, err := mgr.Lending.OpenLoan(ctx, LoanRequest{BorrowerID: ana.ID, BookID: book.ID, Due: store.NewDate(2024, time.March, 8)})
	require.NoError(t, err)

	caption, err := mgr.Lending.Describe(ctx, *loan)
	require.NoError(t, err)
	assert.Equal(t, "Dune to Ana until Friday, 08 March 2024", caption)
}
