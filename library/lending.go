package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"lending-library/store"
)

// DefaultExtensionDays is how far Extend pushes a due date unless told otherwise.
const DefaultExtensionDays = 1

// DefaultLoanDays is the loan length used when a request names no due date.
const DefaultLoanDays = 7

// Lending manages loans: opening, extending, and closing them.
type Lending struct {
	db       *store.Database
	people   *store.Repository[Person, *Person]
	books    *store.Repository[Book, *Book]
	loans    *store.Repository[Loan, *Loan]
	catalog  *Catalog
	logger   *slog.Logger
	now      func() time.Time
	loanDays int
}

// LoanRequest asks for a book to be lent. A zero Start means today and a
// zero Due means Start plus the configured loan length.
type LoanRequest struct {
	BorrowerID int64
	BookID     int64
	Start      store.Date
	Due        store.Date
}

// Today is the current calendar date in the local time zone.
func (l *Lending) Today() store.Date { return store.DateOf(l.now()) }

// OpenLoan lends a book. Borrower and book must exist and not be deleted, and
// the book must have no open loan. The checks and the insert share one
// write-locking transaction, and a unique index on open loans per book backs
// the availability rule, so two concurrent requests for one book cannot both
// succeed.
func (l *Lending) OpenLoan(ctx context.Context, req LoanRequest) (*Loan, error) {
	const op = "open loan"
	start := req.Start
	if start.IsZero() {
		start = l.Today()
	}
	due := req.Due
	if due.IsZero() {
		due = start.AddDays(l.loanDays)
	}

	var loan *Loan
	err := l.db.InTx(ctx, op, func(tx *sqlx.Tx) error {
		if _, err := l.people.GetTx(ctx, tx, req.BorrowerID); err != nil {
			return err
		}
		if _, err := l.books.GetTx(ctx, tx, req.BookID); err != nil {
			return err
		}
		available, err := l.catalog.isAvailable(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if !available {
			return store.Conflict(op, "book %d is already lent", req.BookID)
		}
		loan, err = l.loans.AddTx(ctx, tx, store.Fields{
			"borrower_id": req.BorrowerID,
			"book_id":     req.BookID,
			"start_date":  start,
			"due_date":    due,
		})
		return err
	})
	if err != nil {
		l.logger.Warn("loan refused", "book_id", req.BookID, "borrower_id", req.BorrowerID, "error", err)
		return nil, err
	}
	l.logger.Info("loan opened", "loan_id", loan.ID, "book_id", loan.BookID, "borrower_id", loan.BorrowerID, "due", loan.DueDate.String())
	return loan, nil
}

// OpenLoans returns the open loans by due date, earliest first; loans due on
// the same day keep their id order.
func (l *Lending) OpenLoans(ctx context.Context) ([]Loan, error) {
	return l.loans.Find(ctx, openLoans(l.loans).Order(goqu.C("due_date").Asc(), goqu.C("id").Asc()))
}

// OverdueLoans returns the open loans whose due date has passed.
func (l *Lending) OverdueLoans(ctx context.Context) ([]Loan, error) {
	return l.loans.Find(ctx, openLoans(l.loans).
		Where(goqu.C("due_date").Lt(l.Today())).
		Order(goqu.C("due_date").Asc(), goqu.C("id").Asc()))
}

// DaysUntilDue counts from today to the loan's due date.
func (l *Lending) DaysUntilDue(loan Loan) int { return loan.DaysUntilDue(l.Today()) }

// Close ends an open loan today.
func (l *Lending) Close(ctx context.Context, loanID int64) (*Loan, error) {
	const op = "close loan"
	var closed *Loan
	err := l.db.InTx(ctx, op, func(tx *sqlx.Tx) error {
		loan, err := l.loans.GetTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Closed {
			return store.Conflict(op, "loan %d is already closed", loanID)
		}
		edited, err := l.loans.EditTx(ctx, tx, store.Where("id", loanID), store.Fields{
			"closed":      true,
			"return_date": l.Today(),
		})
		if err != nil {
			return err
		}
		closed = &edited[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("loan closed", "loan_id", closed.ID, "book_id", closed.BookID)
	return closed, nil
}

// Extend moves the due date of an open loan by days, which may be negative
// but may not take it before the start date.
func (l *Lending) Extend(ctx context.Context, loanID int64, days int) (*Loan, error) {
	const op = "extend loan"
	var extended *Loan
	err := l.db.InTx(ctx, op, func(tx *sqlx.Tx) error {
		loan, err := l.loans.GetTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Closed {
			return store.Conflict(op, "loan %d is closed", loanID)
		}
		edited, err := l.loans.EditTx(ctx, tx, store.Where("id", loanID), store.Fields{
			"due_date": loan.DueDate.AddDays(days),
		})
		if err != nil {
			return err
		}
		extended = &edited[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("loan extended", "loan_id", extended.ID, "days", days, "due", extended.DueDate.String())
	return extended, nil
}

// Describe captions a loan as "title to borrower until weekday, date".
// Books and people deleted since the loan was opened are named by id.
func (l *Lending) Describe(ctx context.Context, loan Loan) (string, error) {
	title := fmt.Sprintf("book #%d", loan.BookID)
	switch book, err := l.books.Get(ctx, loan.BookID); {
	case err == nil:
		title = book.Title
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	borrower := fmt.Sprintf("person #%d", loan.BorrowerID)
	switch person, err := l.people.Get(ctx, loan.BorrowerID); {
	case err == nil:
		borrower = person.Name
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	return fmt.Sprintf("%s to %s until %s", title, borrower, loan.DueDate.Format("Monday, 02 January 2006")), nil
}
