package library

import (
	"errors"
	"fmt"

	"lending-library/store"
)

// Person is a library patron: a borrower of loans and a donor of books.
// PreferredGenres is free text, empty when not given.
type Person struct {
	store.Entity
	Name            string `db:"name" validate:"required"`
	Email           string `db:"email" validate:"required,mailbox"`
	PreferredGenres string `db:"preferred_genres"`
}

func (Person) TableName() string { return "persons" }

func (p *Person) Validate() error { return validateStruct(p) }

func (p Person) String() string { return fmt.Sprintf("(#%d) %s", p.ID, p.Name) }

// Book is a donated book. The cover is kept as raw image bytes next to a
// format tag such as "jpg"; it is never decoded.
type Book struct {
	store.Entity
	Title       string `db:"title" validate:"required"`
	Author      string `db:"author" validate:"required"`
	Genre       string `db:"genre" validate:"required"`
	DonorID     int64  `db:"donor_id" validate:"required"`
	Cover       []byte `db:"cover" validate:"required,min=1"`
	CoverFormat string `db:"cover_format" validate:"required"`
	Note        string `db:"note"`
}

func (Book) TableName() string { return "books" }

func (b *Book) Validate() error { return validateStruct(b) }

func (b Book) String() string { return fmt.Sprintf("(#%d) %s <%s>", b.ID, b.Title, b.Author) }

// Loan lends one book to one person between StartDate and DueDate. It is
// open until closed; closing records the ReturnDate.
type Loan struct {
	store.Entity
	BorrowerID int64       `db:"borrower_id" validate:"required"`
	BookID     int64       `db:"book_id" validate:"required"`
	StartDate  store.Date  `db:"start_date"`
	DueDate    store.Date  `db:"due_date"`
	ReturnDate *store.Date `db:"return_date"`
	Closed     bool        `db:"closed"`
}

func (Loan) TableName() string { return "loans" }

func (l *Loan) Validate() error {
	if err := validateStruct(l); err != nil {
		return err
	}
	switch {
	case l.StartDate.IsZero():
		return errors.New("start_date is required")
	case l.DueDate.IsZero():
		return errors.New("due_date is required")
	case l.DueDate.Before(l.StartDate):
		return fmt.Errorf("due_date %s is before start_date %s", l.DueDate, l.StartDate)
	case l.Closed && l.ReturnDate == nil:
		return errors.New("a closed loan needs a return_date")
	case !l.Closed && l.ReturnDate != nil:
		return errors.New("a closed loan cannot be reopened")
	}
	return nil
}

// DaysUntilDue is the number of days from today to the due date: negative
// when overdue, zero on the due date itself.
func (l Loan) DaysUntilDue(today store.Date) int { return l.DueDate.Sub(today) }

func (l Loan) String() string {
	state := "open"
	if l.Closed {
		state = "closed"
	}
	return fmt.Sprintf("(#%d) book %d to person %d, due %s, %s", l.ID, l.BookID, l.BorrowerID, l.DueDate, state)
}
