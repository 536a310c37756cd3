package library

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/doug-martin/goqu/v9"

	"lending-library/store"
)

// Directory answers questions about people.
type Directory struct {
	people *store.Repository[Person, *Person]
	loans  *store.Repository[Loan, *Loan]
}

// AddPerson registers a person. genres may be empty.
func (d *Directory) AddPerson(ctx context.Context, name, email, genres string) (*Person, error) {
	return d.people.Add(ctx, store.Fields{
		"name":             strings.TrimSpace(name),
		"email":            strings.TrimSpace(email),
		"preferred_genres": strings.TrimSpace(genres),
	})
}

// Search returns the live people whose name, email or preferred genres
// contain any of terms, case-insensitively, each person once and in id order.
// Blank terms are ignored; no terms give no result.
func (d *Directory) Search(ctx context.Context, terms []string) ([]Person, error) {
	found := map[int64]Person{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		ds := d.people.Select().Where(goqu.Or(
			store.ContainsFold("name", term),
			store.ContainsFold("email", term),
			store.ContainsFold("preferred_genres", term),
		))
		people, err := d.people.Find(ctx, ds)
		if err != nil {
			return nil, err
		}
		for _, p := range people {
			found[p.ID] = p
		}
	}

	out := make([]Person, 0, len(found))
	for _, p := range found {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Person) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ActiveLoanCount is the number of open loans borrowed by the person.
func (d *Directory) ActiveLoanCount(ctx context.Context, personID int64) (int, error) {
	return d.loans.Count(ctx, openLoans(d.loans).Where(goqu.C("borrower_id").Eq(personID)))
}

// openLoans narrows the live loans to those not yet closed.
func openLoans(loans *store.Repository[Loan, *Loan]) *goqu.SelectDataset {
	return loans.Select().Where(goqu.C("closed").Eq(false))
}
