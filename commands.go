package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"lending-library/library"
	"lending-library/store"
)

// ------------------ People ------------------

func newPersonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "person", Short: "Register, find and remove people"}

	var name, email, genres string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.mgr.Directory.AddPerson(cmd.Context(), name, email, genres)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Person added: %s\n", p)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "full name")
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&genres, "genres", "", "preferred genres, free text")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List people",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			people, err := a.mgr.People.Fetch(cmd.Context(), store.All())
			if err != nil {
				return err
			}
			return a.printPeople(cmd, people, "No people registered.")
		},
	}

	search := &cobra.Command{
		Use:   "search TERM...",
		Short: "Find people by name, email or preferred genres",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			people, err := a.mgr.Directory.Search(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.printPeople(cmd, people, "No people matched.")
		},
	}

	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a person's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changes := store.Fields{}
			for flag, column := range map[string]string{"name": "name", "email": "email", "genres": "preferred_genres"} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					changes[column] = v
				}
			}
			if len(changes) == 0 {
				return fmt.Errorf("nothing to change: pass --name, --email or --genres")
			}
			edited, err := a.mgr.People.Edit(cmd.Context(), store.Where("id", id), changes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Person updated: %s\n", edited[0])
			return nil
		},
	}
	edit.Flags().String("name", "", "new name")
	edit.Flags().String("email", "", "new email address")
	edit.Flags().String("genres", "", "new preferred genres")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a person; their loans and donations are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			deleted, err := a.mgr.People.SoftDelete(cmd.Context(), store.Where("id", id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Person deleted: %s\n", deleted[0])
			return nil
		},
	}

	loans := &cobra.Command{
		Use:   "loans ID",
		Short: "Show how many books a person currently has",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.mgr.People.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			n, err := a.mgr.Directory.ActiveLoanCount(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s has %d active loan(s)\n", p.Name, n)
			return nil
		},
	}

	cmd.AddCommand(add, list, search, edit, del, loans)
	return cmd
}

func (a *app) printPeople(cmd *cobra.Command, people []library.Person, empty string) error {
	out := cmd.OutOrStdout()
	if len(people) == 0 {
		fmt.Fprintln(out, empty)
		return nil
	}
	rows := make([][]string, 0, len(people))
	for _, p := range people {
		n, err := a.mgr.Directory.ActiveLoanCount(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Name, p.Email, p.PreferredGenres, strconv.Itoa(n)})
	}
	printTable(out, []string{"ID", "Name", "Email", "Genres", "Loans"}, rows)
	return nil
}

// ------------------ Books ------------------

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Catalog donated books"}

	var in library.BookInput
	var coverPath string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a donated book with its cover image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.mgr.Catalog.AddBookFromFile(cmd.Context(), in, coverPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book added: %s\n", b)
			return nil
		},
	}
	add.Flags().StringVar(&in.Title, "title", "", "title")
	add.Flags().StringVar(&in.Author, "author", "", "author")
	add.Flags().StringVar(&in.Genre, "genre", "", "genre")
	add.Flags().Int64Var(&in.DonorID, "donor", 0, "id of the donating person")
	add.Flags().StringVar(&coverPath, "cover", "", "path of the cover image")
	add.Flags().StringVar(&in.Note, "note", "", "free-form note")
	for _, f := range []string{"title", "author", "genre", "donor", "cover"} {
		_ = add.MarkFlagRequired(f)
	}

	var onlyAvailable bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var books []library.Book
			var err error
			if onlyAvailable {
				books, err = a.mgr.Catalog.AvailableBooks(ctx)
			} else {
				books, err = a.mgr.Books.Fetch(ctx, store.All())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintln(out, "No books in library.")
				return nil
			}
			rows := make([][]string, 0, len(books))
			for _, b := range books {
				available, err := a.mgr.Catalog.IsAvailable(ctx, b.ID)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10), b.Title, b.Author, b.Genre,
					strconv.FormatInt(b.DonorID, 10), yesNo(available),
				})
			}
			printTable(out, []string{"ID", "Title", "Author", "Genre", "Donor", "Available"}, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&onlyAvailable, "available", false, "only books that are not lent out")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a book from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			deleted, err := a.mgr.Books.SoftDelete(cmd.Context(), store.Where("id", id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book deleted: %s\n", deleted[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

// ------------------ Loans ------------------

func newLoanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "loan", Short: "Lend, extend and return books"}

	var req library.LoanRequest
	var start, due string
	open := &cobra.Command{
		Use:   "open",
		Short: "Lend a book to a person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if start != "" {
				if req.Start, err = store.ParseDate(start); err != nil {
					return err
				}
			}
			if due != "" {
				if req.Due, err = store.ParseDate(due); err != nil {
					return err
				}
			}
			loan, err := a.mgr.Lending.OpenLoan(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printCaption(cmd, "Loan opened", *loan)
		},
	}
	open.Flags().Int64Var(&req.BookID, "book", 0, "id of the book")
	open.Flags().Int64Var(&req.BorrowerID, "borrower", 0, "id of the borrowing person")
	open.Flags().StringVar(&start, "start", "", "start date, YYYY-MM-DD (default today)")
	open.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD (default start plus the configured loan days)")
	_ = open.MarkFlagRequired("book")
	_ = open.MarkFlagRequired("borrower")

	var overdue bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List open loans, earliest due first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var loans []library.Loan
			var err error
			if overdue {
				loans, err = a.mgr.Lending.OverdueLoans(ctx)
			} else {
				loans, err = a.mgr.Lending.OpenLoans(ctx)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(loans) == 0 {
				fmt.Fprintln(out, "No open loans.")
				return nil
			}
			rows := make([][]string, 0, len(loans))
			for _, l := range loans {
				caption, err := a.mgr.Lending.Describe(ctx, l)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					strconv.FormatInt(l.ID, 10), l.DueDate.String(),
					strconv.Itoa(a.mgr.Lending.DaysUntilDue(l)), caption,
				})
			}
			printTable(out, []string{"ID", "Due", "Days left", "Loan"}, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&overdue, "overdue", false, "only loans past their due date")

	var days int
	extend := &cobra.Command{
		Use:   "extend ID",
		Short: "Move a loan's due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = a.cfg.ExtensionDays
			}
			loan, err := a.mgr.Lending.Extend(cmd.Context(), id, days)
			if err != nil {
				return err
			}
			return a.printCaption(cmd, "Loan extended", *loan)
		},
	}
	extend.Flags().IntVar(&days, "days", library.DefaultExtensionDays, "days to add; negative shortens the loan")

	closeCmd := &cobra.Command{
		Use:   "close ID",
		Short: "Record the return of a lent book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			loan, err := a.mgr.Lending.Close(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loan %d closed, returned %s\n", loan.ID, loan.ReturnDate)
			return nil
		},
	}

	cmd.AddCommand(open, list, extend, closeCmd)
	return cmd
}

func (a *app) printCaption(cmd *cobra.Command, prefix string, loan library.Loan) error {
	caption, err := a.mgr.Lending.Describe(cmd.Context(), loan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (#%d): %s\n", prefix, loan.ID, caption)
	return nil
}

// ------------------ Export ------------------

func newExportCmd(a *app) *cobra.Command {
	var outPath, sheet string
	cmd := &cobra.Command{
		Use:   "export people|books|loans",
		Short: "Print a collection as a table or write it to an .xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.mgr.Project(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				printTable(cmd.OutOrStdout(), table.Columns, table.Strings())
				return nil
			}
			if sheet == "" {
				sheet = args[0]
			}
			if err := writeWorkbook(outPath, sheet, table); err != nil {
				return err
			}
			a.logger.Info("projection exported", "collection", args[0], "rows", len(table.Rows), "path", outPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) to %s\n", len(table.Rows), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write an .xlsx workbook to this path")
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet name (default the collection name)")
	return cmd
}

func writeWorkbook(path, sheet string, table *store.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := table.WriteXLSX(f, sheet); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
