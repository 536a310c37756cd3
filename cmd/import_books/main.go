package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lending-library/internal/config"
	"lending-library/internal/logging"
	"lending-library/library"
	"lending-library/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newImportCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	var cfgPath, dbPath string
	cmd := &cobra.Command{
		Use:          "import_books MANIFEST",
		Short:        "Import donated books and their covers from a YAML manifest",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()).With("run_id", uuid.NewString())

			manifest, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			manager, err := library.Open(cmd.Context(), cfg.DatabasePath, library.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("error opening database: %w", err)
			}
			defer manager.Close()

			_, err = runImport(cmd.Context(), manager, manifest, filepath.Dir(args[0]), cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", config.ConfigPath, "path to the YAML configuration file")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides the configuration)")
	return cmd
}

type report struct {
	imported []library.Book
	failed   int
}

// runImport adds every book of the manifest, reporting per book to out. A
// book that cannot be imported is counted and skipped; the rest continue.
func runImport(ctx context.Context, manager *library.Manager, m *Manifest, manifestDir string, out io.Writer) (report, error) {
	var rep report
	donors := map[string]int64{}

	fmt.Fprintf(out, "Importing %d books...\n", len(m.Books))
	for _, b := range m.Books {
		fmt.Fprintf(out, "Importing: %s by %s... ", b.Title, b.Author)

		donorID, err := resolveDonor(ctx, manager, donors, m.donorFor(b))
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			rep.failed++
			continue
		}

		book, err := manager.Catalog.AddBookFromFile(ctx, library.BookInput{
			Title:   b.Title,
			Author:  b.Author,
			Genre:   b.Genre,
			DonorID: donorID,
			Note:    b.Note,
		}, m.coverPath(manifestDir, b))
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			rep.failed++
			continue
		}

		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", book.ID)
		rep.imported = append(rep.imported, *book)
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", len(rep.imported))
	fmt.Fprintf(out, "Errors: %d\n", rep.failed)

	// Display summary of imported books
	if len(rep.imported) > 0 {
		fmt.Fprintln(out, "\nImported books:")
		fmt.Fprintf(out, "%-5s %-30s %-25s %-12s %-10s\n", "ID", "Title", "Author", "Genre", "Available")
		fmt.Fprintln(out, strings.Repeat("-", 86))
		for _, book := range rep.imported {
			available, err := manager.Catalog.IsAvailable(ctx, book.ID)
			if err != nil {
				return rep, err
			}
			fmt.Fprintln(out, library.PrettyBook(book, available))
		}
	}
	return rep, nil
}

func resolveDonor(ctx context.Context, manager *library.Manager, cache map[string]int64, email string) (int64, error) {
	if email == "" {
		return 0, fmt.Errorf("no donor given")
	}
	if id, ok := cache[email]; ok {
		return id, nil
	}
	people, err := manager.People.Fetch(ctx, store.Where("email", email))
	if err != nil {
		return 0, err
	}
	if len(people) == 0 {
		return 0, fmt.Errorf("no person with email %s", email)
	}
	cache[email] = people[0].ID
	return people[0].ID, nil
}
