package store

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/xuri/excelize/v2"
)

// Table is a tabular projection of a repository: a header row and one row of
// cells per live entity.
type Table struct {
	Fields  []string
	Columns []string
	Rows    [][]any
}

// Project returns every live entity as a table. Columns whose names start
// with an underscore are left out.
func (r *Repository[T, P]) Project(ctx context.Context) (*Table, error) {
	items, err := r.Fetch(ctx, All())
	if err != nil {
		return nil, err
	}

	var visible []column
	for _, c := range r.schema.columns {
		if !c.hidden() {
			visible = append(visible, c)
		}
	}
	t := &Table{Rows: make([][]any, 0, len(items))}
	for _, c := range visible {
		t.Fields = append(t.Fields, c.name)
		t.Columns = append(t.Columns, Humanize(c.name))
	}
	for i := range items {
		v := reflect.ValueOf(&items[i]).Elem()
		row := make([]any, len(visible))
		for j, c := range visible {
			row[j] = cellValue(reflectx.FieldByIndexesReadOnly(v, c.index))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func cellValue(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

// Humanize turns a column name into a header: underscores become spaces and
// only the first letter is upper case.
func Humanize(name string) string {
	s := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, "_", " ")))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// FormatCell renders a cell for text output.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case time.Time:
		return x.Format(time.RFC3339)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Strings renders every row with FormatCell.
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatCell(v)
		}
		out[i] = cells
	}
	return out
}

// WriteXLSX writes the table as a single-sheet workbook.
func (t *Table) WriteXLSX(w io.Writer, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = xlsxValue(v)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func xlsxValue(v any) any {
	switch x := v.(type) {
	case int64, int, float64, bool:
		return x
	default:
		return FormatCell(x)
	}
}
