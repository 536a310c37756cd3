package store_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lending-library/store"
)

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"id":               "Id",
		"preferred_genres": "Preferred genres",
		"DUE_DATE":         "Due date",
		"":                 "",
	}
	for in, want := range cases {
		if got := store.Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", store.FormatCell(nil))
	assert.Equal(t, "<3 bytes>", store.FormatCell([]byte{1, 2, 3}))
	assert.Equal(t, "yes", store.FormatCell(true))
	assert.Equal(t, "2024-05-06", store.FormatCell(store.NewDate(2024, time.May, 6)))
	assert.Equal(t, "2024-05-06T07:08:09Z", store.FormatCell(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))
	assert.Equal(t, "42", store.FormatCell(int64(42)))
}

func TestWriteXLSX(t *testing.T) {
	table := &store.Table{
		Fields:  []string{"id", "title", "due_date"},
		Columns: []string{"Id", "Title", "Due date"},
		Rows: [][]any{
			{int64(1), "Dune", store.NewDate(2024, 1, 2)},
			{int64(2), "Emma", nil},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, table.WriteXLSX(&buf, "Loans"))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Loans")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Id", "Title", "Due date"}, rows[0])
	assert.Equal(t, []string{"1", "Dune", "2024-01-02"}, rows[1])
	assert.Equal(t, []string{"2", "Emma"}, rows[2][:2])
}
