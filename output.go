package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// maxColumnWidth caps each column when writing to a terminal narrower than
// the table.
const maxColumnWidth = 30

// printTable writes rows under a header and a dashed rule, columns padded to
// their widest cell. On a terminal, wide columns are truncated so the table
// fits the window.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	if cols, ok := terminalWidth(w); ok && lineWidth(widths) > cols {
		for i := range widths {
			widths[i] = min(widths[i], maxColumnWidth)
		}
	}

	writeRow(w, widths, headers)
	fmt.Fprintln(w, strings.Repeat("-", lineWidth(widths)))
	for _, row := range rows {
		writeRow(w, widths, row)
	}
}

// lineWidth is the printed width of a row: the columns and one space between each.
func lineWidth(widths []int) int {
	total := len(widths) - 1
	for _, w := range widths {
		total += w
	}
	return max(total, 0)
}

func writeRow(w io.Writer, widths []int, cells []string) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		cell = truncateString(cell, widths[i])
		parts[i] = cell + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, " "), " "))
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	cols, _, err := term.GetSize(fd)
	if err != nil || cols <= 0 {
		return 0, false
	}
	return cols, true
}

func truncateString(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string([]rune(s)[:maxLength])
	}
	return string([]rune(s)[:maxLength-3]) + "..."
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
