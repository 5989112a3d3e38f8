// Package table is the small CSV frame the sync pipelines merge exports in.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmpty is returned by Parse when there is no header to read.
var ErrEmpty = errors.New("no columns to parse from csv")

// Table is a header plus rows of string cells. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Parse reads CSV text with a header line. Short rows are padded, long
// rows are rejected.
func Parse(text string) (*Table, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	t := &Table{Header: header}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(header), len(rec))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Len is the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Max returns the byte-wise greatest non-empty cell of a column.
func (t *Table) Max(col string) (string, bool) {
	idx := t.Column(col)
	if idx < 0 {
		return "", false
	}
	var latest string
	found := false
	for _, row := range t.Rows {
		v := row[idx]
		if v == "" {
			continue
		}
		if !found || v > latest {
			latest = v
			found = true
		}
	}
	return latest, found
}

// FilterGreater keeps rows whose cell in col compares strictly greater than
// cursor as plain strings. Timestamps are not parsed.
func (t *Table) FilterGreater(col, cursor string) (*Table, error) {
	idx := t.Column(col)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", col)
	}
	out := &Table{Header: t.Header}
	for _, row := range t.Rows {
		if row[idx] > cursor {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// Append returns t's rows followed by other's rows. Columns are matched by
// name; the header is t's columns then any new ones from other.
func (t *Table) Append(other *Table) *Table {
	header := append([]string(nil), t.Header...)
	for _, h := range other.Header {
		if !contains(header, h) {
			header = append(header, h)
		}
	}

	out := &Table{Header: header, Rows: make([][]string, 0, len(t.Rows)+len(other.Rows))}
	out.Rows = append(out.Rows, realign(t, header)...)
	out.Rows = append(out.Rows, realign(other, header)...)
	return out
}

func realign(t *Table, header []string) [][]string {
	pos := make([]int, len(header))
	for i, h := range header {
		pos[i] = t.Column(h)
	}
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		aligned := make([]string, len(header))
		for i, p := range pos {
			if p >= 0 {
				aligned[i] = row[p]
			}
		}
		rows = append(rows, aligned)
	}
	return rows
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Encode writes the table as CSV with a header line and no index column.
func (t *Table) Encode() (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return "", err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}
