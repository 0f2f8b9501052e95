package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// Row is one unit of input data to be scored. Values are the usual
// JSON-decoded shapes: strings, float64, bool, []any, map[string]any.
type Row map[string]any

// Dataset is an ordered, read-only sequence of rows with a fixed column
// set. Rows are addressed by a stable 0-based index. Rows may omit
// columns; a missing field is absent, not null.
type Dataset struct {
	rows    []Row
	columns []string
}

// New builds a dataset from rows. The column set is the union of field
// names across all rows, sorted for determinism.
func New(rows []Row) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, errors.New("dataset: no rows")
	}

	seen := make(map[string]struct{})
	for i, r := range rows {
		if r == nil {
			return nil, fmt.Errorf("dataset: rows[%d]: nil row", i)
		}
		for k := range r {
			seen[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	return &Dataset{rows: rows, columns: columns}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Row returns the row at index i.
func (d *Dataset) Row(i int) (Row, error) {
	if d == nil {
		return nil, errors.New("dataset: nil dataset")
	}
	if i < 0 || i >= len(d.rows) {
		return nil, fmt.Errorf("dataset: row index %d out of range [0,%d)", i, len(d.rows))
	}
	return d.rows[i], nil
}

// Rows returns the underlying row slice. Callers must treat it as
// read-only; the dataset is shared across concurrent readers.
func (d *Dataset) Rows() []Row {
	if d == nil {
		return nil
	}
	return d.rows
}

// Columns returns the column names in sorted order.
func (d *Dataset) Columns() []string {
	if d == nil {
		return nil
	}
	return d.columns
}
