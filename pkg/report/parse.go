package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// Delimiter separates the fields of one report record.
const Delimiter = ';'

// RemovedKey is disclosed by the tool but never modeled downstream.
const RemovedKey = "FW_path"

// Value is either a scalar or a nested map of sub-keys to scalars.
type Value struct {
	Scalar string
	Nested map[string]string
}

// IsNested reports whether the value was built from three-field rows.
func (v Value) IsNested() bool {
	return v.Nested != nil
}

// Fields is the lenient, untyped view of a report.
type Fields map[string]Value

// Parse reads report records from b. Rows with other than two or three
// fields are ignored. The RemovedKey entry is dropped.
func Parse(b []byte) (Fields, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	fields := make(Fields)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.ParseError{Err: err}
		}

		switch len(row) {
		case 2:
			fields[row[0]] = Value{Scalar: row[1]}
		case 3:
			v, ok := fields[row[0]]
			if !ok || !v.IsNested() {
				v = Value{Nested: make(map[string]string)}
			}
			v.Nested[row[1]] = row[2]
			fields[row[0]] = v
		}
	}

	delete(fields, RemovedKey)
	return fields, nil
}

// ParseResult parses b and extracts the typed result in one call.
func ParseResult(b []byte) (core.ResultFields, error) {
	fields, err := Parse(b)
	if err != nil {
		return core.ResultFields{}, err
	}
	res, err := fields.Extract()
	if err != nil {
		return core.ResultFields{}, fmt.Errorf("extracting report fields: %w", err)
	}
	return res, nil
}
