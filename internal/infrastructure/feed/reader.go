package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("feed header is missing a required column")

// Column aliases accepted in the feed header, matched case-insensitively.
// The first alias is the canonical name written by the updater.
var columnAliases = map[string][]string{
	colTitle:   {"title", "product-name", "product_name"},
	colConsole: {"console", "console-name", "console_name"},
	colLoose:   {"loose_price", "loose-price"},
	colCIB:     {"cib_price", "cib-price"},
	colNew:     {"new_price", "new-price"},
}

const (
	colTitle   = "title"
	colConsole = "console"
	colLoose   = "loose"
	colCIB     = "cib"
	colNew     = "new"
)

// Reader streams ExternalPriceRecords out of a CSV feed. The header row is
// read once by NewReader and applies to every chunk.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
	skipped int
	onSkip  func(line int, reason string)
}

// NewReader reads the header row and resolves the column positions
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty feed", ErrMissingColumn)
		}
		return nil, err
	}

	columns, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	return &Reader{csv: cr, columns: columns, onSkip: func(int, string) {}}, nil
}

// OnSkip registers a callback invoked for every row that is skipped
func (r *Reader) OnSkip(fn func(line int, reason string)) {
	if fn != nil {
		r.onSkip = fn
	}
}

// Skipped returns the number of rows skipped so far
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next usable record. Rows without a title or console and
// rows the CSV parser rejects are skipped and counted. io.EOF marks the end.
func (r *Reader) Next() (domain.ExternalPriceRecord, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.skip(parseErr.Line, parseErr.Err.Error())
				continue
			}
			return domain.ExternalPriceRecord{}, err
		}

		rec := MapRow(row, r.columns)
		if rec.Title == "" || rec.Console == "" {
			line, _ := r.csv.FieldPos(0)
			r.skip(line, "missing title or console")
			continue
		}
		return rec, nil
	}
}

// ReadChunk returns up to n records; n <= 0 reads to the end of the feed.
// It returns io.EOF only when no records are left.
func (r *Reader) ReadChunk(n int) ([]domain.ExternalPriceRecord, error) {
	var records []domain.ExternalPriceRecord
	if n > 0 {
		records = make([]domain.ExternalPriceRecord, 0, n)
	}

	for n <= 0 || len(records) < n {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, io.EOF
	}
	return records, nil
}

func (r *Reader) skip(line int, reason string) {
	r.skipped++
	r.onSkip(line, reason)
}

// MapRow converts one CSV row into a record using resolved column positions.
// Prices are parsed into Money; blank or unparsable prices become null.
func MapRow(row []string, columns map[string]int) domain.ExternalPriceRecord {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	return domain.ExternalPriceRecord{
		Title:      field(colTitle),
		Console:    field(colConsole),
		LoosePrice: domain.ParseMoney(field(colLoose)),
		CIBPrice:   domain.ParseMoney(field(colCIB)),
		NewPrice:   domain.ParseMoney(field(colNew)),
	}
}

// resolveColumns maps each known column to its index in the header.
// Title and console are required; price columns are optional.
func resolveColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	columns := make(map[string]int, len(columnAliases))
	for col, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := positions[alias]; ok {
				columns[col] = idx
				break
			}
		}
	}

	for _, required := range []string{colTitle, colConsole} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, columnAliases[required][0])
		}
	}
	return columns, nil
}
