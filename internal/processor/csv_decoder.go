package processor

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Row is one decoded CSV line keyed by trimmed header name
type Row map[string]string

// DecodeRows lazily decodes r, yielding each data row with its 0-based index.
// Iteration stops at the first structural decode error.
func DecodeRows(r io.Reader) (columns []string, rows iter.Seq2[Row, error], err error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, func(func(Row, error) bool) {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	columns = make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		columns[i] = strings.TrimSpace(h)
	}

	rows = func(yield func(Row, error) bool) {
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("decode csv: %w", err))
				return
			}
			if isBlank(record) {
				continue
			}
			row := make(Row, len(columns))
			for i, col := range columns {
				if col == "" {
					continue
				}
				if i < len(record) {
					row[col] = record[i]
				} else {
					row[col] = ""
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}

	return columns, rows, nil
}

// DecodeFile materializes every row of the CSV file at path
func DecodeFile(path string) ([]string, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	columns, seq, err := DecodeRows(f)
	if err != nil {
		return nil, nil, err
	}

	var rows []Row
	for row, err := range seq {
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
