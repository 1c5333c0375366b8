package processor

import (
	"encoding/csv"
	"io"
	"strconv"

	"bulkload/internal/model"
)

// WriteFailedRecordsCSV renders failed entries as
// "Row,Error Reason,<columns...>", one line per entry. Row is 1-based.
func WriteFailedRecordsCSV(w io.Writer, columns []string, entries []model.FailedRecordEntry) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(columns)+2)
	header = append(header, "Row", "Error Reason")
	header = append(header, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, entry := range entries {
		line := make([]string, 0, len(header))
		line = append(line, strconv.Itoa(i+1), entry.Reason)
		for _, col := range columns {
			line = append(line, entry.Record[col])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
