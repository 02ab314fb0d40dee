package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "occurred_at", "method", "success", "kind",
	"user_id", "key_id", "reason", "request_id", "client_ip",
}

// Export writes records to w in the given format. Unknown formats fall back
// to JSON.
func Export(w io.Writer, records []*Record, format ExportFormat) error {
	switch format {
	case FormatCSV:
		return exportCSV(w, records)
	case FormatNDJSON:
		return exportNDJSON(w, records)
	default:
		if records == nil {
			records = []*Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
}

// ContentType returns the MIME type and file extension for format.
func ContentType(format ExportFormat) (string, string) {
	switch format {
	case FormatCSV:
		return "text/csv", "csv"
	case FormatNDJSON:
		return "application/x-ndjson", "ndjson"
	default:
		return "application/json", "json"
	}
}

func exportNDJSON(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, records []*Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.OccurredAt.UTC().Format(time.RFC3339),
			string(rec.Method),
			strconv.FormatBool(rec.Success),
			rec.Kind,
			rec.UserID,
			rec.KeyID,
			rec.Reason,
			rec.RequestID,
			rec.ClientIP,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
