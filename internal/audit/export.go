package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatJSON exports events as a pretty-printed JSON array.
	ExportFormatJSON ExportFormat = "json"
	// ExportFormatCSV exports events as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
)

// Export serializes the events matching the filter for offline audit review.
// The same predicate semantics as Search apply; results are newest first.
func (q *QueryEngine) Export(ctx context.Context, filter Filter, format ExportFormat) ([]byte, error) {
	events, err := q.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	switch format {
	case ExportFormatJSON:
		return exportToJSON(events)
	case ExportFormatCSV:
		return exportToCSV(events)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportToJSON renders a self-describing JSON document, one array of events
// per export call.
func exportToJSON(events []*Event) ([]byte, error) {
	if events == nil {
		events = []*Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// exportToCSV renders one row per event with a fixed header.
func exportToCSV(events []*Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Timestamp (UTC)",
		"Action",
		"Category",
		"Severity",
		"Actor ID",
		"Actor Name",
		"Actor Role",
		"Target Type",
		"Target ID",
		"Target Name",
		"Description",
		"Success",
		"Error Message",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format(time.RFC3339),
			e.Action,
			string(e.Category),
			string(e.Severity),
			e.ActorID,
			e.ActorName,
			e.ActorRole,
			e.TargetType,
			e.TargetID,
			e.TargetName,
			e.Description,
			strconv.FormatBool(e.Success),
			e.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
