package capture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// recordLine is the persisted shape of one record: a self-contained JSON
// object per line. Struct tags fix the field order so output is
// deterministic for identical input.
type recordLine struct {
	Request  RequestInfo   `json:"request"`
	Response *ResponseInfo `json:"response,omitempty"`
	TS       string        `json:"ts"`
}

// EncodeJSONL renders records as newline-delimited JSON. Each line carries
// the record's own observation timestamp when known, otherwise the run
// timestamp, as ISO-8601 UTC.
func EncodeJSONL(records []NetworkRecord, capturedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, record := range records {
		ts := record.Observed
		if ts.IsZero() {
			ts = capturedAt
		}
		line := recordLine{
			Request:  record.Request,
			Response: record.Response,
			TS:       ts.UTC().Format(time.RFC3339),
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeJSONL parses newline-delimited JSON produced by EncodeJSONL back
// into records, preserving order.
func DecodeJSONL(data []byte) ([]NetworkRecord, error) {
	var records []NetworkRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line recordLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", lineNo, err)
		}
		record := NetworkRecord{
			Request:  line.Request,
			Response: line.Response,
		}
		if line.TS != "" {
			ts, err := time.Parse(time.RFC3339, line.TS)
			if err != nil {
				return nil, fmt.Errorf("decode line %d timestamp: %w", lineNo, err)
			}
			record.Observed = ts
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return records, nil
}
