// Package model defines the report type shared by the API client, the
// storage layer and the sync engine.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for cursors: UTC with
// millisecond precision and a literal Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Report is a single record of the remote reports dataset.
//
// Only ID, UpdatedAt and DeletedAt take part in sync logic. Every other
// field of the JSON object is kept as raw bytes and written back
// unchanged, so the cache never loses data the server sent.
type Report struct {
	// ID is the canonical JSON text of the "id" field (e.g. `42` or
	// `"a1"`). Two reports are the same record when their IDs are equal.
	ID string

	// UpdatedAt is the raw "updated_at" timestamp string.
	UpdatedAt string

	// DeletedAt is the raw "deleted_at" timestamp string. Empty when the
	// field is absent, null or "".
	DeletedAt string

	fields map[string]json.RawMessage
}

// IsDeleted reports whether the record is a tombstone.
func (r Report) IsDeleted() bool {
	return r.DeletedAt != ""
}

// UpdatedTime parses UpdatedAt as RFC 3339.
func (r Report) UpdatedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.UpdatedAt)
}

// Field returns the raw JSON of an arbitrary field and whether it exists.
func (r Report) Field(name string) (json.RawMessage, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// UnmarshalJSON decodes a report object, keeping all fields.
func (r *Report) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding report: %w", err)
	}
	if fields == nil {
		return errors.New("decoding report: null object")
	}

	rawID, ok := fields["id"]
	if !ok || isNull(rawID) {
		return errors.New("decoding report: missing id")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, rawID); err != nil {
		return fmt.Errorf("decoding report id: %w", err)
	}

	updatedAt, err := optionalString(fields, "updated_at")
	if err != nil {
		return err
	}
	deletedAt, err := optionalString(fields, "deleted_at")
	if err != nil {
		return err
	}

	*r = Report{
		ID:        compact.String(),
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		fields:    fields,
	}
	return nil
}

// MarshalJSON encodes the report with every field it was decoded with.
func (r Report) MarshalJSON() ([]byte, error) {
	if r.fields != nil {
		return json.Marshal(r.fields)
	}
	// Built in code rather than decoded: emit the sync fields only.
	out := map[string]json.RawMessage{}
	if r.ID != "" {
		out["id"] = json.RawMessage(r.ID)
	}
	if r.UpdatedAt != "" {
		b, _ := json.Marshal(r.UpdatedAt)
		out["updated_at"] = b
	}
	if r.DeletedAt != "" {
		b, _ := json.Marshal(r.DeletedAt)
		out["deleted_at"] = b
	}
	return json.Marshal(out)
}

// DecodeDataset decodes a JSON array of reports. A JSON null decodes to a
// nil slice.
func DecodeDataset(data []byte) ([]Report, error) {
	var reports []Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	return reports, nil
}

// EncodeDataset encodes reports as a JSON array. A nil slice encodes as [].
func EncodeDataset(reports []Report) ([]byte, error) {
	if reports == nil {
		reports = []Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return nil, fmt.Errorf("encoding dataset: %w", err)
	}
	return data, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("decoding report %s: %w", name, err)
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
