package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is a generic collection row: string keys, heterogeneous values, an
// "id" unique within its collection.
type Record map[string]any

// CollectionName names a whole-file collection.
type CollectionName string

// Collections addressed by the store. Templates and requests also exist in the system scope.
const (
	CollectionUsers       CollectionName = "users"
	CollectionRoles       CollectionName = "roles"
	CollectionContractors CollectionName = "contractors"
	CollectionDakRegister CollectionName = "dak_register"
	CollectionTemplates   CollectionName = "templates"
	CollectionRequests    CollectionName = "requests"
)

// DefaultsStatus reports whether records of the collection get status=active when the field is missing.
func (c CollectionName) DefaultsStatus() bool {
	return c == CollectionUsers || c == CollectionRoles
}

// Entity maps the collection to the entity type used in errors.
func (c CollectionName) Entity() EntityType {
	switch c {
	case CollectionUsers:
		return EntityUser
	case CollectionRoles:
		return EntityRole
	case CollectionContractors:
		return EntityContractor
	case CollectionDakRegister:
		return EntityDakEntry
	case CollectionTemplates:
		return EntityTemplate
	case CollectionRequests:
		return EntityRequest
	default:
		return EntityCollection
	}
}

// RecordStatus is the lifecycle flag carried by users and roles.
type RecordStatus string

// Known record statuses.
const (
	RecordActive    RecordStatus = "active"
	RecordSuspended RecordStatus = "suspended"
	RecordArchived  RecordStatus = "archived"
)

// ID returns the record identifier or "".
func (r Record) ID() string { return r.String("id") }

// String returns the value at key when it is a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Status returns the record status, treating a missing value as active.
func (r Record) Status() RecordStatus {
	if s := r.String("status"); s != "" {
		return RecordStatus(s)
	}
	return RecordActive
}

// Name returns the display name, falling back to the id.
func (r Record) Name() string {
	if n := r.String("name"); n != "" {
		return n
	}
	return r.ID()
}

// Clone copies the top-level map.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithDefaultStatus returns a copy carrying status=active if the field is missing.
func (r Record) WithDefaultStatus() Record {
	if _, ok := r["status"]; ok {
		return r
	}
	out := r.Clone()
	out["status"] = string(RecordActive)
	return out
}

// RecordFilter selects records of a loaded collection.
type RecordFilter int

// Filters over record status.
const (
	// FilterAll keeps everything.
	FilterAll RecordFilter = iota
	// FilterManageable hides archived records (management views).
	FilterManageable
	// FilterSelectable keeps only records that may act: not archived, not suspended.
	FilterSelectable
)

// Keep applies the filter to one record.
func (f RecordFilter) Keep(r Record) bool {
	switch f {
	case FilterManageable:
		return r.Status() != RecordArchived
	case FilterSelectable:
		s := r.Status()
		return s != RecordArchived && s != RecordSuspended
	default:
		return true
	}
}

// DecodeRecord converts a record into a typed value.
func DecodeRecord(r Record, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeRecords parses a stored collection payload. Numbers stay json.Number
// so a rewrite keeps them exact; an empty or null payload is an empty list.
func DecodeRecords(payload []byte) ([]Record, error) {
	records := []Record{}
	if len(bytes.TrimSpace(payload)) == 0 {
		return records, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// EncodeRecord converts a typed value into a record.
func EncodeRecord(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// Contractor is a department supplier referenced by generated documents.
type Contractor struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	PAN     string `json:"pan"`
	GST     string `json:"gst"`
	Mobile  string `json:"mobile"`
}

// Department is the metadata stored in department.json.
type Department struct {
	ID        string       `json:"id" validate:"required"`
	Name      string       `json:"name" validate:"required"`
	CreatedAt string       `json:"created_at"`
	Status    RecordStatus `json:"status"`
}
