// Package domain defines the persistent entities of officeflow (documents,
// history events, Dak register entries, generic collection records) together
// with the error taxonomy shared by the store and the routing engine.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EntityType identifies the kind of record an error or audit entry refers to.
type EntityType string

// Entity identifiers used in errors, metrics and audit entries.
const (
	EntityDocument   EntityType = "document"
	EntityAttachment EntityType = "attachment"
	EntityUser       EntityType = "user"
	EntityRole       EntityType = "role"
	EntityContractor EntityType = "contractor"
	EntityDakEntry   EntityType = "dak_entry"
	EntityTemplate   EntityType = "template"
	EntityRequest    EntityType = "request"
	EntityDepartment EntityType = "department"
	EntityCollection EntityType = "collection"
)

// DocumentStatus is caller-defined; the engine only gates edits on draft and correction.
type DocumentStatus string

// Statuses with meaning to the engine or to the built-in workflows.
const (
	StatusDraft      DocumentStatus = "draft"
	StatusPending    DocumentStatus = "pending"
	StatusCorrection DocumentStatus = "correction"
	StatusArchived   DocumentStatus = "archived"
)

// Editable reports whether edit-in-place is permitted in this status.
func (s DocumentStatus) Editable() bool {
	return s == StatusDraft || s == StatusCorrection
}

// EventAction tags a history entry.
type EventAction string

// History actions written by the engine.
const (
	ActionMoved         EventAction = "moved"
	ActionEdited        EventAction = "edited"
	ActionAdminOverride EventAction = "admin_override"
	ActionAttached      EventAction = "attached"
	ActionDetached      EventAction = "detached"
)

// Event is one immutable history entry. A decoded entry is written back
// exactly as it was read, keys this package does not model included.
type Event struct {
	Action  EventAction `json:"action"`
	From    string      `json:"from,omitempty"`
	To      string      `json:"to,omitempty"`
	By      string      `json:"by"`
	Time    string      `json:"time"`
	DueDate string      `json:"due_date,omitempty"`
	Note    string      `json:"note,omitempty"`

	raw json.RawMessage
}

type eventFields Event

func (e Event) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return marshalUnescaped(eventFields(e))
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var f eventFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	f.raw = verbatim(data)
	*e = Event(f)
	return nil
}

// Attachment is the metadata of an uploaded binary; the bytes live in the
// blob store. Like Event, a decoded entry is written back unchanged.
type Attachment struct {
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	UploadedBy string `json:"uploaded_by"`

	raw json.RawMessage
}

type attachmentFields Attachment

func (a Attachment) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	return marshalUnescaped(attachmentFields(a))
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var f attachmentFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	f.raw = verbatim(data)
	*a = Attachment(f)
	return nil
}

func verbatim(data []byte) json.RawMessage {
	return append(json.RawMessage(nil), bytes.TrimSpace(data)...)
}

func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DueDate is tri-state: absent, explicitly null, or a YYYY-MM-DD value.
// Older clients test for key existence, so once a document has carried a due
// date the key stays present (as null) after it is cleared.
type DueDate struct {
	set   bool
	value string
}

// NoDueDate is the absent state.
func NoDueDate() DueDate { return DueDate{} }

// NullDueDate is the present-but-null state.
func NullDueDate() DueDate { return DueDate{set: true} }

// DueOn returns a due date set to the given YYYY-MM-DD day.
func DueOn(day string) DueDate { return DueDate{set: true, value: day} }

// Present reports whether the due_date key exists on the document.
func (d DueDate) Present() bool { return d.set }

// IsNull reports the present-but-null state.
func (d DueDate) IsNull() bool { return d.set && d.value == "" }

// Value returns the day and whether one is set.
func (d DueDate) Value() (string, bool) { return d.value, d.value != "" }

// Cleared returns the state after a move without a due date.
func (d DueDate) Cleared() DueDate {
	if !d.set {
		return d
	}
	return NullDueDate()
}

// Document is the routed entity.
type Document struct {
	ID           string
	Title        string
	Content      string
	CreatedBy    string
	CreatedAt    string
	CurrentOwner string
	Status       DocumentStatus
	DueDate      DueDate
	History      []Event
	Attachments  []Attachment
	// Extra keeps keys this package does not model so rewrites never drop them.
	Extra map[string]json.RawMessage
}

var documentKeys = map[string]struct{}{
	"id": {}, "title": {}, "content": {}, "created_by": {}, "created_at": {},
	"current_owner": {}, "status": {}, "due_date": {}, "history": {}, "attachments": {},
}

// MarshalJSON writes a key-sorted object; due_date follows the tri-state.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(documentKeys)+len(d.Extra))
	for k, v := range d.Extra {
		if _, known := documentKeys[k]; known {
			continue
		}
		out[k] = v
	}
	out["id"] = d.ID
	out["title"] = d.Title
	out["content"] = d.Content
	out["created_by"] = d.CreatedBy
	out["current_owner"] = d.CurrentOwner
	out["status"] = d.Status
	if d.CreatedAt != "" {
		out["created_at"] = d.CreatedAt
	}
	if d.DueDate.Present() {
		if day, ok := d.DueDate.Value(); ok {
			out["due_date"] = day
		} else {
			out["due_date"] = nil
		}
	}
	history := d.History
	if history == nil {
		history = []Event{}
	}
	out["history"] = history
	attachments := d.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	out["attachments"] = attachments
	return marshalUnescaped(out)
}

// UnmarshalJSON accepts any object; missing arrays decode as empty.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document: not an object")
	}
	var doc Document
	fields := []struct {
		key    string
		target any
	}{
		{"id", &doc.ID},
		{"title", &doc.Title},
		{"content", &doc.Content},
		{"created_by", &doc.CreatedBy},
		{"created_at", &doc.CreatedAt},
		{"current_owner", &doc.CurrentOwner},
		{"status", &doc.Status},
		{"history", &doc.History},
		{"attachments", &doc.Attachments},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok || isNull(v) {
			continue
		}
		if err := json.Unmarshal(v, f.target); err != nil {
			return fmt.Errorf("document %s: %w", f.key, err)
		}
	}
	if v, ok := raw["due_date"]; ok {
		if isNull(v) {
			doc.DueDate = NullDueDate()
		} else {
			var day string
			if err := json.Unmarshal(v, &day); err != nil {
				return fmt.Errorf("document due_date: %w", err)
			}
			if day == "" {
				doc.DueDate = NullDueDate()
			} else {
				doc.DueDate = DueOn(day)
			}
		}
	}
	if doc.History == nil {
		doc.History = []Event{}
	}
	if doc.Attachments == nil {
		doc.Attachments = []Attachment{}
	}
	for k, v := range raw {
		if _, known := documentKeys[k]; known {
			continue
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]json.RawMessage)
		}
		doc.Extra[k] = v
	}
	*d = doc
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Clone returns a deep copy so a failed mutation can be discarded.
func (d Document) Clone() Document {
	c := d
	c.History = append([]Event{}, d.History...)
	c.Attachments = append([]Attachment{}, d.Attachments...)
	if d.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// LastEvent returns the most recent history entry.
func (d Document) LastEvent() (Event, bool) {
	if len(d.History) == 0 {
		return Event{}, false
	}
	return d.History[len(d.History)-1], true
}

// LastUpdated is the last event time, falling back to created_at.
func (d Document) LastUpdated() string {
	if ev, ok := d.LastEvent(); ok && ev.Time != "" {
		return ev.Time
	}
	return d.CreatedAt
}

// InvolvedWith reports whether user owns, created, or appears anywhere in the history.
func (d Document) InvolvedWith(user string) bool {
	if user == "" {
		return false
	}
	if d.CurrentOwner == user || d.CreatedBy == user {
		return true
	}
	for _, ev := range d.History {
		if ev.From == user || ev.To == user || ev.By == user {
			return true
		}
	}
	return false
}

// Matches is the case-insensitive id/title search used by the search view.
func (d Document) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(d.ID), term) || strings.Contains(strings.ToLower(d.Title), term)
}

// AttachmentIndex returns the index of the attachment stored at path, or -1.
func (d Document) AttachmentIndex(path string) int {
	for i, a := range d.Attachments {
		if a.Path == path {
			return i
		}
	}
	return -1
}
