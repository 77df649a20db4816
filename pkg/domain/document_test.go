package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDueDateClearedKeepsKeyPresence(t *testing.T) {
	if got := NoDueDate().Cleared(); got.Present() {
		t.Fatal("absent due date must stay absent when cleared")
	}
	cleared := DueOn("2024-05-01").Cleared()
	if !cleared.Present() || !cleared.IsNull() {
		t.Fatalf("expected null due date, got %+v", cleared)
	}
	if !NullDueDate().Cleared().IsNull() {
		t.Fatal("null stays null")
	}
	if _, ok := NullDueDate().Value(); ok {
		t.Fatal("null due date has no value")
	}
}

func TestDocumentMarshalWritesArraysAndTriState(t *testing.T) {
	doc := Document{ID: "DOC_2024_0001", Title: "t", CreatedBy: "a", CurrentOwner: "a", Status: StatusDraft}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"history":[]`) || !strings.Contains(text, `"attachments":[]`) {
		t.Fatalf("expected empty arrays, got %s", text)
	}
	if strings.Contains(text, "due_date") {
		t.Fatalf("absent due date written: %s", text)
	}
	doc.DueDate = NullDueDate()
	data, _ = json.Marshal(doc)
	if !strings.Contains(string(data), `"due_date":null`) {
		t.Fatalf("expected null due date, got %s", data)
	}
}

func TestDocumentUnmarshalKeepsUnknownKeys(t *testing.T) {
	raw := `{"id":"DOC_2024_0007","title":"x","status":"pending","note_sheet":{"a":1},"due_date":""}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.History == nil || doc.Attachments == nil {
		t.Fatal("expected missing arrays to decode as empty")
	}
	if !doc.DueDate.IsNull() {
		t.Fatalf("empty string due date should read as null, got %+v", doc.DueDate)
	}
	if string(doc.Extra["note_sheet"]) != `{"a":1}` {
		t.Fatalf("unknown key lost: %v", doc.Extra)
	}
	out, _ := json.Marshal(doc)
	if !strings.Contains(string(out), `"note_sheet":{"a":1}`) {
		t.Fatalf("unknown key not written back: %s", out)
	}
}

func TestDocumentUnmarshalRejectsNonObject(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`[1]`), &doc); err == nil {
		t.Fatal("expected error for array document")
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{History: []Event{{Action: ActionMoved}}, Extra: map[string]json.RawMessage{"k": json.RawMessage(`1`)}}
	c := doc.Clone()
	c.History = append(c.History, Event{Action: ActionEdited})
	c.History[0].By = "someone"
	c.Extra["k"][0] = '2'
	if len(doc.History) != 1 || doc.History[0].By != "" {
		t.Fatalf("clone shares history: %+v", doc.History)
	}
	if string(doc.Extra["k"]) != "1" {
		t.Fatalf("clone shares extra: %s", doc.Extra["k"])
	}
}

func TestInvolvedWithAndMatches(t *testing.T) {
	doc := Document{
		ID: "DOC_2024_0042", Title: "Budget Memo", CreatedBy: "alice", CurrentOwner: "carol",
		History: []Event{{Action: ActionMoved, From: "alice", To: "bob", By: "alice"}},
	}
	for _, user := range []string{"alice", "bob", "carol"} {
		if !doc.InvolvedWith(user) {
			t.Fatalf("expected %s to be involved", user)
		}
	}
	if doc.InvolvedWith("dave") || doc.InvolvedWith("") {
		t.Fatal("unexpected involvement")
	}
	if !doc.Matches("budget") || !doc.Matches("0042") || doc.Matches("  ") || doc.Matches("invoice") {
		t.Fatal("unexpected search match result")
	}
}

func TestLastUpdatedFallsBackToCreatedAt(t *testing.T) {
	doc := Document{CreatedAt: "2024-01-01T00:00:00Z"}
	if doc.LastUpdated() != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected last updated %s", doc.LastUpdated())
	}
	doc.History = []Event{{Time: "2024-02-01T00:00:00Z"}}
	if doc.LastUpdated() != "2024-02-01T00:00:00Z" {
		t.Fatalf("unexpected last updated %s", doc.LastUpdated())
	}
}

func TestDecodedEntriesAreWrittenBackUnchanged(t *testing.T) {
	oldEvent := `{"action":"moved","from":"alice","to":"bob","by":"alice","time":"2024-01-02T10:00:00Z","due_date":null,"remarks":"urgent note"}`
	oldAttachment := `{"filename":"1704189600000_scan.pdf","path":"storage/departments/d1/uploads/DOC_2024_0001/1704189600000_scan.pdf","uploaded_by":"alice","size":12}`
	raw := `{"id":"DOC_2024_0001","title":"t","status":"pending","history":[` + oldEvent + `],"attachments":[` + oldAttachment + `]}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.History[0].To != "bob" || doc.Attachments[0].UploadedBy != "alice" {
		t.Fatalf("modelled fields not decoded: %+v %+v", doc.History[0], doc.Attachments[0])
	}
	doc.History = append(doc.History, Event{Action: ActionEdited, By: "bob", Time: "2024-01-03T10:00:00Z", Note: "<b>"})
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var written struct {
		History     []json.RawMessage `json:"history"`
		Attachments []json.RawMessage `json:"attachments"`
	}
	if err := json.Unmarshal(out, &written); err != nil {
		t.Fatalf("decode written: %v", err)
	}
	if len(written.History) != 2 || string(written.History[0]) != oldEvent {
		t.Fatalf("existing history entry changed: %s", out)
	}
	if len(written.Attachments) != 1 || string(written.Attachments[0]) != oldAttachment {
		t.Fatalf("existing attachment changed: %s", out)
	}
	if !strings.Contains(string(written.History[1]), `"note":"<b>"`) || strings.Contains(string(written.History[1]), "due_date") {
		t.Fatalf("unexpected new entry %s", written.History[1])
	}
}
