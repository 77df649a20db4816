package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DakDirection distinguishes incoming from outgoing physical mail.
type DakDirection string

// Dak directions.
const (
	DakIncoming DakDirection = "incoming"
	DakOutgoing DakDirection = "outgoing"
)

// Valid reports whether d is a known direction.
func (d DakDirection) Valid() bool { return d == DakIncoming || d == DakOutgoing }

// ReferencePrefix returns the fixed part of reference numbers for d.
func (d DakDirection) ReferencePrefix() string {
	if d == DakOutgoing {
		return "DAK/OUT/"
	}
	return "DAK/IN/"
}

// DakEntry is one row of the department Dak register.
type DakEntry struct {
	ReferenceNo  string       `json:"reference_no"`
	Direction    DakDirection `json:"direction" validate:"required,oneof=incoming outgoing"`
	Sender       string       `json:"sender" validate:"required"`
	Subject      string       `json:"subject" validate:"required"`
	ReceivedDate string       `json:"received_date" validate:"required,datetime=2006-01-02"`
	PhysicalMode string       `json:"physical_mode" validate:"required"`
	AssignedTo   string       `json:"assigned_to" validate:"required"`
	CreatedAt    string       `json:"created_at"`
	CreatedBy    string       `json:"created_by"`
}

// FormatDakReference renders DAK/<IN|OUT>/<year>/<counter> with a 3-digit counter.
func FormatDakReference(d DakDirection, year, counter int) string {
	return fmt.Sprintf("%s%d/%03d", d.ReferencePrefix(), year, counter)
}

// DakCounter extracts the counter from ref when it belongs to direction d and year.
func DakCounter(ref string, d DakDirection, year int) (int, bool) {
	prefix := fmt.Sprintf("%s%d/", d.ReferencePrefix(), year)
	if !strings.HasPrefix(ref, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(ref[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DraftBody is the plain-text summary copied into a document converted from a Dak entry.
func (e DakEntry) DraftBody() string {
	return fmt.Sprintf("Dak Reference: %s\nSender: %s\nMode: %s\nReceived: %s",
		e.ReferenceNo, e.Sender, e.PhysicalMode, e.ReceivedDate)
}
