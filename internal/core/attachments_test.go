package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"officeflow/internal/blob"
	"officeflow/pkg/domain"
)

func TestAttachAndOpenFile(t *testing.T) {
	store := blob.NewMemory()
	svc := newTestService(t, WithBlobStore(store))
	ctx := context.Background()
	doc := mustCreate(t, svc, "alice", "Memo")

	att, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: "Scan 01.PDF", Body: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	wantKey := "departments/d1/uploads/" + doc.ID + "/1710495000000_Scan_01.PDF"
	if att.Path != "storage/"+wantKey || att.Filename != "1710495000000_Scan_01.PDF" || att.UploadedBy != "alice" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if _, err := store.Head(ctx, wantKey); err != nil {
		t.Fatalf("blob missing: %v", err)
	}
	stored, _ := svc.GetDocument(ctx, "d1", doc.ID)
	if len(stored.Attachments) != 1 || stored.Attachments[0] != att {
		t.Fatalf("metadata not recorded: %+v", stored.Attachments)
	}

	_, rc, err := svc.OpenAttachment(ctx, "d1", doc.ID, att.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "%PDF" {
		t.Fatalf("unexpected content %q", data)
	}

	second, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: "Scan 01.PDF", Body: strings.NewReader("again")})
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if second.Path == att.Path {
		t.Fatalf("same-name uploads must get distinct keys")
	}
}

func TestAttachRejectsBadUploads(t *testing.T) {
	svc := newTestService(t, WithBlobStore(blob.NewMemory()))
	ctx := context.Background()
	doc := mustCreate(t, svc, "alice", "Memo")
	for _, name := range []string{"shell.sh", "run.exe", "index.php", "notes.txt", "noext"} {
		_, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: name, Body: strings.NewReader("x")})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected %s rejected, got %v", name, err)
		}
	}
	_, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "bob", Filename: "a.pdf", Body: strings.NewReader("x")})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	stored, _ := svc.GetDocument(ctx, "d1", doc.ID)
	if len(stored.Attachments) != 0 {
		t.Fatalf("rejected uploads left metadata: %+v", stored.Attachments)
	}
}

func TestAttachPutFailureLeavesDocumentUntouched(t *testing.T) {
	store := blob.NewFaultyMemory(func(string) error { return errors.New("disk full") }, nil)
	svc := newTestService(t, WithBlobStore(store))
	doc := mustCreate(t, svc, "alice", "Memo")
	_, err := svc.AttachFile(context.Background(), AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: "a.pdf", Body: strings.NewReader("x")})
	if !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected persist failure, got %v", err)
	}
	stored, _ := svc.GetDocument(context.Background(), "d1", doc.ID)
	if len(stored.Attachments) != 0 || len(stored.History) != 0 {
		t.Fatalf("document changed after failed upload: %+v", stored)
	}
}

func TestDetachDeletesBinaryThenMetadata(t *testing.T) {
	var failDelete atomic.Bool
	store := blob.NewFaultyMemory(nil, func(string) error {
		if failDelete.Load() {
			return errors.New("permission denied")
		}
		return nil
	})
	svc := newTestService(t, WithBlobStore(store))
	ctx := context.Background()
	doc := mustCreate(t, svc, "alice", "Memo")
	att, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: "a.pdf", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	failDelete.Store(true)
	if err := svc.DetachFile(ctx, "d1", doc.ID, "alice", att.Path); !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("expected persist failure, got %v", err)
	}
	stored, _ := svc.GetDocument(ctx, "d1", doc.ID)
	if stored.AttachmentIndex(att.Path) < 0 {
		t.Fatalf("metadata must survive a failed binary delete")
	}

	failDelete.Store(false)
	if err := svc.DetachFile(ctx, "d1", doc.ID, "alice", att.Path); err != nil {
		t.Fatalf("detach: %v", err)
	}
	stored, _ = svc.GetDocument(ctx, "d1", doc.ID)
	if len(stored.Attachments) != 0 {
		t.Fatalf("metadata not removed: %+v", stored.Attachments)
	}
	if ev, _ := stored.LastEvent(); ev.Action != domain.ActionDetached {
		t.Fatalf("expected detached event, got %+v", ev)
	}
	if _, err := store.Head(ctx, strings.TrimPrefix(att.Path, "storage/")); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("binary still present: %v", err)
	}
}

func TestDetachToleratesMissingBinary(t *testing.T) {
	store := blob.NewMemory()
	svc := newTestService(t, WithBlobStore(store))
	ctx := context.Background()
	doc := mustCreate(t, svc, "alice", "Memo")
	att, err := svc.AttachFile(ctx, AttachFileInput{Department: "d1", DocumentID: doc.ID, Actor: "alice", Filename: "a.png", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := store.Delete(ctx, strings.TrimPrefix(att.Path, "storage/")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DetachFile(ctx, "d1", doc.ID, "alice", att.Path); err != nil {
		t.Fatalf("detach with missing binary: %v", err)
	}
}

func TestDetachRejectsForeignPaths(t *testing.T) {
	svc := newTestService(t, WithBlobStore(blob.NewMemory()))
	ctx := context.Background()
	doc := mustCreate(t, svc, "alice", "Memo")
	for _, p := range []string{
		"storage/departments/d1/uploads/DOC_2024_0099/x.pdf",
		"storage/departments/d1/uploads/" + doc.ID + "/../../users.json",
		"storage/departments/d1/uploads/" + doc.ID + "/",
	} {
		if err := svc.DetachFile(ctx, "d1", doc.ID, "alice", p); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected %s rejected, got %v", p, err)
		}
	}
	missing := "storage/departments/d1/uploads/" + doc.ID + "/1_a.pdf"
	if err := svc.DetachFile(ctx, "d1", doc.ID, "alice", missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.DetachFile(ctx, "d1", doc.ID, "bob", missing); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"my report (1).docx":   "my_report__1_.docx",
		`C:\Users\x\photo.JPG`: "photo.JPG",
		"../../etc/sheet.xlsx": "sheet.xlsx",
		"  spaced name.jpeg  ": "spaced_name.jpeg",
	}
	for in, want := range cases {
		got, err := sanitizeFilename(in)
		if err != nil || got != want {
			t.Fatalf("sanitize(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}
