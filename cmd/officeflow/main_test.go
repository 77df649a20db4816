package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("OFFICEFLOW_DATA_ROOT", root)
	t.Setenv("OFFICEFLOW_STORAGE_DRIVER", "file")
	t.Setenv("OFFICEFLOW_BLOB_DRIVER", "fs")
	t.Setenv("LOG_LEVEL", "error")
	return root
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"officeflow"}, args...), &out)
	return out.String(), err
}

func TestDocumentCommands(t *testing.T) {
	setupEnv(t)
	if _, err := runCLI(t, "dept", "create", "--id", "revenue", "--name", "Revenue", "--admin-user", "head"); err != nil {
		t.Fatalf("dept create: %v", err)
	}
	out, err := runCLI(t, "doc", "create", "--dept", "revenue", "--user", "head", "--title", "Land survey", "--due", "2024-05-01")
	if err != nil {
		t.Fatalf("doc create: %v", err)
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output %q: %v", out, err)
	}
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "DOC_") {
		t.Fatalf("unexpected id %q", id)
	}

	out, err = runCLI(t, "doc", "show", "--dept", "revenue", "--id", id)
	if err != nil {
		t.Fatalf("doc show: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if shown["title"] != "Land survey" || shown["due_date"] != "2024-05-01" || shown["current_owner"] != "head" {
		t.Fatalf("unexpected document %v", shown)
	}

	out, err = runCLI(t, "register", "export", "--dept", "revenue", "--user", "head")
	if err != nil {
		t.Fatalf("register export: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Fatalf("expected %s in export, got %q", id, out)
	}
}

func TestDocumentCommandErrors(t *testing.T) {
	setupEnv(t)
	if _, err := runCLI(t, "doc", "show", "--dept", "revenue", "--id", "DOC_2024_0001"); err == nil {
		t.Fatalf("expected missing document error")
	}
	if _, err := runCLI(t, "doc", "create", "--dept", "revenue", "--user", "head"); err == nil {
		t.Fatalf("expected missing --title to fail")
	}
}

func TestCheckCommand(t *testing.T) {
	root := setupEnv(t)
	if _, err := runCLI(t, "check"); err == nil {
		t.Fatalf("expected check to fail without global config")
	}
	if err := os.MkdirAll(filepath.Join(root, "system"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "system", "global_config.json"), []byte(`{"office":"District"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, `"root_writable": true`) {
		t.Fatalf("unexpected status output %q", out)
	}
}

func TestInvalidConfigurationRejected(t *testing.T) {
	setupEnv(t)
	t.Setenv("OFFICEFLOW_STORAGE_DRIVER", "floppy")
	if _, err := runCLI(t, "dept", "list"); err == nil || !strings.Contains(err.Error(), "floppy") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
