package webexport

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

func writeZip(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, content := range files {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("creating entry %s: %v", entryName, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing entry %s: %v", entryName, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return path
}

func TestDecodeExportWithFlatTextMessages(t *testing.T) {
	dir := t.TempDir()
	archive := `[{"uuid":"c1","name":"My Chat","chat_messages":[
		{"uuid":"m1","sender":"human","text":"hello there","created_at":"2024-01-01T00:00:00Z"},
		{"uuid":"m2","sender":"assistant","text":"hi back","created_at":"2024-01-01T00:01:00Z"}
	]}]`
	path := writeZip(t, dir, "export.zip", map[string]string{"conversations.json": archive})

	d := New()
	convs, metrics, err := d.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	conv := convs[0]
	if conv.ID != "c1" || conv.Project != "My Chat" || conv.Source != model.SourceWeb {
		t.Fatalf("unexpected conversation header: %+v", conv)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", conv.Messages)
	}
	if metrics.Conversations != 1 || metrics.Messages != 2 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestDecodeExportWithContentBlocks(t *testing.T) {
	dir := t.TempDir()
	archive := `[{"uuid":"c2","name":"Blocks","chat_messages":[
		{"uuid":"m1","sender":"human","content":[{"text":"part one"},{"text":"part two"}]}
	]}]`
	path := writeZip(t, dir, "export.zip", map[string]string{"conversations.json": archive})

	d := New()
	convs, _, err := d.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := "part one\npart two"
	if convs[0].Messages[0].Content != want {
		t.Fatalf("expected %q, got %q", want, convs[0].Messages[0].Content)
	}
}

func TestDecodeMissingConversationsJSONIsSchemaFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "export.zip", map[string]string{"other.json": "{}"})

	d := New()
	convs, metrics, err := d.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected no conversations, got %d", len(convs))
	}
	if metrics.SchemaFailures != 1 {
		t.Fatalf("expected 1 schema failure, got %d", metrics.SchemaFailures)
	}
}

func TestDecodeSkipsUnknownSenderRoles(t *testing.T) {
	dir := t.TempDir()
	archive := `[{"uuid":"c3","chat_messages":[
		{"uuid":"m1","sender":"system","text":"ignored"},
		{"uuid":"m2","sender":"human","text":"kept"}
	]}]`
	path := writeZip(t, dir, "export.zip", map[string]string{"conversations.json": archive})

	d := New()
	convs, _, err := d.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs[0].Messages) != 1 || convs[0].Messages[0].Content != "kept" {
		t.Fatalf("unexpected messages: %+v", convs[0].Messages)
	}
}

func TestDecodeConversationWithNoSurvivingMessagesIsSchemaFailure(t *testing.T) {
	dir := t.TempDir()
	archive := `[{"uuid":"c4","chat_messages":[{"uuid":"m1","sender":"system","text":"ignored"}]}]`
	path := writeZip(t, dir, "export.zip", map[string]string{"conversations.json": archive})

	d := New()
	convs, metrics, err := d.Decode(path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("expected 0 conversations, got %d", len(convs))
	}
	if metrics.SchemaFailures != 1 {
		t.Fatalf("expected 1 schema failure, got %d", metrics.SchemaFailures)
	}
}
