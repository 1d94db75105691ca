package model

import (
	"testing"
	"time"
)

func TestDocIDDeterministic(t *testing.T) {
	a := DocID("conv-1", 0, "Use A* pathfinding")
	b := DocID("conv-1", 0, "Use A* pathfinding")
	if a != b {
		t.Fatalf("expected stable doc_id, got %q vs %q", a, b)
	}
}

func TestDocIDVariesByOrdinalAndConversation(t *testing.T) {
	base := DocID("conv-1", 0, "hello")
	diffOrdinal := DocID("conv-1", 1, "hello")
	diffConv := DocID("conv-2", 0, "hello")
	if base == diffOrdinal {
		t.Fatal("expected ordinal to change doc_id")
	}
	if base == diffConv {
		t.Fatal("expected conversation_id to change doc_id")
	}
}

func TestDocIDUsesOnlyFirst200Bytes(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	long2 := make([]byte, 500)
	for i := range long2 {
		long2[i] = 'a'
	}
	// differ only after byte 200
	long2[499] = 'b'

	a := DocID("conv", 0, string(long))
	b := DocID("conv", 0, string(long2))
	if a != b {
		t.Fatal("expected doc_id to ignore bytes beyond the first 200")
	}
}

func TestDocumentsSkipsEmptyContent(t *testing.T) {
	c := Conversation{
		ID:     "conv-1",
		Source: SourceAgent,
		Messages: []Message{
			{Role: RoleUser, Content: "hello", Timestamp: time.Now()},
			{Role: RoleAssistant, Content: "   ", Timestamp: time.Now()},
			{Role: RoleAssistant, Content: "", Timestamp: time.Now()},
		},
	}
	docs := Documents(c)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Collection != CollectionAlpha {
		t.Fatalf("expected alpha collection for agent source, got %s", docs[0].Collection)
	}
}

func TestDocumentsMetadataCompleteness(t *testing.T) {
	c := Conversation{
		ID:     "conv-1",
		Source: SourceWeb,
		Messages: []Message{
			{Role: RoleUser, Content: "hi", Timestamp: time.Now()},
		},
	}
	docs := Documents(c)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	md := docs[0].Metadata
	if md.ConversationID == "" || md.Role == "" || md.Source == "" {
		t.Fatalf("expected required metadata fields set, got %+v", md)
	}
	// Optional fields must be empty strings, never absent/nil.
	if md.Project != "" || md.Cwd != "" || md.GitBranch != "" {
		t.Fatalf("expected optional fields defaulted to empty string, got %+v", md)
	}
	if docs[0].Collection != CollectionBeta {
		t.Fatalf("expected beta collection for web source, got %s", docs[0].Collection)
	}
}

func TestCollectionForSource(t *testing.T) {
	if CollectionForSource(SourceAgent) != CollectionAlpha {
		t.Fatal("agent must map to alpha")
	}
	if CollectionForSource(SourceWeb) != CollectionBeta {
		t.Fatal("web must map to beta")
	}
	if CollectionForSource(SourceMemory) != CollectionBeta {
		t.Fatal("memory must map to beta")
	}
}
