package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

func TestToDocument_FoldsDecisionIntoDocument(t *testing.T) {
	conv := model.Conversation{
		ID:        "c1",
		Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Source:    model.SourceAgent,
		Project:   "demo",
		Cwd:       "/work",
		GitBranch: "main",
	}
	candidate := Candidate{ConversationID: "c1", MessageUUID: "m1"}
	decision := Decision{
		Summary:      "use sqlite",
		Reasoning:    "simplicity",
		Alternatives: []string{"postgres"},
		Confidence:   0.9,
	}

	doc := ToDocument(candidate, decision, conv, 0)

	require.Equal(t, model.CollectionAlpha, doc.Collection)
	require.Equal(t, string(model.RoleDecision), doc.Metadata.Role)
	require.Equal(t, "demo", doc.Metadata.Project)
	require.Equal(t, "/work", doc.Metadata.Cwd)
	require.Equal(t, "main", doc.Metadata.GitBranch)
	require.Contains(t, doc.Text, "use sqlite")
	require.Contains(t, doc.Text, "simplicity")
	require.Contains(t, doc.Text, "postgres")
	require.NotEmpty(t, doc.DocID)
}

func TestToDocument_DistinctOrdinalsYieldDistinctDocIDs(t *testing.T) {
	conv := model.Conversation{ID: "c1", Source: model.SourceAgent}
	candidate := Candidate{ConversationID: "c1"}
	decision := Decision{Summary: "same text"}

	d0 := ToDocument(candidate, decision, conv, 0)
	d1 := ToDocument(candidate, decision, conv, 1)

	require.NotEqual(t, d0.DocID, d1.DocID)
}

func TestToDocument_UsesNowWhenConversationTimestampZero(t *testing.T) {
	conv := model.Conversation{ID: "c1", Source: model.SourceWeb}
	doc := ToDocument(Candidate{ConversationID: "c1"}, Decision{Summary: "s"}, conv, 0)
	require.False(t, doc.Metadata.Timestamp.IsZero())
	require.Equal(t, model.CollectionBeta, doc.Collection)
}
