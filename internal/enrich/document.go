package enrich

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// ToDocument folds a refined Decision back into a model.Document so it
// rides the same lexical/vector commit path as any message-derived
// document. It reuses Metadata.Role (set to model.RoleDecision) as the
// discriminator rather than adding a schema column, so a lexical/vector
// index built with enrichment disabled never contains a row shaped any
// differently from spec.md's core description.
//
// ordinal distinguishes multiple decisions detected within the same
// conversation, the same role DocID's identity hash plays for messages.
func ToDocument(candidate Candidate, decision Decision, conv model.Conversation, ordinal int) model.Document {
	text := renderDecision(decision)
	collection := model.CollectionForSource(conv.Source)

	return model.Document{
		DocID: model.DocID(candidate.ConversationID+":decision", ordinal, text),
		Text:  text,
		Metadata: model.Metadata{
			ConversationID: candidate.ConversationID,
			Role:           string(model.RoleDecision),
			Timestamp:      decisionTimestamp(conv),
			Project:        conv.Project,
			Source:         string(conv.Source),
			Cwd:            conv.Cwd,
			GitBranch:      conv.GitBranch,
		},
		Collection: collection,
	}
}

func decisionTimestamp(conv model.Conversation) time.Time {
	if !conv.Timestamp.IsZero() {
		return conv.Timestamp
	}
	return time.Now().UTC()
}

// renderDecision flattens a Decision into the single text blob that gets
// embedded and indexed, since model.Document carries no structured
// sub-fields for Alternatives/Reasoning beyond its flat Metadata.
func renderDecision(d Decision) string {
	var b strings.Builder
	b.WriteString(d.Summary)
	if d.Reasoning != "" {
		b.WriteString("\n\nReasoning: ")
		b.WriteString(d.Reasoning)
	}
	if len(d.Alternatives) > 0 {
		b.WriteString("\n\nAlternatives considered: ")
		b.WriteString(strings.Join(d.Alternatives, "; "))
	}
	return b.String()
}
