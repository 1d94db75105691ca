package watch

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/chatindex/internal/model"
)

// subjectPrefix namespaces ingest-trigger messages on the bus; the
// subscriber subscribes to subjectPrefix+".*" to receive one message type
// per source without needing a schema registry.
const subjectPrefix = "ingest.requested"

// SubjectFor returns the publish subject for source.
func SubjectFor(source model.Source) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, source)
}

// SubscribeSubject is the wildcard subject the daemon subscribes to in
// order to receive ingest-requested messages for every source.
const SubscribeSubject = subjectPrefix + ".*"

// IngestRequested is the payload published when a watched directory
// changes. It carries only the source, not the changed path: the
// orchestrator re-derives which files changed from the manifest/journal
// on its own next cycle, so the message only needs to say "something in
// this source changed, go look."
type IngestRequested struct {
	Source model.Source `json:"source"`
}

func (m IngestRequested) marshal() ([]byte, error) {
	return json.Marshal(m)
}

func unmarshalIngestRequested(data []byte) (IngestRequested, error) {
	var m IngestRequested
	if err := json.Unmarshal(data, &m); err != nil {
		return IngestRequested{}, fmt.Errorf("decoding ingest.requested payload: %w", err)
	}
	return m, nil
}
