package job

import (
	"encoding/json"
	"time"
)

// Job is an asynchronous ingestion request that failed and can be replayed.
type Job struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
