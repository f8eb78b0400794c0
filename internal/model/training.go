package model

import "time"

// TrainingRecord is one prompt/completion example. Field order is the JSONL key order.
type TrainingRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// TrainingRecordDocument is the search-index form of a TrainingRecord.
type TrainingRecordDocument struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Username   string    `json:"username"`
	Domain     string    `json:"domain"`
	Position   int       `json:"position"`
	Prompt     string    `json:"prompt"`
	Completion string    `json:"completion"`
	IndexedAt  time.Time `json:"indexed_at"`
}
