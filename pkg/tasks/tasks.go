// Package tasks defines the payloads sent through the fine-tune task queue.
package tasks

// FineTuneTask describes one training run for a (username, domain) partition.
type FineTuneTask struct {
	JobID       string `json:"job_id"`
	Username    string `json:"username"`
	Domain      string `json:"domain"`
	DatasetPath string `json:"dataset_path"`
	LogPath     string `json:"log_path"`
}
