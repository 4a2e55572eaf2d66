package models

// These structs describe per-batch and per-run results. They are reported
// through logs, the workflow trigger and the run report; none are stored.

// WriteSummary is what the sink reports for one batch submission.
type WriteSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Written is the number of records committed by the submission.
func (s WriteSummary) Written() int { return s.Inserted + s.Updated }

// BatchResult aggregates one flushed batch for the progress log.
type BatchResult struct {
	Attempted  int    `json:"attempted"`
	Written    int    `json:"written"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Failed     int    `json:"failed"`
	Errors     int    `json:"errors"`
	FirstID    string `json:"firstId"`
	LastID     string `json:"lastId"`
	FirstIndex int64  `json:"firstIndex"`
	LastIndex  int64  `json:"lastIndex"`
}

// RunSummary holds the running totals of one ingestion pass.
type RunSummary struct {
	Processed     int `json:"processed"`
	Errors        int `json:"errors"`
	Skipped       int `json:"skipped"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failedBatches"`
}

// GCSEvent is the payload of a Cloud Storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket     string `json:"bucket"`
	Name       string `json:"name"`
	Generation string `json:"generation"`
}

// RunReport is written next to a processed source when reporting is enabled.
type RunReport struct {
	Source     string     `json:"source"`
	Generation string     `json:"generation,omitempty"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
}
