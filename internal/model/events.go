package model

// Notification event names
const (
	EventUploadProgress = "upload-progress"
	EventUploadComplete = "upload-complete"
	EventUploadError    = "upload-error"
	EventRetryComplete  = "retry-complete"
)

// BatchInfo locates a progress event within the batch sequence of a job
type BatchInfo struct {
	TotalBatches     int `json:"totalBatches"`
	CompletedBatches int `json:"completedBatches"`
	CurrentBatch     int `json:"currentBatch"`
	BatchSize        int `json:"batchSize"`
}

// ProgressEvent is emitted after every batch; it is never persisted
type ProgressEvent struct {
	JobID             string    `json:"jobId"`
	Status            JobStatus `json:"status"`
	FileName          string    `json:"fileName"`
	TotalRecords      int       `json:"totalRecords"`
	ProcessedRecords  int       `json:"processedRecords"`
	SuccessfulRecords int       `json:"successfulRecords"`
	FailedRecords     int       `json:"failedRecords"`
	Progress          int       `json:"progress"`
	ProcessingSpeed   int       `json:"processingSpeed"`
	BatchInfo         BatchInfo `json:"batchInfo"`
	Message           string    `json:"message,omitempty"`
}

// CompletionEvent is the terminal event of a successful run
type CompletionEvent struct {
	JobID             string    `json:"jobId"`
	Status            JobStatus `json:"status"`
	FileName          string    `json:"fileName"`
	TotalRecords      int       `json:"totalRecords"`
	ProcessedRecords  int       `json:"processedRecords"`
	SuccessfulRecords int       `json:"successfulRecords"`
	FailedRecords     int       `json:"failedRecords"`
	Progress          int       `json:"progress"`
	SuccessRate       int       `json:"successRate"`
	Message           string    `json:"message"`
}

// ErrorEvent is the terminal event of a run aborted by a structural error
type ErrorEvent struct {
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	FileName string    `json:"fileName"`
	Message  string    `json:"message"`
	Error    string    `json:"error"`
}

func (e ProgressEvent) EventJobID() string   { return e.JobID }
func (e CompletionEvent) EventJobID() string { return e.JobID }
func (e ErrorEvent) EventJobID() string      { return e.JobID }
