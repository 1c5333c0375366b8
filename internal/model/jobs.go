package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus represents the current state of an upload job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed out of the status
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known job statuses
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job represents one bulk upload and its processing outcome
type Job struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID        string             `bson:"job_id" json:"jobId"`
	FileName     string             `bson:"file_name" json:"fileName"`
	Status       JobStatus          `bson:"status" json:"status"`
	TotalRecords int                `bson:"total_records" json:"totalRecords"`
	SuccessCount int                `bson:"success_count" json:"successCount"`
	FailureCount int                `bson:"failure_count" json:"failureCount"`
	Progress     int                `bson:"progress" json:"progress"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
	StartedAt    *time.Time         `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt  *time.Time         `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	FailedAt     *time.Time         `bson:"failed_at,omitempty" json:"failedAt,omitempty"`
}

// ProcessedRecords is the number of rows that reached a final outcome
func (j *Job) ProcessedRecords() int {
	return j.SuccessCount + j.FailureCount
}

// JobUpdate carries the fields of a status transition. Nil fields are left untouched.
type JobUpdate struct {
	Status       *JobStatus
	FileName     *string
	TotalRecords *int
	SuccessCount *int
	FailureCount *int
	Progress     *int
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	FailedAt     *time.Time
}

// JobFilter narrows job listings
type JobFilter struct {
	Status JobStatus
	Search string
	Page   int
	Limit  int
}

// Task is the payload delivered by the job queue to a worker
type Task struct {
	JobID     string `json:"jobId"`
	FilePath  string `json:"filePath,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	RetriedBy string `json:"retriedBy,omitempty"`
}

// IngestResult is the outcome of one full ingestion pass
type IngestResult struct {
	TotalRecords  int `json:"totalRecords"`
	TotalInserted int `json:"totalInserted"`
	FailedCount   int `json:"failedCount"`
	SuccessRate   int `json:"successRate"`
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
