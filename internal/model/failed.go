package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RetryLogStatus is the outcome recorded for one retry pass
type RetryLogStatus string

const (
	RetryQueued    RetryLogStatus = "queued"
	RetryProcessed RetryLogStatus = "processed"
	RetryFailed    RetryLogStatus = "failed"
)

// FailedRecordEntry is one row that could not be written.
// Record holds the row as it appeared in the source file, Normalized the
// canonical record that was submitted (nil when normalization itself failed).
type FailedRecordEntry struct {
	Record     map[string]string `bson:"record" json:"record"`
	Normalized *StoreRecord      `bson:"normalized,omitempty" json:"normalized,omitempty"`
	RowIndex   int               `bson:"row_index" json:"rowIndex"`
	Reason     string            `bson:"reason" json:"reason"`
	RetryCount int               `bson:"retry_count" json:"retryCount"`
	FailedAt   time.Time         `bson:"failed_at" json:"failedAt"`
}

// RetryLog records one retry pass against a failed job
type RetryLog struct {
	RequeuedCount int            `bson:"requeued_count" json:"requeuedCount"`
	Status        RetryLogStatus `bson:"status" json:"status"`
	Timestamp     time.Time      `bson:"timestamp" json:"timestamp"`
}

// FailedJob aggregates every record-level failure of one job
type FailedJob struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	JobID         string              `bson:"job_id" json:"jobId"`
	Columns       []string            `bson:"columns" json:"columns"`
	FailedRecords []FailedRecordEntry `bson:"failed_records" json:"failedRecords"`
	RetryLogs     []RetryLog          `bson:"retry_logs" json:"retryLogs"`
	// Version increases on every change to FailedRecords
	Version       int64               `bson:"version" json:"-"`
	CreatedAt     time.Time           `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updatedAt"`
}

// RetryHistory is the audit entry written for every retry pass
type RetryHistory struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	JobID        string             `bson:"job_id" json:"jobId"`
	RetriedAt    time.Time          `bson:"retried_at" json:"retriedAt"`
	TotalRetried int                `bson:"total_retried" json:"totalRetried"`
	SuccessCount int                `bson:"success_count" json:"successCount"`
	FailedCount  int                `bson:"failed_count" json:"failedCount"`
	RetriedBy    string             `bson:"retried_by" json:"retriedBy"`
	Notes        string             `bson:"notes" json:"notes"`
}

// RetryResult is the outcome of one retry pass
type RetryResult struct {
	Retried      int `json:"retried"`
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
	Remaining    int `json:"remaining"`
}

// FailedJobStats counts failure aggregates across all jobs
type FailedJobStats struct {
	FailedJobs         int64 `bson:"failed_jobs"`
	TotalFailedRecords int64 `bson:"total_failed_records"`
}
