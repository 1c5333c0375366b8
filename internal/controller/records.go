package controller

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"bulkload/internal/aws"
	"bulkload/internal/database"
	"bulkload/internal/model"
	"bulkload/internal/processor"

	"github.com/rs/zerolog/log"
)

var (
	// ErrArchiveDisabled is returned when no object storage is configured
	ErrArchiveDisabled = errors.New("failed record archive is not configured")

	// ErrNoFailedRecords is returned by the CSV exports of a job without failures
	ErrNoFailedRecords = errors.New("no failed records found to export")
)

// Retrier runs a retry pass synchronously
type Retrier interface {
	RetryFailed(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error)
}

// FailedRecordsPage is one page of the failure aggregate of a job
type FailedRecordsPage struct {
	JobID     string                    `json:"jobId"`
	Columns   []string                  `json:"columns"`
	Records   []model.FailedRecordEntry `json:"records"`
	Total     int                       `json:"total"`
	Page      int                       `json:"page"`
	Limit     int                       `json:"limit"`
	RetryLogs []model.RetryLog          `json:"retryLogs"`
}

// JobSummary is a job's outcome together with every row that failed
type JobSummary struct {
	JobID         string                    `json:"jobId"`
	FileName      string                    `json:"fileName"`
	Status        model.JobStatus           `json:"status"`
	TotalRecords  int                       `json:"totalRecords"`
	SuccessCount  int                       `json:"successCount"`
	FailureCount  int                       `json:"failureCount"`
	FailedRecords []model.FailedRecordEntry `json:"failedRecords"`
}

// RecordsController serves stored records and failure aggregates
type RecordsController interface {
	// FailedRecords returns a page of failed rows; a job without failures yields an empty page
	FailedRecords(ctx context.Context, jobID string, page, limit int) (*FailedRecordsPage, error)

	// ExportFailedRecords writes the failed rows of a job as CSV
	ExportFailedRecords(ctx context.Context, jobID string, w io.Writer) error

	// JobSummary returns the job outcome with all of its failed rows
	JobSummary(ctx context.Context, jobID string) (*JobSummary, error)

	// ExportJobSummary writes the failed rows as CSV, one column per source
	// column followed by the failure reason
	ExportJobSummary(ctx context.Context, jobID string, w io.Writer) error

	// ArchiveFailedRecords uploads the CSV export to object storage and returns its URL
	ArchiveFailedRecords(ctx context.Context, jobID string) (string, error)

	// RetryNow runs a retry pass in-process
	RetryNow(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error)

	ListStores(ctx context.Context, filter model.StoreFilter) ([]model.StoreRecord, int64, error)

	Overview(ctx context.Context) (*model.Overview, error)
}

type recordsController struct {
	db      database.Database
	retrier Retrier
	files   aws.FileService
	now     func() time.Time
}

// NewRecordsController creates a records controller. files may be nil when archiving is disabled.
func NewRecordsController(db database.Database, retrier Retrier, files aws.FileService) RecordsController {
	return &recordsController{
		db:      db,
		retrier: retrier,
		files:   files,
		now:     time.Now,
	}
}

func (c *recordsController) failedJob(ctx context.Context, jobID string) (*model.FailedJob, error) {
	_, failed, err := c.jobWithFailures(ctx, jobID)
	return failed, err
}

// jobWithFailures loads a job and its failure aggregate; a job that never
// failed a row gets an empty aggregate
func (c *recordsController) jobWithFailures(ctx context.Context, jobID string) (*model.Job, *model.FailedJob, error) {
	job, err := c.db.FindJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	failed, err := c.db.GetFailedRecords(ctx, jobID)
	if errors.Is(err, database.ErrFailedJobNotFound) {
		return job, &model.FailedJob{JobID: jobID}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return job, failed, nil
}

func (c *recordsController) FailedRecords(ctx context.Context, jobID string, page, limit int) (*FailedRecordsPage, error) {
	failed, err := c.failedJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	page, limit = Paginate(page, limit, 50, 500)
	total := len(failed.FailedRecords)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	records := failed.FailedRecords[start:end]
	if records == nil {
		records = []model.FailedRecordEntry{}
	}

	return &FailedRecordsPage{
		JobID:     jobID,
		Columns:   failed.Columns,
		Records:   records,
		Total:     total,
		Page:      page,
		Limit:     limit,
		RetryLogs: failed.RetryLogs,
	}, nil
}

func (c *recordsController) ExportFailedRecords(ctx context.Context, jobID string, w io.Writer) error {
	failed, err := c.failedJob(ctx, jobID)
	if err != nil {
		return err
	}
	if len(failed.FailedRecords) == 0 {
		return ErrNoFailedRecords
	}
	return processor.WriteFailedRecordsCSV(w, failed.Columns, failed.FailedRecords)
}

func (c *recordsController) JobSummary(ctx context.Context, jobID string) (*JobSummary, error) {
	job, failed, err := c.jobWithFailures(ctx, jobID)
	if err != nil {
		return nil, err
	}

	records := failed.FailedRecords
	if records == nil {
		records = []model.FailedRecordEntry{}
	}

	return &JobSummary{
		JobID:         job.JobID,
		FileName:      job.FileName,
		Status:        job.Status,
		TotalRecords:  job.TotalRecords,
		SuccessCount:  job.SuccessCount,
		FailureCount:  job.FailureCount,
		FailedRecords: records,
	}, nil
}

func (c *recordsController) ExportJobSummary(ctx context.Context, jobID string, w io.Writer) error {
	failed, err := c.failedJob(ctx, jobID)
	if err != nil {
		return err
	}
	if len(failed.FailedRecords) == 0 {
		return ErrNoFailedRecords
	}

	columns := summaryColumns(failed)
	cw := csv.NewWriter(w)
	if err := cw.Write(append(columns, "reason")); err != nil {
		return err
	}
	for _, entry := range failed.FailedRecords {
		line := make([]string, 0, len(columns)+1)
		for _, col := range columns {
			line = append(line, entry.Record[col])
		}
		if err := cw.Write(append(line, entry.Reason)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// summaryColumns returns the stored header, extended with any record key it
// does not list, in first-seen order
func summaryColumns(failed *model.FailedJob) []string {
	columns := append([]string(nil), failed.Columns...)
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		seen[col] = true
	}
	for _, entry := range failed.FailedRecords {
		var extra []string
		for key := range entry.Record {
			if !seen[key] {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		for _, key := range extra {
			seen[key] = true
			columns = append(columns, key)
		}
	}
	return columns
}

func (c *recordsController) ArchiveFailedRecords(ctx context.Context, jobID string) (string, error) {
	if c.files == nil {
		return "", ErrArchiveDisabled
	}

	var buf bytes.Buffer
	if err := c.ExportFailedRecords(ctx, jobID, &buf); err != nil {
		return "", err
	}

	key := fmt.Sprintf("failed-records/%s-%d.csv", jobID, c.now().Unix())
	url, err := c.files.UploadFile(ctx, key, &buf, "text/csv")
	if err != nil {
		return "", fmt.Errorf("failed to archive failed records: %w", err)
	}

	log.Info().Str("jobId", jobID).Str("url", url).Msg("Archived failed records")
	return url, nil
}

func (c *recordsController) RetryNow(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error) {
	if _, err := c.db.FindJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.retrier.RetryFailed(ctx, jobID, retriedBy)
}

func (c *recordsController) ListStores(ctx context.Context, filter model.StoreFilter) ([]model.StoreRecord, int64, error) {
	filter.Page, filter.Limit = Paginate(filter.Page, filter.Limit, 20, 100)
	return c.db.ListStores(ctx, filter)
}

func (c *recordsController) Overview(ctx context.Context) (*model.Overview, error) {
	jobs, err := c.db.CountJobs(ctx)
	if err != nil {
		return nil, err
	}

	stores, err := c.db.CountStores(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := c.db.FailedJobStats(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Overview{
		TotalJobs:          jobs,
		TotalRecords:       stores,
		FailedJobs:         stats.FailedJobs,
		TotalFailedRecords: stats.TotalFailedRecords,
	}, nil
}
