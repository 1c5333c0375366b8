package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"bulkload/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// uploadHandler stores a CSV upload and queues it for ingestion
func (s *Server) uploadHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if !strings.EqualFold(filepath.Ext(file.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only CSV files are allowed"})
		return
	}

	maxBytes := int64(s.config.Ingest.MaxFileSizeMB) << 20
	if maxBytes > 0 && file.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the maximum upload size"})
		return
	}

	fileName := filepath.Base(file.Filename)
	dest := filepath.Join(s.config.Ingest.UploadDir, uuid.NewString()+"-"+fileName)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		log.Error().Err(err).Str("fileName", fileName).Msg("Failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save upload"})
		return
	}

	channelID := c.PostForm("channelId")
	if channelID == "" {
		channelID = c.Query("channelId")
	}

	job, err := s.jc.CreateUploadJob(c.Request.Context(), dest, fileName, channelID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":    job.JobID,
		"status":   job.Status,
		"fileName": job.FileName,
		"message":  "File uploaded and queued for processing",
	})
}

func (s *Server) listJobsHandler(c *gin.Context) {
	filter := model.JobFilter{
		Status: model.JobStatus(c.Query("status")),
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}

	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job status"})
		return
	}

	jobs, total, err := s.jc.ListJobs(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total})
}

func (s *Server) listJobTypesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.jc.GetAvailableJobTypes())
}

func (s *Server) getJobHandler(c *gin.Context) {
	job, err := s.jc.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (s *Server) getProgressHandler(c *gin.Context) {
	progress, err := s.jc.GetProgress(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", progress)
}

// retryHandler retries failed records in-process, or through the queue with ?async=true
func (s *Server) retryHandler(c *gin.Context) {
	jobID := c.Param("jobId")
	retriedBy := c.Query("retriedBy")

	if c.Query("async") == "true" {
		if err := s.jc.EnqueueRetry(c.Request.Context(), jobID, c.Query("channelId"), retriedBy); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": model.RetryQueued})
		return
	}

	result, err := s.rc.RetryNow(c.Request.Context(), jobID, retriedBy)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
