package server

import (
	"bytes"
	"fmt"
	"net/http"

	"bulkload/internal/model"

	"github.com/gin-gonic/gin"
)

func (s *Server) failedRecordsHandler(c *gin.Context) {
	page, err := s.rc.FailedRecords(c.Request.Context(), c.Param("jobId"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (s *Server) downloadFailedHandler(c *gin.Context) {
	jobID := c.Param("jobId")

	var buf bytes.Buffer
	if err := s.rc.ExportFailedRecords(c.Request.Context(), jobID, &buf); err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=failed-records-%s.csv", jobID))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// downloadSummaryHandler serves the job outcome as JSON, or its failed rows as CSV with ?format=csv
func (s *Server) downloadSummaryHandler(c *gin.Context) {
	jobID := c.Param("jobId")
	format := c.DefaultQuery("format", "json")

	switch format {
	case "json":
		summary, err := s.rc.JobSummary(c.Request.Context(), jobID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="failed-summary-%s.json"`, jobID))
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, summary)
	case "csv":
		var buf bytes.Buffer
		if err := s.rc.ExportJobSummary(c.Request.Context(), jobID, &buf); err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="failed-summary-%s.csv"`, jobID))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
	}
}

func (s *Server) archiveFailedHandler(c *gin.Context) {
	url, err := s.rc.ArchiveFailedRecords(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (s *Server) listStoresHandler(c *gin.Context) {
	stores, total, err := s.rc.ListStores(c.Request.Context(), model.StoreFilter{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stores": stores, "total": total})
}

func (s *Server) overviewHandler(c *gin.Context) {
	overview, err := s.rc.Overview(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}
