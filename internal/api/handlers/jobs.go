package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/core"
	"github.com/tablelift/printd/internal/db"
)

type JobHandler struct {
	jobs  *db.JobStore
	queue *core.Queue
}

func NewJobHandler(jobs *db.JobStore, queue *core.Queue) *JobHandler {
	return &JobHandler{jobs: jobs, queue: queue}
}

type ListJobsQuery struct {
	PrinterID int64  `form:"printer_id"`
	OrderID   int64  `form:"order_id"`
	Status    string `form:"status"`
	Limit     int    `form:"limit" binding:"max=100"`
	Offset    int    `form:"offset"`
}

type JobResponse struct {
	ID             int64      `json:"id"`
	PrinterID      int64      `json:"printer_id"`
	OrderID        int64      `json:"order_id"`
	OrderNumber    string     `json:"order_number"`
	CopyType       string     `json:"copy_type"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	FailureCode    string     `json:"failure_code,omitempty"`
	FailureMessage string     `json:"failure_message,omitempty"`
	RequestedAt    time.Time  `json:"requested_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Cached         bool       `json:"cached"`
}

func jobToResponse(job *db.PrintJob) JobResponse {
	return JobResponse{
		ID:             job.ID,
		PrinterID:      job.PrinterID,
		OrderID:        job.OrderID,
		OrderNumber:    job.OrderNumber,
		CopyType:       job.CopyType,
		Source:         job.Source,
		Status:         job.Status,
		FailureCode:    job.FailureCode,
		FailureMessage: job.FailureMessage,
		RequestedAt:    job.RequestedAt,
		DeliveredAt:    job.DeliveredAt,
		CompletedAt:    job.CompletedAt,
		Cached:         len(job.PayloadCache) > 0,
	}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	jobs, err := h.jobs.List(c.Request.Context(), db.JobFilter{
		PrinterID: query.PrinterID,
		OrderID:   query.OrderID,
		Status:    query.Status,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(responses),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

type ReprintRequest struct {
	PrinterID int64 `json:"printer_id"`
}

// ReprintJob queues a manual copy of an existing job, on the original
// printer unless the request names another one. Manual jobs are exempt from
// dedup on purpose: a reprint is an explicit human decision.
func (h *JobHandler) ReprintJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	var req ReprintRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	printerID := job.PrinterID
	if req.PrinterID > 0 {
		printerID = req.PrinterID
	}

	result, err := h.queue.Enqueue(c.Request.Context(), core.EnqueueInput{
		PrinterID: printerID,
		OrderID:   job.OrderID,
		CopyType:  core.CopyType(job.CopyType),
		Source:    core.SourceManual,
		PreRender: true,
	})
	if err != nil {
		c.JSON(enqueueErrorStatus(err), gin.H{"error": enqueueErrorCode(err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "job queued",
		"new_job_id": result.Job.ID,
	})
}

type EnqueueJobRequest struct {
	PrinterID   int64  `json:"printer_id"`
	PrinterMAC  string `json:"printer_mac"`
	PrinterName string `json:"printer_name"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CopyType    string `json:"copy_type" binding:"required"`
	Source      string `json:"source"`
	PreRender   bool   `json:"pre_render"`
}

// CreateJob is the general enqueue API used by staff tooling.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source := core.JobSource(req.Source)
	if req.Source == "" {
		source = core.SourceManual
	}

	result, err := h.queue.Enqueue(c.Request.Context(), core.EnqueueInput{
		PrinterID:   req.PrinterID,
		PrinterMAC:  req.PrinterMAC,
		PrinterName: req.PrinterName,
		OrderID:     req.OrderID,
		OrderNumber: req.OrderNumber,
		CopyType:    core.CopyType(req.CopyType),
		Source:      source,
		PreRender:   req.PreRender,
	})
	if err != nil {
		c.JSON(enqueueErrorStatus(err), gin.H{"error": enqueueErrorCode(err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job":     jobToResponse(result.Job),
		"deduped": result.Deduped,
	})
}

// PreviewJob renders the job's receipt and returns the PNG, so staff can
// inspect what the printer will produce.
func (h *JobHandler) PreviewJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	if len(job.PayloadCache) > 0 {
		c.Data(http.StatusOK, job.RequestedMime, job.PayloadCache)
		return
	}

	rendered, err := h.queue.RenderJob(c.Request.Context(), job)
	if err != nil {
		c.JSON(enqueueErrorStatus(err), gin.H{"error": enqueueErrorCode(err)})
		return
	}
	c.Data(http.StatusOK, job.RequestedMime, rendered)
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs/:id", h.GetJob)
	r.GET("/jobs/:id/preview", h.PreviewJob)
	r.POST("/jobs/:id/reprint", h.ReprintJob)
}
