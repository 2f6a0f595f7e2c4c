package handlers

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/config"
	"github.com/tablelift/printd/internal/core"
	"github.com/tablelift/printd/internal/db"
	"github.com/tablelift/printd/internal/ws"
)

const maxPollBodySize = 64 * 1024

// CloudPRNTHandler implements the polling protocol the printer firmware
// speaks against a single endpoint: POST announces and asks for work, GET
// fetches the payload, DELETE reports the outcome. The handler is the only
// component that moves jobs through their state machine.
type CloudPRNTHandler struct {
	cfg      config.CloudPRNTConfig
	registry *core.Registry
	queue    *core.Queue
	jobs     *db.JobStore
	printers *db.PrinterStore
	hub      *ws.Hub
	now      func() time.Time
}

func NewCloudPRNTHandler(cfg config.CloudPRNTConfig, registry *core.Registry, queue *core.Queue, jobs *db.JobStore, printers *db.PrinterStore, hub *ws.Hub) *CloudPRNTHandler {
	return &CloudPRNTHandler{
		cfg:      cfg,
		registry: registry,
		queue:    queue,
		jobs:     jobs,
		printers: printers,
		hub:      hub,
		now:      time.Now,
	}
}

type pollResponse struct {
	JobReady     bool     `json:"jobReady"`
	MediaTypes   []string `json:"mediaTypes,omitempty"`
	JobToken     string   `json:"jobToken,omitempty"`
	DeleteMethod string   `json:"deleteMethod,omitempty"`
	PollInterval int      `json:"pollInterval,omitempty"`
}

func (h *CloudPRNTHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/cloudprnt", h.Poll)
	r.GET("/cloudprnt", h.Fetch)
	r.DELETE("/cloudprnt", h.Acknowledge)
}

// basicAuthOK reports whether the request carries the configured shared
// credential. Always false when no credential is configured.
func (h *CloudPRNTHandler) basicAuthOK(c *gin.Context) bool {
	if h.cfg.Username == "" {
		return false
	}
	user, pass, ok := c.Request.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Password)) == 1
	return userOK && passOK
}

// knownMAC reports whether the MAC resolves to an already-registered
// printer. This is the bootstrap fallback for firmware that cannot send
// Basic Auth.
func (h *CloudPRNTHandler) knownMAC(c *gin.Context, mac string) bool {
	if mac == "" {
		return false
	}
	_, err := h.registry.FindByMAC(c.Request.Context(), mac)
	return err == nil
}

func (h *CloudPRNTHandler) fields(c *gin.Context, readBody bool) *requestFields {
	f := &requestFields{
		query:  c.Request.URL.Query(),
		header: c.Request.Header,
	}
	if readBody {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPollBodySize))
		if err == nil && len(raw) > 0 {
			var body map[string]interface{}
			if json.Unmarshal(raw, &body) == nil {
				f.body = body
			}
			c.Set("rawBody", string(raw))
		}
	}
	return f
}

// Poll handles the announce verb: identify the device, upsert the registry
// record, and tell the printer whether a job is waiting.
func (h *CloudPRNTHandler) Poll(c *gin.Context) {
	f := h.fields(c, true)
	identity := extractIdentity(f)

	if identity.MAC == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "printer identity required"})
		return
	}

	if !h.basicAuthOK(c) && h.cfg.Username != "" && !h.knownMAC(c, identity.MAC) {
		c.Header("WWW-Authenticate", `Basic realm="cloudprnt"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	statusJSON, _ := c.Get("rawBody")
	statusStr, _ := statusJSON.(string)

	printer, err := h.registry.Upsert(c.Request.Context(), identity.MAC, identity.UID, identity.Name, statusStr)
	if err != nil {
		if errors.Is(err, core.ErrInvalidMAC) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer identity"})
			return
		}
		log.Printf("[cloudprnt] poll upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	job, err := h.jobs.NextForPrinter(c.Request.Context(), printer.ID)
	if err != nil {
		log.Printf("[cloudprnt] poll job lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if job == nil {
		c.JSON(http.StatusOK, pollResponse{
			JobReady:     false,
			PollInterval: int(h.cfg.PollInterval.Seconds()),
		})
		return
	}

	c.JSON(http.StatusOK, pollResponse{
		JobReady:     true,
		MediaTypes:   []string{job.RequestedMime},
		JobToken:     job.JobToken,
		DeleteMethod: "DELETE",
	})
}

// resolveJob finds the job a GET or DELETE refers to: by token when one is
// present, otherwise by MAC through the owning printer's oldest open job.
func (h *CloudPRNTHandler) resolveJob(c *gin.Context, f *requestFields) (*db.PrintJob, bool) {
	if token := extractToken(f); token != "" {
		job, err := h.jobs.GetByToken(c.Request.Context(), token)
		if err == nil {
			return job, true
		}
		if err != sql.ErrNoRows {
			log.Printf("[cloudprnt] token lookup failed: %v", err)
		}
		return nil, true
	}

	identity := extractIdentity(f)
	if identity.MAC == "" {
		return nil, false
	}
	printer, err := h.registry.FindByMAC(c.Request.Context(), identity.MAC)
	if err != nil {
		return nil, true
	}
	job, err := h.jobs.OldestOpenForPrinter(c.Request.Context(), printer.ID)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[cloudprnt] open job lookup failed: %v", err)
		}
		return nil, true
	}
	return job, true
}

func jobActive(job *db.PrintJob) bool {
	return job != nil && (job.Status == string(core.JobStatusQueued) || job.Status == string(core.JobStatusDelivered))
}

// Fetch serves the rendered payload. The QUEUED -> DELIVERED transition is a
// single conditional update, so exactly one fetch claims the job; every
// other concurrent or retried fetch is served the identical cached bytes.
func (h *CloudPRNTHandler) Fetch(c *gin.Context) {
	f := h.fields(c, false)
	job, identified := h.resolveJob(c, f)

	if !identified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job token or printer identity required"})
		return
	}

	// A valid token for an active job authorizes the request by itself;
	// some firmware omits Basic Auth on this verb. Failing that, a known
	// device is accepted, as on Poll.
	authorized := h.basicAuthOK(c) || jobActive(job)
	if !authorized {
		authorized = h.knownMAC(c, extractIdentity(f).MAC)
	}
	if !authorized {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no job available"})
		return
	}

	if requested := c.Query("type"); requested != "" && requested != "*/*" && requested != job.RequestedMime {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type"})
		return
	}

	if !jobActive(job) {
		c.JSON(http.StatusGone, gin.H{"error": "job no longer available"})
		return
	}

	payload := job.PayloadCache
	if len(payload) == 0 {
		rendered, err := h.queue.RenderJob(c.Request.Context(), job)
		if err != nil {
			log.Printf("[cloudprnt] render failed for job %d: %v", job.ID, err)
			if _, failErr := h.jobs.MarkFailed(c.Request.Context(), job.ID, core.FailureCodePayload, err.Error(), h.now().UTC()); failErr != nil {
				log.Printf("[cloudprnt] failed to fail job %d: %v", job.ID, failErr)
			}
			h.broadcast("job_failed", job, core.FailureCodePayload)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "payload error"})
			return
		}
		payload = rendered
	}

	if job.Status == string(core.JobStatusQueued) {
		claimed, err := h.jobs.MarkDelivered(c.Request.Context(), job.ID, payload, h.now().UTC())
		if err != nil {
			log.Printf("[cloudprnt] failed to mark job %d delivered: %v", job.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if claimed {
			h.broadcast("job_delivered", job, "")
		} else {
			// Lost the claim race: re-read and serve whatever the winner
			// cached so every fetch sees identical bytes.
			current, err := h.jobs.GetByID(c.Request.Context(), job.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			if !jobActive(current) {
				c.JSON(http.StatusGone, gin.H{"error": "job no longer available"})
				return
			}
			if len(current.PayloadCache) > 0 {
				payload = current.PayloadCache
			}
		}
	}

	c.Data(http.StatusOK, job.RequestedMime, payload)
}

var ackCodeSources = []fieldSource{
	{"query:code", fromQuery("code")},
	{"query:responseCode", fromQuery("responseCode")},
	{"header:X-Star-Code", fromHeader("X-Star-Code")},
}

func isSuccessCode(code string) bool {
	switch strings.ToUpper(code) {
	case "OK", "SUCCESS", "PRINTED":
		return true
	}
	// firmware variants report HTTP-style numeric codes
	return len(code) == 3 && code[0] == '2'
}

// Acknowledge records the device-reported outcome and moves the job to its
// terminal state. Failure codes are stored verbatim and mirrored onto the
// printer's last_error in the same transaction.
func (h *CloudPRNTHandler) Acknowledge(c *gin.Context) {
	f := h.fields(c, false)
	job, identified := h.resolveJob(c, f)

	if !identified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job token or printer identity required"})
		return
	}

	// Some firmware never authenticates this verb: a request that resolves
	// to a real in-flight job passes. An unresolvable job never does.
	authorized := h.basicAuthOK(c) || jobActive(job)
	if !authorized {
		authorized = job != nil && h.knownMAC(c, extractIdentity(f).MAC)
	}
	if !authorized {
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no job available"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no job available"})
		return
	}

	code := firstNonEmpty(f, ackCodeSources)
	if code == "" {
		code = "OK"
	}
	message := c.Query("message")

	now := h.now().UTC()
	if isSuccessCode(code) {
		if _, err := h.jobs.MarkCompleted(c.Request.Context(), job.ID, now); err != nil {
			log.Printf("[cloudprnt] failed to complete job %d: %v", job.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		h.broadcast("job_completed", job, "")
	} else {
		if _, err := h.jobs.MarkFailedWithPrinterError(c.Request.Context(), job.ID, job.PrinterID, code, message, now); err != nil {
			log.Printf("[cloudprnt] failed to fail job %d: %v", job.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		h.broadcast("job_failed", job, code)
	}

	current, err := h.jobs.GetByID(c.Request.Context(), job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": current.Status})
}

func (h *CloudPRNTHandler) broadcast(eventType string, job *db.PrintJob, errCode string) {
	if h.hub == nil {
		return
	}
	status := map[string]string{
		"job_delivered": string(core.JobStatusDelivered),
		"job_completed": string(core.JobStatusCompleted),
		"job_failed":    string(core.JobStatusFailed),
	}[eventType]
	h.hub.Broadcast(ws.JobEvent{
		Type:        eventType,
		JobID:       job.ID,
		OrderID:     job.OrderID,
		OrderNumber: job.OrderNumber,
		CopyType:    job.CopyType,
		Status:      status,
		PrinterID:   job.PrinterID,
		Error:       errCode,
	})
}
