package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tablelift/printd/internal/db"
)

// Queue is the print job queue service: it decides which printer a job
// belongs to, suppresses duplicate automatic jobs, and creates QUEUED rows.
// Status transitions after creation are owned by the protocol handler.
type Queue struct {
	jobs     *db.JobStore
	orders   *db.OrderStore
	printers *db.PrinterStore
	settings *db.SettingStore
	registry *Registry
	renderer *Renderer

	mediaType string
	buildOpts BuildOptions
	now       func() time.Time
}

func NewQueue(jobs *db.JobStore, orders *db.OrderStore, printers *db.PrinterStore, settings *db.SettingStore, registry *Registry, renderer *Renderer, mediaType string, buildOpts BuildOptions) *Queue {
	return &Queue{
		jobs:      jobs,
		orders:    orders,
		printers:  printers,
		settings:  settings,
		registry:  registry,
		renderer:  renderer,
		mediaType: mediaType,
		buildOpts: buildOpts,
		now:       time.Now,
	}
}

// EnqueueInput identifies the target printer either directly or by MAC, the
// order by id or number, and carries the copy type and request source.
type EnqueueInput struct {
	PrinterID   int64
	PrinterMAC  string
	PrinterName string

	OrderID     int64
	OrderNumber string

	CopyType  CopyType
	Source    JobSource
	PreRender bool
}

type EnqueueResult struct {
	Job     *db.PrintJob
	Deduped bool
}

func (q *Queue) Enqueue(ctx context.Context, input EnqueueInput) (*EnqueueResult, error) {
	if !input.CopyType.Valid() {
		return nil, fmt.Errorf("invalid copy type %q", input.CopyType)
	}
	if !input.Source.Valid() {
		return nil, fmt.Errorf("invalid source %q", input.Source)
	}

	order, err := q.resolveOrder(ctx, input)
	if err != nil {
		return nil, err
	}

	printer, err := q.resolvePrinter(ctx, input)
	if err != nil {
		return nil, err
	}

	// Automatic enqueues are deduplicated: one live-or-done job per
	// (order, copy type). Manual requests are explicit reprints and always
	// create a new job.
	if input.Source == SourceAuto {
		existing, err := q.jobs.FindDedup(ctx, order.ID, string(input.CopyType))
		if err == nil {
			return &EnqueueResult{Job: existing, Deduped: true}, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	job := &db.PrintJob{
		PrinterID:     printer.ID,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CopyType:      string(input.CopyType),
		Source:        string(input.Source),
		JobToken:      uuid.NewString(),
		RequestedMime: q.mediaType,
		RequestedAt:   q.now().UTC(),
	}

	if input.PreRender {
		payload := BuildPayload(order, input.CopyType, q.buildOpts)
		rendered, err := q.renderer.Render(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
		job.PayloadCache = rendered
	}

	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("[queue] job %d queued: order %s copy %s printer %d source %s",
		job.ID, job.OrderNumber, job.CopyType, job.PrinterID, job.Source)

	return &EnqueueResult{Job: job}, nil
}

// RenderJob builds and rasterizes the payload for an existing job. Used for
// lazy rendering at first device fetch and for staff previews.
func (q *Queue) RenderJob(ctx context.Context, job *db.PrintJob) ([]byte, error) {
	order, err := q.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	payload := BuildPayload(order, CopyType(job.CopyType), q.buildOpts)
	rendered, err := q.renderer.Render(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return rendered, nil
}

func (q *Queue) resolveOrder(ctx context.Context, input EnqueueInput) (*db.Order, error) {
	var (
		order *db.Order
		err   error
	)
	switch {
	case input.OrderID > 0:
		order, err = q.orders.GetByID(ctx, input.OrderID)
	case input.OrderNumber != "":
		order, err = q.orders.GetByNumber(ctx, input.OrderNumber)
	default:
		return nil, ErrOrderNotFound
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// resolvePrinter applies the resolution policy: explicit printer wins, MAC
// upserts through the registry, and only automatic requests may fall back to
// the configured auto-print printer or the most recently seen active one.
func (q *Queue) resolvePrinter(ctx context.Context, input EnqueueInput) (*db.Printer, error) {
	if input.PrinterID > 0 {
		printer, err := q.printers.GetByID(ctx, input.PrinterID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, ErrPrinterNotFound
			}
			return nil, err
		}
		return printer, nil
	}

	if input.PrinterMAC != "" {
		return q.registry.Upsert(ctx, input.PrinterMAC, "", input.PrinterName, "")
	}

	if input.Source != SourceAuto {
		return nil, ErrPrinterRequired
	}

	enabled, err := q.settings.Get(ctx, SettingAutoPrintEnabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAutoPrintDisabled
		}
		return nil, err
	}
	if enabled.Value != "true" {
		return nil, ErrAutoPrintDisabled
	}

	if idSetting, err := q.settings.Get(ctx, SettingAutoPrintPrinterID); err == nil {
		if id, convErr := strconv.ParseInt(idSetting.Value, 10, 64); convErr == nil && id > 0 {
			printer, err := q.printers.GetByID(ctx, id)
			if err == nil && printer.IsActive {
				return printer, nil
			}
			if err != nil && err != sql.ErrNoRows {
				return nil, err
			}
		}
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	printer, err := q.printers.MostRecentlySeenActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoActivePrinter
		}
		return nil, err
	}
	return printer, nil
}
