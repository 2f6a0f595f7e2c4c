package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/core"
	"github.com/tablelift/printd/internal/db"
	"github.com/tablelift/printd/internal/ws"
)

// OrderHandler is the intake used by the checkout flow. Creating an order
// enqueues one automatic print job per copy type; enqueue failures are
// reported but never fail the order itself.
type OrderHandler struct {
	orders *db.OrderStore
	queue  *core.Queue
	hub    *ws.Hub
}

func NewOrderHandler(orders *db.OrderStore, queue *core.Queue, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{orders: orders, queue: queue, hub: hub}
}

type CreateOrderRequest struct {
	Number        string                   `json:"number" binding:"required"`
	CustomerName  string                   `json:"customer_name"`
	CustomerPhone string                   `json:"customer_phone"`
	PickupAt      *time.Time               `json:"pickup_at"`
	Notes         string                   `json:"notes"`
	SubtotalText  string                   `json:"subtotal_text"`
	TaxText       string                   `json:"tax_text"`
	TotalText     string                   `json:"total_text"`
	Lines         []CreateOrderLineRequest `json:"lines" binding:"required,min=1"`
}

type CreateOrderLineRequest struct {
	Qty         int                       `json:"qty" binding:"required,min=1"`
	Name        string                    `json:"name" binding:"required"`
	KitchenName string                    `json:"kitchen_name"`
	Selections  []CreateSelectionRequest  `json:"selections"`
}

type CreateSelectionRequest struct {
	Text        string `json:"text" binding:"required"`
	KitchenText string `json:"kitchen_text"`
	IndentLevel int    `json:"indent_level"`
}

type enqueuedJobSummary struct {
	JobID    int64  `json:"job_id,omitempty"`
	CopyType string `json:"copy_type"`
	Deduped  bool   `json:"deduped,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := &db.Order{
		Number:        req.Number,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		PickupAt:      req.PickupAt,
		Notes:         req.Notes,
		SubtotalText:  req.SubtotalText,
		TaxText:       req.TaxText,
		TotalText:     req.TotalText,
	}
	for _, line := range req.Lines {
		l := db.OrderLine{
			Qty:         line.Qty,
			Name:        line.Name,
			KitchenName: line.KitchenName,
		}
		for _, sel := range line.Selections {
			l.Selections = append(l.Selections, db.LineSelection{
				Text:        sel.Text,
				KitchenText: sel.KitchenText,
				IndentLevel: sel.IndentLevel,
			})
		}
		order.Lines = append(order.Lines, l)
	}

	if err := h.orders.Create(c.Request.Context(), order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	order, err := h.orders.GetByID(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}

	jobs := h.autoEnqueue(c, order)

	if h.hub != nil {
		h.hub.Broadcast(ws.JobEvent{
			Type:        "order_created",
			OrderID:     order.ID,
			OrderNumber: order.Number,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"order": order,
		"jobs":  jobs,
	})
}

// autoEnqueue requests one automatic print per copy type. Best effort: a
// printer that is offline or auto-print being disabled must not block
// checkout, staff can always reprint.
func (h *OrderHandler) autoEnqueue(c *gin.Context, order *db.Order) []enqueuedJobSummary {
	var jobs []enqueuedJobSummary
	for _, copyType := range []core.CopyType{core.CopyTypeFront, core.CopyTypeKitchen} {
		result, err := h.queue.Enqueue(c.Request.Context(), core.EnqueueInput{
			OrderID:   order.ID,
			CopyType:  copyType,
			Source:    core.SourceAuto,
			PreRender: true,
		})
		if err != nil {
			log.Printf("[orders] auto print for order %s copy %s failed: %v", order.Number, copyType, err)
			jobs = append(jobs, enqueuedJobSummary{CopyType: string(copyType), Error: enqueueErrorCode(err)})
			continue
		}
		jobs = append(jobs, enqueuedJobSummary{
			JobID:    result.Job.ID,
			CopyType: string(copyType),
			Deduped:  result.Deduped,
		})
	}
	return jobs
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get order"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// enqueueErrorCode maps queue service errors to the stable reason codes the
// API reports.
func enqueueErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrPrinterRequired):
		return "PRINTER_REQUIRED"
	case errors.Is(err, core.ErrPrinterNotFound):
		return "PRINTER_NOT_FOUND"
	case errors.Is(err, core.ErrOrderNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, core.ErrAutoPrintDisabled):
		return "AUTO_PRINT_DISABLED"
	case errors.Is(err, core.ErrNoActivePrinter):
		return "NO_ACTIVE_PRINTER"
	case errors.Is(err, core.ErrRenderFailed):
		return "RENDER_FAILED"
	default:
		return "INTERNAL"
	}
}

func enqueueErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrPrinterRequired):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPrinterNotFound), errors.Is(err, core.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAutoPrintDisabled), errors.Is(err, core.ErrNoActivePrinter):
		return http.StatusConflict
	case errors.Is(err, core.ErrRenderFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:id", h.GetOrder)
}
