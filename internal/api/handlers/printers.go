package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/db"
)

type PrinterHandler struct {
	printers *db.PrinterStore
}

func NewPrinterHandler(printers *db.PrinterStore) *PrinterHandler {
	return &PrinterHandler{printers: printers}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := h.printers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list printers"})
		return
	}
	if printers == nil {
		printers = []*db.Printer{}
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	printer, err := h.printers.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}

	c.JSON(http.StatusOK, printer)
}

type UpdatePrinterRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid printer id"})
		return
	}

	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.printers.GetByID(c.Request.Context(), id); err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		if err := h.printers.Rename(c.Request.Context(), id, *req.Name); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename printer"})
			return
		}
	}

	if req.IsActive != nil {
		if err := h.printers.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update printer"})
			return
		}
	}

	printer, err := h.printers.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printers", h.ListPrinters)
	r.GET("/printers/:id", h.GetPrinter)
	r.PATCH("/printers/:id", h.UpdatePrinter)
}
