package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/core"
	"github.com/tablelift/printd/internal/db"
)

// SettingsHandler exposes the auto-print configuration the queue service
// reads at enqueue time.
type SettingsHandler struct {
	settings *db.SettingStore
	printers *db.PrinterStore
}

func NewSettingsHandler(settings *db.SettingStore, printers *db.PrinterStore) *SettingsHandler {
	return &SettingsHandler{settings: settings, printers: printers}
}

type AutoPrintSettings struct {
	Enabled          bool  `json:"enabled"`
	DefaultPrinterID int64 `json:"default_printer_id,omitempty"`
}

func (h *SettingsHandler) GetAutoPrint(c *gin.Context) {
	out := AutoPrintSettings{}

	if setting, err := h.settings.Get(c.Request.Context(), core.SettingAutoPrintEnabled); err == nil {
		out.Enabled = setting.Value == "true"
	} else if err != sql.ErrNoRows {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read settings"})
		return
	}

	if setting, err := h.settings.Get(c.Request.Context(), core.SettingAutoPrintPrinterID); err == nil {
		if id, convErr := strconv.ParseInt(setting.Value, 10, 64); convErr == nil {
			out.DefaultPrinterID = id
		}
	} else if err != sql.ErrNoRows {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read settings"})
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *SettingsHandler) UpdateAutoPrint(c *gin.Context) {
	var req AutoPrintSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.DefaultPrinterID > 0 {
		if _, err := h.printers.GetByID(c.Request.Context(), req.DefaultPrinterID); err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get printer"})
			return
		}
	}

	enabled := "false"
	if req.Enabled {
		enabled = "true"
	}
	if err := h.settings.Set(c.Request.Context(), core.SettingAutoPrintEnabled, enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	if req.DefaultPrinterID > 0 {
		if err := h.settings.Set(c.Request.Context(), core.SettingAutoPrintPrinterID, strconv.FormatInt(req.DefaultPrinterID, 10)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
			return
		}
	} else {
		if err := h.settings.Delete(c.Request.Context(), core.SettingAutoPrintPrinterID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
			return
		}
	}

	c.JSON(http.StatusOK, req)
}

func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings/autoprint", h.GetAutoPrint)
	r.PUT("/settings/autoprint", h.UpdateAutoPrint)
}
