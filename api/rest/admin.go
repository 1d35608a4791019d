package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles operator endpoints: content reload, template listing,
// character attribute edits and audit lookup.
type AdminHandler struct {
	store  *quest.TemplateStore
	attrs  *quest.AttributeStore
	audit  *audit.Service
	sched  *scheduler.Scheduler
	reload func(ctx context.Context) error
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler. reload may be nil when no content
// directory is configured.
func NewAdminHandler(
	store *quest.TemplateStore,
	attrs *quest.AttributeStore,
	auditSvc *audit.Service,
	sched *scheduler.Scheduler,
	reload func(ctx context.Context) error,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{store: store, attrs: attrs, audit: auditSvc, sched: sched, reload: reload, logger: logger}
}

// Register mounts the admin routes on r.
func (h *AdminHandler) Register(r gin.IRouter) {
	a := r.Group("/admin")
	a.GET("/status", h.Status)
	a.GET("/quests/templates", h.Templates)
	a.POST("/quests/reload", h.Reload)
	a.PUT("/characters/:id/attributes", h.SetAttribute)
	a.GET("/quests/instances/:id/audit", h.Audit)
}

// Status reports scheduler tasks and template cache occupancy.
// GET /api/admin/status
func (h *AdminHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"scheduler_tasks":  h.sched.ListTickers(),
		"cached_templates": h.store.Len(),
	})
}

// Templates lists active template ids.
// GET /api/admin/quests/templates
func (h *AdminHandler) Templates(c *gin.Context) {
	ids, err := h.store.ActiveIDs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": ids})
}

// Reload re-imports the content directory now.
// POST /api/admin/quests/reload
func (h *AdminHandler) Reload(c *gin.Context) {
	if h.reload == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no content directory configured"})
		return
	}
	if err := h.reload(c.Request.Context()); err != nil {
		h.logger.Warn("manual content reload failed", zap.Error(err))
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	h.store.Purge()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type setAttributeRequest struct {
	Kind  string `json:"kind"  binding:"required"`
	Name  string `json:"name"  binding:"required"`
	Value *int   `json:"value" binding:"required"`
}

// SetAttribute upserts one attribute or skill modifier of a character.
// Values are snapshotted into quests started afterwards.
// PUT /api/admin/characters/:id/attributes
func (h *AdminHandler) SetAttribute(c *gin.Context) {
	var req setAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.attrs.Set(c.Request.Context(), c.Param("id"), req.Kind, req.Name, *req.Value); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Audit returns the audit trail of an instance, oldest first.
// GET /api/admin/quests/instances/:id/audit?limit=50
func (h *AdminHandler) Audit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.audit.ByInstance(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}
