package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questengine/game/quest"
	mw "github.com/kasuganosora/questengine/middleware"
	"go.uber.org/zap"
)

// QuestHandler exposes the quest service over HTTP.
type QuestHandler struct {
	svc    *quest.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(svc *quest.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{svc: svc, logger: logger}
}

// Register mounts the quest routes on r (normally the /api group).
func (h *QuestHandler) Register(r gin.IRouter) {
	q := r.Group("/quests")
	q.POST("/start", h.Start)
	q.GET("/instances/:id", h.Get)
	q.GET("/instances/:id/dialogue", h.Dialogue)
	q.GET("/instances/:id/history", h.History)
	q.POST("/instances/:id/choose", h.Choose)
	q.POST("/instances/:id/skill-check", h.SkillCheck)
	q.POST("/instances/:id/complete", h.Complete)
	q.POST("/instances/:id/abandon", h.Abandon)
	q.POST("/instances/:id/fail", h.Fail)

	r.GET("/characters/:id/quests/active", h.Active)
}

type startRequest struct {
	CharacterID string `json:"character_id" binding:"required"`
	TemplateID  string `json:"template_id"  binding:"required"`
}

// Start handles POST /api/quests/start.
func (h *QuestHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst, err := h.svc.StartQuest(c.Request.Context(), req.CharacterID, req.TemplateID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// Get handles GET /api/quests/instances/:id.
func (h *QuestHandler) Get(c *gin.Context) {
	inst, err := h.svc.GetQuestInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Dialogue handles GET /api/quests/instances/:id/dialogue.
func (h *QuestHandler) Dialogue(c *gin.Context) {
	view, err := h.svc.GetCurrentDialogue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// History handles GET /api/quests/instances/:id/history.
func (h *QuestHandler) History(c *gin.Context) {
	ds, err := h.svc.GetDialogueHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

type chooseRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// Choose handles POST /api/quests/instances/:id/choose. A failed skill check
// is still a 200; the body carries success=false.
func (h *QuestHandler) Choose(c *gin.Context) {
	var req chooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.ChooseDialogueOption(c.Request.Context(), c.Param("id"), req.OptionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type skillCheckRequest struct {
	Skill      string `json:"skill"      binding:"required"`
	Difficulty int    `json:"difficulty"`
	Advantage  bool   `json:"advantage"`
}

// SkillCheck handles POST /api/quests/instances/:id/skill-check.
func (h *QuestHandler) SkillCheck(c *gin.Context) {
	var req skillCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.PerformSkillCheck(c.Request.Context(), c.Param("id"), req.Skill, req.Difficulty, req.Advantage)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type completeRequest struct {
	Proof string `json:"proof"`
}

// Complete handles POST /api/quests/instances/:id/complete. The body is
// optional.
func (h *QuestHandler) Complete(c *gin.Context) {
	var req completeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.svc.CompleteQuest(c.Request.Context(), c.Param("id"), req.Proof)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Abandon handles POST /api/quests/instances/:id/abandon.
func (h *QuestHandler) Abandon(c *gin.Context) {
	inst, err := h.svc.AbandonQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Fail handles POST /api/quests/instances/:id/fail.
func (h *QuestHandler) Fail(c *gin.Context) {
	inst, err := h.svc.FailQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// Active handles GET /api/characters/:id/quests/active.
func (h *QuestHandler) Active(c *gin.Context) {
	list, err := h.svc.GetActiveQuests(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": list})
}

func (h *QuestHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("quest request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusOf maps service errors onto HTTP statuses. Integrity errors are
// checked first since a dangling node reference also matches ErrNotFound.
func statusOf(err error) int {
	switch {
	case errors.Is(err, quest.ErrDataIntegrity):
		return http.StatusInternalServerError
	case errors.Is(err, quest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quest.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, quest.ErrBadRequest), errors.Is(err, quest.ErrInvalidContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
