package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabform/collabform/internal/form"
	"github.com/collabform/collabform/internal/response"
	"github.com/collabform/collabform/internal/response/service"
)

// Handler exposes the durable-write surface over HTTP. This is the
// only path that reports persistence errors to the writer; the
// realtime channel never does.
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the response routes. mw normally carries the auth
// middleware; tests pass none.
func (h *Handler) Register(r *gin.Engine, mw ...gin.HandlerFunc) {
	g := r.Group("/api/responses", mw...)
	g.POST("/form/:formId/join", h.Join)
	g.GET("/form/:formId", h.ListByForm)
	g.GET("/:id", h.Get)
	g.PATCH("/:id/fields/:fieldId", h.UpdateField)
	g.PATCH("/:id/complete", h.MarkComplete)
}

// Join handles POST /api/responses/form/:formId/join
func (h *Handler) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	resp, err := h.svc.JoinOrCreate(c.Request.Context(), c.Param("formId"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

// Get handles GET /api/responses/:id
func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if resp.Collaborator(userID) == nil {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "not authorized to access this response"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

// UpdateField handles PATCH /api/responses/:id/fields/:fieldId
func (h *Handler) UpdateField(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Value response.Value `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	fv, err := h.svc.UpdateField(c.Request.Context(), c.Param("id"), c.Param("fieldId"), req.Value, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": fv})
}

// ListByForm handles GET /api/responses/form/:formId
func (h *Handler) ListByForm(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	list, err := h.svc.ListByForm(c.Request.Context(), c.Param("formId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "data": list})
}

// MarkComplete handles PATCH /api/responses/:id/complete
func (h *Handler) MarkComplete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	resp, err := h.svc.MarkComplete(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "response marked as complete", "data": resp})
}

// currentUser reads the acting user set by the auth middleware. The
// X-User-Id header is honored only when no middleware ran (dev/test).
func currentUser(c *gin.Context) (string, bool) {
	if v, ok := c.Get("userId"); ok {
		if id, ok2 := v.(string); ok2 && id != "" {
			return id, true
		}
	}
	if id := c.GetHeader("X-User-Id"); id != "" {
		return id, true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user identity"})
	return "", false
}

func writeError(c *gin.Context, err error) {
	switch err {
	case response.ErrNotFound, response.ErrFieldNotFound, form.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case response.ErrForbidden:
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": err.Error()})
	case response.ErrCompleted, response.ErrFormInactive:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
	}
}
