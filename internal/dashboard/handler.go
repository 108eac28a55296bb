package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"markit/internal/auth"
	"markit/internal/httpapi"
)

// Handler exposes the dashboard endpoints.
type Handler struct {
	svc         *Service
	demoEnabled bool
}

// NewHandler creates a handler.
func NewHandler(svc *Service, demoEnabled bool) *Handler {
	return &Handler{svc: svc, demoEnabled: demoEnabled}
}

// Register mounts the dashboard routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.overview)
	rg.GET("/attendance-summary", h.summary)
	rg.GET("/analytics", h.analytics)
	rg.POST("/init-demo-data", h.seedDemo)
	rg.GET("/debug", h.debug)
}

func (h *Handler) overview(c *gin.Context) {
	view, err := h.svc.Overview(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, view)
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), auth.UserID(c),
		c.DefaultQuery("period", "month"), c.Query("subjectId"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, summary)
}

func (h *Handler) analytics(c *gin.Context) {
	view, err := h.svc.Analytics(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, view)
}

func (h *Handler) seedDemo(c *gin.Context) {
	if !h.demoEnabled {
		httpapi.Fail(c, httpapi.Forbiddenf("Demo data seeding is disabled"))
		return
	}
	subjects, lectures, err := h.svc.SeedDemo(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusCreated, "Demo data created successfully!", gin.H{
		"subjects": subjects,
		"lectures": lectures,
	})
}

func (h *Handler) debug(c *gin.Context) {
	info, err := h.svc.Debug(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"debug": info})
}
