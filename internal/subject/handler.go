package subject

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"markit/internal/auth"
	"markit/internal/httpapi"
)

// Handler exposes the subject endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the subject routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.PUT("/bulk", h.bulkUpdate)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.remove)
	rg.GET("/:id/stats", h.subjectStats)
	rg.PUT("/:id/goal", h.updateGoal)
}

func (h *Handler) list(c *gin.Context) {
	f := ListFilter{
		Search: c.Query("search"),
		Sort:   c.Query("sort"),
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		f.Limit = v
	}

	subjects, total, err := h.svc.List(c.Request.Context(), auth.UserID(c), f)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if subjects == nil {
		subjects = []Subject{}
	}
	pages := (total + f.Limit - 1) / f.Limit
	httpapi.OK(c, http.StatusOK, gin.H{
		"subjects": subjects,
		"count":    len(subjects),
		"total":    total,
		"page":     f.Page,
		"pages":    pages,
	})
}

func (h *Handler) get(c *gin.Context) {
	sub, err := h.svc.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"subject": sub})
}

func (h *Handler) create(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	sub, err := h.svc.Create(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusCreated, "Subject created successfully", gin.H{"subject": sub})
}

func (h *Handler) update(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	sub, err := h.svc.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Subject updated successfully", gin.H{"subject": sub})
}

func (h *Handler) remove(c *gin.Context) {
	msg, err := h.svc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, msg, nil)
}

func (h *Handler) subjectStats(c *gin.Context) {
	view, err := h.svc.Stats(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, view)
}

func (h *Handler) updateGoal(c *gin.Context) {
	var req struct {
		AttendanceGoal *int `json:"attendanceGoal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AttendanceGoal == nil {
		httpapi.BadRequest(c, "Attendance goal must be a number between 0 and 100")
		return
	}
	meets, err := h.svc.UpdateGoal(c.Request.Context(), auth.UserID(c), c.Param("id"), *req.AttendanceGoal)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Attendance goal updated successfully", gin.H{
		"attendanceGoal": *req.AttendanceGoal,
		"meetsGoal":      meets,
	})
}

func (h *Handler) bulkUpdate(c *gin.Context) {
	var req struct {
		Subjects []BulkItem `json:"subjects" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Subjects) == 0 {
		httpapi.BadRequest(c, "Subjects array is required")
		return
	}
	updated, err := h.svc.BulkUpdate(c.Request.Context(), auth.UserID(c), req.Subjects)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if updated == nil {
		updated = []Subject{}
	}
	httpapi.OKMessage(c, http.StatusOK,
		fmt.Sprintf("%d subjects updated successfully", len(updated)),
		gin.H{"subjects": updated})
}
