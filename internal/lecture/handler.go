package lecture

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"markit/internal/auth"
	"markit/internal/httpapi"
	"markit/internal/stats"
)

// Handler exposes the lecture endpoints.
type Handler struct {
	svc    *Service
	engine *stats.Engine
}

// NewHandler creates a handler.
func NewHandler(svc *Service, engine *stats.Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

// Register mounts the lecture routes on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.remove)
	rg.GET("/range/:startDate/:endDate", h.byRange)
	rg.GET("/today/list", h.today)
	rg.GET("/upcoming/list", h.upcoming)
	rg.PUT("/bulk-attendance", h.bulkAttendance)
	rg.POST("/mark-attendance", h.markAttendance)
	rg.GET("/stats/overview", h.statsOverview)
}

func (h *Handler) list(c *gin.Context) {
	userID := auth.UserID(c)

	f := ListFilter{
		Search:    c.Query("search"),
		SubjectID: c.Query("subject"),
		Status:    c.Query("status"),
		Sort:      c.Query("sort"),
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		f.Limit = v
	}
	if v := c.Query("startDate"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			f.Start = &d
		}
	}
	if v := c.Query("endDate"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			f.End = &d
		}
	}

	lectures, total, err := h.svc.List(c.Request.Context(), userID, f)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if lectures == nil {
		lectures = []Lecture{}
	}
	pages := (total + f.Limit - 1) / f.Limit
	httpapi.OK(c, http.StatusOK, gin.H{
		"lectures": lectures,
		"pagination": gin.H{
			"page":  f.Page,
			"limit": f.Limit,
			"total": total,
			"pages": pages,
		},
	})
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	lec, err := h.svc.Create(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusCreated, "Lecture created successfully", gin.H{"lecture": lec})
}

func (h *Handler) get(c *gin.Context) {
	lec, err := h.svc.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"lecture": lec})
}

func (h *Handler) update(c *gin.Context) {
	var in UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	lec, err := h.svc.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Lecture updated successfully", gin.H{"lecture": lec})
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Lecture deleted successfully", nil)
}

func (h *Handler) byRange(c *gin.Context) {
	grouped, total, err := h.svc.Range(c.Request.Context(), auth.UserID(c),
		c.Param("startDate"), c.Param("endDate"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"lectures": grouped, "totalLectures": total})
}

func (h *Handler) today(c *gin.Context) {
	lectures, err := h.svc.Today(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if lectures == nil {
		lectures = []Lecture{}
	}
	httpapi.OK(c, http.StatusOK, gin.H{"lectures": lectures, "count": len(lectures)})
}

func (h *Handler) upcoming(c *gin.Context) {
	lectures, err := h.svc.Upcoming(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if lectures == nil {
		lectures = []Lecture{}
	}
	httpapi.OK(c, http.StatusOK, gin.H{"lectures": lectures, "count": len(lectures)})
}

func (h *Handler) bulkAttendance(c *gin.Context) {
	var req struct {
		Lectures []BulkItem `json:"lectures" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "Lectures array is required")
		return
	}
	updated, err := h.svc.BulkAttendance(c.Request.Context(), auth.UserID(c), req.Lectures)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if updated == nil {
		updated = []Lecture{}
	}
	httpapi.OKMessage(c, http.StatusOK, "Attendance updated successfully", gin.H{
		"updated": updated,
		"count":   len(updated),
	})
}

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		Date       string      `json:"date" binding:"required"`
		Attendance []MarkEntry `json:"attendance" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "Date and attendance array are required")
		return
	}
	results, err := h.svc.MarkAttendance(c.Request.Context(), auth.UserID(c), req.Date, req.Attendance)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if results == nil {
		results = []Lecture{}
	}
	httpapi.OKMessage(c, http.StatusOK, "Attendance marked successfully", gin.H{
		"lectures": results,
		"count":    len(results),
	})
}

func (h *Handler) statsOverview(c *gin.Context) {
	userID := auth.UserID(c)
	ctx := c.Request.Context()

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if v := c.Query("startDate"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			start = d
		}
	}
	if v := c.Query("endDate"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			end = d
		}
	}

	overall, err := h.engine.RangeStats(ctx, userID, start, end)
	if err != nil {
		httpapi.Fail(c, httpapi.Storef("stats query failed", err))
		return
	}
	weekly, err := h.engine.WeeklyTrend(ctx, userID, 8)
	if err != nil {
		httpapi.Fail(c, httpapi.Storef("stats query failed", err))
		return
	}
	subjects, err := h.engine.SubjectWise(ctx, userID)
	if err != nil {
		httpapi.Fail(c, httpapi.Storef("stats query failed", err))
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{
		"overall":     overall,
		"weeklyTrend": weekly,
		"subjectWise": subjects,
	})
}
