package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"markit/internal/auth"
	"markit/internal/httpapi"
)

// Handler exposes the auth and user endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAuth mounts the public auth routes.
func (h *Handler) RegisterAuth(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
}

// RegisterUsers mounts the authenticated user routes; the flat routes are
// admin-only.
func (h *Handler) RegisterUsers(rg *gin.RouterGroup) {
	rg.GET("/profile", h.profile)
	rg.PUT("/profile", h.updateProfile)
	rg.PUT("/preferences", h.updatePreferences)
	rg.PUT("/attendance-goal", h.updateGoal)
	rg.GET("/stats", h.userStats)
	rg.DELETE("/account", h.deleteAccount)

	admin := rg.Group("", auth.AdminOnly())
	admin.GET("", h.list)
	admin.GET("/:id", h.get)
	admin.PUT("/:id/status", h.setStatus)
}

func tokenResponse(u *User, pair auth.TokenPair) gin.H {
	return gin.H{
		"user":         u,
		"token":        pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.AccessExp.Unix(),
	}
}

func (h *Handler) register(c *gin.Context) {
	var in RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	u, pair, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusCreated, "Account created successfully", tokenResponse(u, pair))
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	u, pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Logged in successfully", tokenResponse(u, pair))
}

func (h *Handler) profile(c *gin.Context) {
	u, err := h.svc.Profile(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"user": u})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var in ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpapi.BadRequest(c, "Invalid request body")
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Profile updated successfully", gin.H{"user": u})
}

func (h *Handler) updatePreferences(c *gin.Context) {
	var req struct {
		Preferences *Preferences `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Preferences == nil {
		httpapi.BadRequest(c, "Preferences are required")
		return
	}
	u, err := h.svc.UpdatePreferences(c.Request.Context(), auth.UserID(c), *req.Preferences)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Preferences updated successfully", gin.H{
		"preferences": u.Preferences,
	})
}

func (h *Handler) updateGoal(c *gin.Context) {
	var req struct {
		AttendanceGoal *int `json:"attendanceGoal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AttendanceGoal == nil {
		httpapi.BadRequest(c, "Attendance goal must be a number between 0 and 100")
		return
	}
	u, err := h.svc.UpdateGoal(c.Request.Context(), auth.UserID(c), *req.AttendanceGoal)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Attendance goal updated successfully", gin.H{
		"attendanceGoal": u.AttendanceGoal,
		"preferences":    u.Preferences,
	})
}

func (h *Handler) userStats(c *gin.Context) {
	view, err := h.svc.Stats(c.Request.Context(), auth.UserID(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, view)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "Password is required to delete account")
		return
	}
	if err := h.svc.DeleteAccount(c.Request.Context(), auth.UserID(c), req.Password); err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "Account deleted successfully", nil)
}

func (h *Handler) list(c *gin.Context) {
	f := ListFilter{Search: c.Query("search")}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		f.Limit = v
	}
	users, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	pages := (total + f.Limit - 1) / f.Limit
	httpapi.OK(c, http.StatusOK, gin.H{
		"users": users,
		"count": len(users),
		"total": total,
		"page":  f.Page,
		"pages": pages,
	})
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, http.StatusOK, gin.H{"user": u})
}

func (h *Handler) setStatus(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		httpapi.BadRequest(c, "isActive is required")
		return
	}
	u, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OKMessage(c, http.StatusOK, "User updated successfully", gin.H{"user": u})
}
