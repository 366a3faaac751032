// Package insights provides the REST API handlers over the insight
// pipeline: event intake, daily metrics, badges, reports and top apps.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/service/badges"
	"github.com/aimd54/lifescope-insights/internal/service/ingest"
	"github.com/aimd54/lifescope-insights/internal/service/report"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// Ingester interface for event intake.
type Ingester interface {
	Ingest(ctx context.Context, payload map[string]interface{}) (ingest.Outcome, error)
}

// MetricsService interface for daily metrics operations.
type MetricsService interface {
	Aggregate(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
	GetMetrics(ctx context.Context, userID uint, date time.Time) (*models.DailyMetrics, error)
}

// BadgeService interface for badge operations.
type BadgeService interface {
	EvaluateAndAward(ctx context.Context, userID uint, date time.Time) ([]string, error)
	GetUserBadges(ctx context.Context, userID uint) ([]badges.UserBadgeView, error)
	GetBadgeCatalog(ctx context.Context) ([]models.Badge, error)
}

// ReportService interface for report operations.
type ReportService interface {
	GenerateDailyReport(ctx context.Context, userID uint, date time.Time, style string) (*report.Result, error)
	GetDailyReport(ctx context.Context, userID uint, date time.Time) (*report.Result, error)
	GenerateWeeklyReport(ctx context.Context, userID uint, weekStart time.Time, style string) (*report.Result, error)
	ListReports(ctx context.Context, userID uint, reportType string, page, size int) (*report.Page, error)
	UpdateFeedback(ctx context.Context, userID, reportID uint, liked, shared *bool) (*models.AIReport, error)
}

// StatsService interface for period statistics.
type StatsService interface {
	TopApps(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.AppUsage, error)
}

// CacheService drops a user's cached values.
type CacheService interface {
	ClearUser(ctx context.Context, userID uint) int
}

// Services groups the handler dependencies.
type Services struct {
	Ingest  Ingester
	Metrics MetricsService
	Badges  BadgeService
	Reports ReportService
	Stats   StatsService
	Cache   CacheService
}

// Handler handles insight API requests.
type Handler struct {
	svc Services
	log *logger.Logger
}

// NewHandler creates a new insights handler.
func NewHandler(svc Services, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts every endpoint on rg, normally /api/v1.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/events", h.IngestEvent)
	rg.GET("/badges", h.GetBadgeCatalog)

	users := rg.Group("/users/:id")
	users.POST("/metrics/:date/aggregate", h.AggregateDay)
	users.GET("/metrics/:date", h.GetDailyMetrics)
	users.POST("/badges/evaluate/:date", h.EvaluateBadges)
	users.GET("/badges", h.GetUserBadges)
	users.POST("/reports/daily/:date", h.GenerateDailyReport)
	users.GET("/reports/daily/:date", h.GetDailyReport)
	users.POST("/reports/weekly/:start", h.GenerateWeeklyReport)
	users.GET("/reports", h.ListReports)
	users.PATCH("/reports/:report_id", h.UpdateReportFeedback)
	users.GET("/top-apps", h.GetTopApps)
	users.DELETE("/cache", h.ClearUserCache)
}

// IngestEvent accepts one raw usage event synchronously.
// POST /api/v1/events.
func (h *Handler) IngestEvent(c *gin.Context) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil || payload == nil {
		h.errorResponse(c, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	outcome, err := h.svc.Ingest.Ingest(c.Request.Context(), payload)
	if err != nil {
		h.fail(c, err, "Failed to ingest event")
		return
	}
	if !outcome.Accepted {
		c.JSON(http.StatusUnprocessableEntity, outcome)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

// AggregateDay recomputes a user's daily metrics.
// POST /api/v1/users/:id/metrics/:date/aggregate.
func (h *Handler) AggregateDay(c *gin.Context) {
	userID, date, ok := h.userAndDate(c, "date")
	if !ok {
		return
	}

	m, err := h.svc.Metrics.Aggregate(c.Request.Context(), userID, date)
	if err != nil {
		h.fail(c, err, "Failed to aggregate metrics", userID)
		return
	}

	h.log.Info().
		Uint("user_id", userID).
		Str("date", date.Format(models.DateLayout)).
		Int("total_active_mins", m.TotalActiveMins).
		Msg("Aggregated daily metrics")

	c.JSON(http.StatusOK, gin.H{"metrics": m})
}

// GetDailyMetrics returns stored daily metrics.
// GET /api/v1/users/:id/metrics/:date.
func (h *Handler) GetDailyMetrics(c *gin.Context) {
	userID, date, ok := h.userAndDate(c, "date")
	if !ok {
		return
	}

	m, err := h.svc.Metrics.GetMetrics(c.Request.Context(), userID, date)
	if err != nil {
		h.fail(c, err, "Failed to get metrics", userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": m})
}

// EvaluateBadges grants the badges a user's day qualifies for.
// POST /api/v1/users/:id/badges/evaluate/:date.
func (h *Handler) EvaluateBadges(c *gin.Context) {
	userID, date, ok := h.userAndDate(c, "date")
	if !ok {
		return
	}

	codes, err := h.svc.Badges.EvaluateAndAward(c.Request.Context(), userID, date)
	if err != nil {
		h.fail(c, err, "Failed to evaluate badges", userID)
		return
	}
	if codes == nil {
		codes = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"date":          date.Format(models.DateLayout),
		"awarded":       codes,
		"total_awarded": len(codes),
		"evaluated_at":  time.Now().UTC(),
	})
}

// GetUserBadges returns badges earned by a specific user.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userBadges, err := h.svc.Badges.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to get user badges", userID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"generated_at": time.Now().UTC(),
	})
}

// ClearUserCache drops every cached value of a user. The durable store is
// untouched, so the next read repopulates the cache.
// DELETE /api/v1/users/:id/cache.
func (h *Handler) ClearUserCache(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	removed := h.svc.Cache.ClearUser(c.Request.Context(), userID)
	h.log.Info().Uint("user_id", userID).Int("removed", removed).Msg("Cleared user cache")

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "removed": removed})
}

// GetBadgeCatalog returns all available badges.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.svc.Badges.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GenerateDailyReport produces a new narrative for a user's day.
// POST /api/v1/users/:id/reports/daily/:date?style=funny.
func (h *Handler) GenerateDailyReport(c *gin.Context) {
	userID, date, ok := h.userAndDate(c, "date")
	if !ok {
		return
	}

	res, err := h.svc.Reports.GenerateDailyReport(c.Request.Context(), userID, date, c.Query("style"))
	if err != nil {
		h.fail(c, err, "Failed to generate daily report", userID)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetDailyReport returns the latest report of a user's day.
// GET /api/v1/users/:id/reports/daily/:date.
func (h *Handler) GetDailyReport(c *gin.Context) {
	userID, date, ok := h.userAndDate(c, "date")
	if !ok {
		return
	}

	res, err := h.svc.Reports.GetDailyReport(c.Request.Context(), userID, date)
	if err != nil {
		h.fail(c, err, "Failed to get daily report", userID)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GenerateWeeklyReport produces a narrative for the week starting at :start.
// POST /api/v1/users/:id/reports/weekly/:start?style=encouraging.
func (h *Handler) GenerateWeeklyReport(c *gin.Context) {
	userID, start, ok := h.userAndDate(c, "start")
	if !ok {
		return
	}

	res, err := h.svc.Reports.GenerateWeeklyReport(c.Request.Context(), userID, start, c.Query("style"))
	if err != nil {
		h.fail(c, err, "Failed to generate weekly report", userID)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListReports returns one page of a user's reports.
// GET /api/v1/users/:id/reports?type=daily&page=1&size=10.
func (h *Handler) ListReports(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.parseIntQuery(c, "page", 1)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := h.parseIntQuery(c, "size", 0)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Reports.ListReports(c.Request.Context(), userID, c.Query("type"), page, size)
	if err != nil {
		h.fail(c, err, "Failed to list reports", userID)
		return
	}
	c.JSON(http.StatusOK, res)
}

type feedbackRequest struct {
	IsLiked  *bool `json:"is_liked"`
	IsShared *bool `json:"is_shared"`
}

// UpdateReportFeedback sets the like and share flags of a report.
// PATCH /api/v1/users/:id/reports/:report_id.
func (h *Handler) UpdateReportFeedback(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	reportID, err := parseID(c.Param("report_id"), "report ID")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid feedback body")
		return
	}

	updated, err := h.svc.Reports.UpdateFeedback(c.Request.Context(), userID, reportID, req.IsLiked, req.IsShared)
	if err != nil {
		h.fail(c, err, "Failed to update report feedback", userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": updated})
}

// GetTopApps returns a user's most used applications in [start, end).
// GET /api/v1/users/:id/top-apps?start=2025-02-01&end=2025-02-08&limit=10.
func (h *Handler) GetTopApps(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseDate(c.Query("start"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseIntQuery(c, "limit", 0)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	apps, err := h.svc.Stats.TopApps(c.Request.Context(), userID, start, end, limit)
	if err != nil {
		h.fail(c, err, "Failed to get top apps", userID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"start":   start.Format(models.DateLayout),
		"end":     end.Format(models.DateLayout),
		"apps":    apps,
	})
}

// Helper functions

// userAndDate parses the :id and a date parameter, answering 400 on failure.
func (h *Handler) userAndDate(c *gin.Context, param string) (uint, time.Time, bool) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return 0, time.Time{}, false
	}
	date, err := parseDate(c.Param(param))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return 0, time.Time{}, false
	}
	return userID, date, true
}

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	return parseID(c.Param("id"), "user ID")
}

func parseID(raw, what string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s: %s", what, raw)
	}
	return uint(id), nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required (YYYY-MM-DD)")
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return date, nil
}

// parseIntQuery reads an optional integer query parameter.
func (h *Handler) parseIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return n, nil
}
