// Package report assembles metrics and achievement context into prompts
// and stores the narratives produced by a text generator.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/lifescope-insights/internal/apperr"
	"github.com/aimd54/lifescope-insights/internal/cache"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/service/badges"
	"github.com/aimd54/lifescope-insights/internal/service/stats"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// ReportRepository interface for report operations.
type ReportRepository interface {
	Create(ctx context.Context, report *models.AIReport) error
	GetByID(ctx context.Context, id uint) (*models.AIReport, error)
	GetLatest(ctx context.Context, userID uint, date time.Time, reportType string) (*models.AIReport, error)
	List(ctx context.Context, userID uint, reportType string, offset, limit int) ([]models.AIReport, int64, error)
	UpdateFlags(ctx context.Context, id uint, liked, shared *bool) error
}

// BadgeHistory lists badges earned in a time range.
type BadgeHistory interface {
	GetUserBadgesBetween(ctx context.Context, userID uint, start, end time.Time) ([]models.UserBadge, error)
}

// WeeklyStats summarises a week of metrics.
type WeeklyStats interface {
	Weekly(ctx context.Context, userID uint, start time.Time) (*stats.WeeklySummary, error)
}

// TextGenerator produces the narrative for a prompt pair.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Cache is the subset of the cache layer used for reports.
type Cache interface {
	PutReport(ctx context.Context, userID uint, date time.Time, content string)
	GetReport(ctx context.Context, userID uint, date time.Time) (string, bool)
	PutWeeklyReport(ctx context.Context, userID uint, weekStart time.Time, content string)
	GetWeeklyReport(ctx context.Context, userID uint, weekStart time.Time) (string, bool)
}

// Config holds report generation settings.
type Config struct {
	MaxTokens         int
	GenerationTimeout time.Duration
	DefaultStyle      string
}

// Deps groups the collaborators of the report service. Previous and
// Challenge are optional.
type Deps struct {
	Users     UserRepository
	Metrics   MetricsSource
	Reports   ReportRepository
	Badges    BadgeHistory
	Weekly    WeeklyStats
	Generator TextGenerator
	Cache     Cache
	Previous  PreviousPeriod
	Challenge ChallengeStatus
}

// Result is a generated or stored report.
type Result struct {
	ReportID uint   `json:"report_id,omitempty"`
	Content  string `json:"content"`
	Style    string `json:"style,omitempty"`
	Date     string `json:"date"`
	Cached   bool   `json:"cached,omitempty"`
}

// Page is one page of a user's reports, newest first.
type Page struct {
	Items []models.AIReport `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// Service generates and serves narrative reports.
type Service struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

// NewService creates a new report service.
func NewService(deps Deps, cfg Config, log *logger.Logger) *Service {
	if deps.Previous == nil {
		deps.Previous = NewPreviousDay(deps.Metrics)
	}
	if deps.Challenge == nil {
		deps.Challenge = noChallengeStatus{}
	}
	if deps.Cache == nil {
		deps.Cache = (*cache.Layer)(nil)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	return &Service{deps: deps, cfg: cfg, log: log}
}

// GenerateDailyReport produces a new narrative for a user's day. It never
// aggregates: the day's metrics must already exist.
func (s *Service) GenerateDailyReport(ctx context.Context, userID uint, date time.Time, style string) (*Result, error) {
	style, err := ParseStyle(style, s.cfg.DefaultStyle)
	if err != nil {
		return nil, err
	}
	day := models.Day(date)

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	m, err := s.deps.Metrics.GetMetrics(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	change := stats.CompareTotals(0, 0)
	if prev, ok, err := s.deps.Previous.PreviousTotal(ctx, userID, day); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to load previous day, assuming no change")
	} else if ok {
		change = stats.CompareTotals(m.TotalActiveMins, prev)
	}

	challenge, err := s.deps.Challenge.Status(ctx, userID, day)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to load challenge status")
		challenge = noChallenge
	}

	achievements := badges.EvaluateAchievements(badges.InputFromMetrics(m))
	data := BuildDailyPromptData(user.Username, style, m, change, challenge, achievements)
	prompt, err := renderTemplate(dailyTemplate, data)
	if err != nil {
		return nil, err
	}

	content, err := s.generate(ctx, models.ReportTypeDaily, style, prompt)
	if err != nil {
		return nil, err
	}

	report := &models.AIReport{
		UserID:     userID,
		ReportDate: day,
		ReportType: models.ReportTypeDaily,
		Content:    content,
		Style:      style,
	}
	// Generated text is stored even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.deps.Reports.Create(persistCtx, report); err != nil {
		prommetrics.RecordReportGenerated(models.ReportTypeDaily, style, "storage_error")
		return nil, err
	}
	s.deps.Cache.PutReport(persistCtx, userID, day, content)

	prommetrics.RecordReportGenerated(models.ReportTypeDaily, style, "success")
	s.log.Info().
		Uint("user_id", userID).
		Uint("report_id", report.ID).
		Str("date", day.Format(models.DateLayout)).
		Str("style", style).
		Int("achievements", len(achievements)).
		Msg("Daily report generated")

	return &Result{
		ReportID: report.ID,
		Content:  content,
		Style:    style,
		Date:     day.Format(models.DateLayout),
	}, nil
}

// GenerateWeeklyReport produces a narrative for the seven days starting at
// weekStart.
func (s *Service) GenerateWeeklyReport(ctx context.Context, userID uint, weekStart time.Time, style string) (*Result, error) {
	style, err := ParseStyle(style, s.cfg.DefaultStyle)
	if err != nil {
		return nil, err
	}
	start := models.Day(weekStart)

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary, err := s.deps.Weekly.Weekly(ctx, userID, start)
	if err != nil {
		return nil, err
	}

	earned, err := s.deps.Badges.GetUserBadgesBetween(ctx, userID, start, start.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	newBadges := make([]string, 0, len(earned))
	for _, ub := range earned {
		newBadges = append(newBadges, ub.Badge.Icon+" "+ub.Badge.Name)
	}

	prompt, err := renderTemplate(weeklyTemplate, BuildWeeklyPromptData(user.Username, style, summary, newBadges))
	if err != nil {
		return nil, err
	}

	content, err := s.generate(ctx, models.ReportTypeWeekly, style, prompt)
	if err != nil {
		return nil, err
	}

	report := &models.AIReport{
		UserID:     userID,
		ReportDate: start,
		ReportType: models.ReportTypeWeekly,
		Content:    content,
		Style:      style,
	}
	persistCtx := context.WithoutCancel(ctx)
	if err := s.deps.Reports.Create(persistCtx, report); err != nil {
		prommetrics.RecordReportGenerated(models.ReportTypeWeekly, style, "storage_error")
		return nil, err
	}
	s.deps.Cache.PutWeeklyReport(persistCtx, userID, start, content)

	prommetrics.RecordReportGenerated(models.ReportTypeWeekly, style, "success")
	s.log.Info().
		Uint("user_id", userID).
		Uint("report_id", report.ID).
		Str("week_start", start.Format(models.DateLayout)).
		Str("style", style).
		Msg("Weekly report generated")

	return &Result{
		ReportID: report.ID,
		Content:  content,
		Style:    style,
		Date:     start.Format(models.DateLayout),
	}, nil
}

// generate calls the text generator once. A caller without a deadline gets
// the configured generation timeout.
func (s *Service) generate(ctx context.Context, reportType, style, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		prommetrics.RecordReportGenerated(reportType, style, "cancelled")
		return "", err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	content, err := s.deps.Generator.Generate(ctx, systemPrompts[style], prompt, s.cfg.MaxTokens)
	prommetrics.ObserveReportGenerationDuration(reportType, time.Since(start).Seconds())

	switch {
	case err == nil:
		return content, nil
	case errors.Is(err, context.DeadlineExceeded):
		prommetrics.RecordReportGenerated(reportType, style, "timeout")
		s.log.Warn().Str("type", reportType).Dur("elapsed", time.Since(start)).Msg("Report generation timed out")
		return "", fmt.Errorf("%w: %w", apperr.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		prommetrics.RecordReportGenerated(reportType, style, "cancelled")
		return "", err
	default:
		prommetrics.RecordReportGenerated(reportType, style, "failed")
		s.log.Error().Err(err).Str("type", reportType).Msg("Report generation failed")
		return "", fmt.Errorf("%w: %w", apperr.ErrGenerationFailed, err)
	}
}

// GetDailyReport returns the latest report of a user's day, from cache
// when possible.
func (s *Service) GetDailyReport(ctx context.Context, userID uint, date time.Time) (*Result, error) {
	day := models.Day(date)
	if content, ok := s.deps.Cache.GetReport(ctx, userID, day); ok {
		return &Result{Content: content, Date: day.Format(models.DateLayout), Cached: true}, nil
	}

	report, err := s.deps.Reports.GetLatest(ctx, userID, day, models.ReportTypeDaily)
	if err != nil {
		return nil, err
	}
	s.deps.Cache.PutReport(ctx, userID, day, report.Content)

	return &Result{
		ReportID: report.ID,
		Content:  report.Content,
		Style:    report.Style,
		Date:     day.Format(models.DateLayout),
	}, nil
}

// ListReports returns one page of a user's reports of a type, newest
// first. page starts at 1 and size is capped at 50.
func (s *Service) ListReports(ctx context.Context, userID uint, reportType string, page, size int) (*Page, error) {
	switch reportType {
	case "":
		reportType = models.ReportTypeDaily
	case models.ReportTypeDaily, models.ReportTypeWeekly:
	default:
		return nil, fmt.Errorf("%w: unknown report type %q", apperr.ErrValidation, reportType)
	}
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}

	items, total, err := s.deps.Reports.List(ctx, userID, reportType, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.AIReport{}
	}
	return &Page{Items: items, Total: total, Page: page, Size: size}, nil
}

// UpdateFeedback sets the engagement flags of a user's report. Nil flags
// are left unchanged.
func (s *Service) UpdateFeedback(ctx context.Context, userID, reportID uint, liked, shared *bool) (*models.AIReport, error) {
	if liked == nil && shared == nil {
		return nil, fmt.Errorf("%w: no feedback given", apperr.ErrValidation)
	}

	report, err := s.deps.Reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, apperr.ErrNotFound
	}

	if err := s.deps.Reports.UpdateFlags(ctx, reportID, liked, shared); err != nil {
		return nil, err
	}
	if liked != nil {
		report.IsLiked = *liked
	}
	if shared != nil {
		report.IsShared = *shared
	}
	return report, nil
}
