// Package ingest validates raw usage events and folds them into the daily ledger.
package ingest

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/spf13/cast"

	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// Usage bounds in minutes, inclusive.
const (
	MinUsageMins = 1
	MaxUsageMins = 1440
)

// Rejection reasons.
const (
	ReasonMissingField    = "missing_field"
	ReasonInvalidUserID   = "invalid_user_id"
	ReasonEmptyAppName    = "empty_app_name"
	ReasonInvalidUsage    = "invalid_usage"
	ReasonUsageOutOfRange = "usage_out_of_range"
	ReasonInvalidDate     = "invalid_date"
	ReasonFutureDate      = "future_date"
	outcomeAccepted       = "accepted"
	outcomeRejected       = "rejected"
	outcomeFailed         = "failed"
)

var requiredFields = []string{"user_id", "record_date", "app_name", "usage_mins"}

// Outcome is the result of ingesting one event. A rejected event is an
// expected result, not an error. Entry is the stored ledger row, so its
// UsageMins is the running total for the key.
type Outcome struct {
	Accepted bool                `json:"accepted"`
	Reason   string              `json:"reason,omitempty"`
	Entry    *models.LedgerEntry `json:"entry,omitempty"`
}

func rejected(reason string) Outcome {
	return Outcome{Reason: reason}
}

// LedgerRepository is the durable ledger used by the accumulator.
// Accumulate leaves the stored row in entry.
type LedgerRepository interface {
	Accumulate(ctx context.Context, entry *models.LedgerEntry) error
	SumByApp(ctx context.Context, userID uint, date time.Time) ([]models.AppUsage, error)
}

// LedgerCache receives the refreshed day ledger after every write.
type LedgerCache interface {
	PutLedger(ctx context.Context, userID uint, date time.Time, entries []models.AppUsage)
	DropLedger(ctx context.Context, userID uint, date time.Time)
}

// Accumulator validates events and adds them to the ledger.
type Accumulator struct {
	repo  LedgerRepository
	cache LedgerCache
	clock quartz.Clock
	loc   *time.Location
	log   *logger.Logger
}

// NewAccumulator creates an accumulator. loc decides which calendar day is
// "today" when rejecting events dated in the future.
func NewAccumulator(repo LedgerRepository, cache LedgerCache, clock quartz.Clock, loc *time.Location, log *logger.Logger) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{
		repo:  repo,
		cache: cache,
		clock: clock,
		loc:   loc,
		log:   log,
	}
}

// Ingest validates payload and, if it is well formed, adds its minutes to
// the ledger entry for (user, date, app). The returned error is non-nil
// only for storage failures.
func (a *Accumulator) Ingest(ctx context.Context, payload map[string]interface{}) (Outcome, error) {
	entry, reason := a.parse(payload)
	if reason != "" {
		prommetrics.RecordIngestEvent(outcomeRejected)
		prommetrics.RecordIngestRejection(reason)
		a.log.Debug().
			Str("reason", reason).
			Interface("payload", payload).
			Msg("Usage event rejected")
		return rejected(reason), nil
	}

	added := entry.UsageMins
	if err := a.repo.Accumulate(ctx, entry); err != nil {
		prommetrics.RecordIngestEvent(outcomeFailed)
		return Outcome{}, err
	}
	prommetrics.RecordIngestEvent(outcomeAccepted)

	a.refreshCache(ctx, entry.UserID, entry.RecordDate)

	a.log.Debug().
		Uint("user_id", entry.UserID).
		Str("date", entry.RecordDate.Format(models.DateLayout)).
		Str("app", entry.AppName).
		Int("added_mins", added).
		Int("total_mins", entry.UsageMins).
		Msg("Usage event accumulated")

	return Outcome{Accepted: true, Entry: entry}, nil
}

// refreshCache pushes the whole current day into the cache. The ledger write
// has already committed, so failures here are only logged, and the cached
// day is dropped rather than left behind the durable one.
func (a *Accumulator) refreshCache(ctx context.Context, userID uint, date time.Time) {
	if a.cache == nil {
		return
	}
	rows, err := a.repo.SumByApp(ctx, userID, date)
	if err != nil {
		a.log.Warn().
			Err(err).
			Uint("user_id", userID).
			Msg("Failed to reload day ledger for cache")
		a.cache.DropLedger(ctx, userID, date)
		return
	}
	a.cache.PutLedger(ctx, userID, date, rows)
}

func (a *Accumulator) parse(payload map[string]interface{}) (*models.LedgerEntry, string) {
	for _, field := range requiredFields {
		if v, ok := payload[field]; !ok || v == nil {
			return nil, ReasonMissingField
		}
	}

	userID, ok := toInt(payload["user_id"])
	if !ok || userID <= 0 || userID > math.MaxUint32 {
		return nil, ReasonInvalidUserID
	}

	appName, err := cast.ToStringE(payload["app_name"])
	appName = strings.TrimSpace(appName)
	if err != nil || appName == "" {
		return nil, ReasonEmptyAppName
	}

	mins, ok := toInt(payload["usage_mins"])
	if !ok {
		return nil, ReasonInvalidUsage
	}
	if mins < MinUsageMins || mins > MaxUsageMins {
		return nil, ReasonUsageOutOfRange
	}

	date, ok := toDate(payload["record_date"])
	if !ok {
		return nil, ReasonInvalidDate
	}
	if date.After(models.Day(a.clock.Now().In(a.loc))) {
		return nil, ReasonFutureDate
	}

	category := models.CategoryOther
	if raw, present := payload["category"]; present && raw != nil {
		category = models.NormalizeCategory(cast.ToString(raw))
	}

	return &models.LedgerEntry{
		UserID:     uint(userID),
		RecordDate: date,
		AppName:    appName,
		Category:   category,
		UsageMins:  int(mins),
	}, ""
}

// toInt accepts integral numbers in any of the shapes a decoder may produce.
func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case bool:
		return 0, false
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt(f)
	case string:
		// Decimal only: "010" is ten, never octal.
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}

	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func toDate(v interface{}) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return models.Day(t), true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
