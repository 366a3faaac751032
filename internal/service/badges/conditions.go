package badges

import (
	"sort"
	"sync"

	"github.com/aimd54/lifescope-insights/internal/models"
)

// Condition kinds understood by DefaultRegistry.
const (
	KindDailyOver             = "daily_over"
	KindDailyUnder            = "daily_under"
	KindDailySocial           = "daily_social"
	KindDailyGame             = "daily_game"
	KindDailyWork             = "daily_work"
	KindDailyBrowser          = "daily_browser"
	KindDailyTopCategoryShare = "daily_top_category_share"
)

// Condition reports whether a day's metrics satisfy a badge. metric is the
// badge's condition metric and may be ignored by kinds bound to one field.
type Condition func(m *models.DailyMetrics, metric string, threshold float64) bool

// Registry maps condition kinds to their predicate. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]Condition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conditions: make(map[string]Condition)}
}

// Register adds or replaces the condition for kind.
func (r *Registry) Register(kind string, c Condition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[kind] = c
}

// Lookup returns the condition registered for kind.
func (r *Registry) Lookup(kind string) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conditions[kind]
	return c, ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.conditions))
	for k := range r.conditions {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultRegistry returns a registry with the built-in daily conditions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindDailyOver, dailyOver)
	r.Register(KindDailyUnder, dailyUnder)
	r.Register(KindDailySocial, bucketOver(models.CategorySocial))
	r.Register(KindDailyGame, bucketOver(models.CategoryGame))
	r.Register(KindDailyWork, bucketOver(models.CategoryWork))
	r.Register(KindDailyBrowser, bucketOver(models.CategoryBrowser))
	r.Register(KindDailyTopCategoryShare, topCategoryShare)
	return r
}

func dailyOver(m *models.DailyMetrics, metric string, threshold float64) bool {
	v, ok := m.Metric(metric)
	return ok && v > threshold
}

// dailyUnder needs some usage: an empty day is not "under" anything.
func dailyUnder(m *models.DailyMetrics, metric string, threshold float64) bool {
	v, ok := m.Metric(metric)
	return ok && v > 0 && v < threshold
}

func bucketOver(category string) Condition {
	return func(m *models.DailyMetrics, _ string, threshold float64) bool {
		return float64(m.CategoryMins(category)) > threshold
	}
}

// topCategoryShare is the largest category bucket's share of the day, in
// percent.
func topCategoryShare(m *models.DailyMetrics, _ string, threshold float64) bool {
	if m.TotalActiveMins <= 0 {
		return false
	}
	largest := 0
	for _, c := range []string{
		models.CategorySocial, models.CategoryGame, models.CategoryWork,
		models.CategoryBrowser, models.CategoryOther,
	} {
		if v := m.CategoryMins(c); v > largest {
			largest = v
		}
	}
	return float64(largest)/float64(m.TotalActiveMins)*100 > threshold
}
