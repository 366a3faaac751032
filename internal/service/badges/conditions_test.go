package badges

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aimd54/lifescope-insights/internal/models"
)

func TestDefaultRegistry_Conditions(t *testing.T) {
	m := &models.DailyMetrics{
		TotalActiveMins: 400,
		SocialMins:      250,
		GameMins:        30,
		WorkMins:        100,
		BrowserMins:     20,
		TopApp:          "Chat",
	}
	r := DefaultRegistry()

	tests := []struct {
		kind      string
		metric    string
		threshold float64
		want      bool
	}{
		{KindDailyOver, "social_mins", 240, true},
		{KindDailyOver, "social_mins", 250, false},
		{KindDailyOver, "", 399, true},
		{KindDailyOver, "total_active_mins", 400, false},
		{KindDailyUnder, "game_mins", 60, true},
		{KindDailyUnder, "game_mins", 30, false},
		{KindDailyUnder, "other_mins", 60, false},
		{KindDailySocial, "", 240, true},
		{KindDailyGame, "", 30, false},
		{KindDailyWork, "", 99, true},
		{KindDailyBrowser, "", 20, false},
		{KindDailyTopCategoryShare, "", 60, true},
		{KindDailyTopCategoryShare, "", 70, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.metric, func(t *testing.T) {
			c, ok := r.Lookup(tt.kind)
			assert.True(t, ok)
			assert.Equal(t, tt.want, c(m, tt.metric, tt.threshold))
		})
	}
}

func TestDailyOver_UnknownMetricNeverHolds(t *testing.T) {
	m := &models.DailyMetrics{TotalActiveMins: 1000}
	assert.False(t, dailyOver(m, "steps", 0))
	assert.False(t, dailyUnder(m, "steps", 5000))
}

func TestTopCategoryShare(t *testing.T) {
	assert.False(t, topCategoryShare(&models.DailyMetrics{}, "", 0))

	// Two apps in one bucket: no single app passes 50%, the category does.
	m := &models.DailyMetrics{TotalActiveMins: 100, WorkMins: 90, SocialMins: 10, TopApp: "IDE"}
	assert.True(t, topCategoryShare(m, "", 80))
	assert.False(t, topCategoryShare(m, "", 90))
}

func TestRegistry_RegisterCustom(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("weekend")
	assert.False(t, ok)

	r.Register("weekend", func(m *models.DailyMetrics, _ string, _ float64) bool {
		return m.MetricDate.Weekday() == 6
	})
	_, ok = r.Lookup("weekend")
	assert.True(t, ok)
	assert.Equal(t, []string{"weekend"}, r.Kinds())
}
