package report

import (
	"math"
	"strings"

	"github.com/aimd54/lifescope-insights/internal/models"
	"github.com/aimd54/lifescope-insights/internal/service/badges"
	"github.com/aimd54/lifescope-insights/internal/service/stats"
)

const (
	unknownTopApp     = "unknown"
	defaultPeakHour   = 12
	noChallenge       = "No active challenge"
	noAchievements    = "No special achievements yet"
	noNewBadges       = "none"
	weekdayDateLayout = "Mon 2006-01-02"
)

// Percent returns part as a rounded percentage of total, or 0 when total
// is not positive.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// DailyPromptData is the context rendered into the daily prompt.
type DailyPromptData struct {
	Username        string
	Date            string
	Style           string
	TotalMins       int
	SocialMins      int
	SocialPct       int
	GameMins        int
	GamePct         int
	WorkMins        int
	WorkPct         int
	TopApp          string
	PeakHour        int
	Change          stats.Change
	ChallengeStatus string
	Achievements    string
}

// BuildDailyPromptData derives percentages and fallbacks from a day's metrics.
func BuildDailyPromptData(username, style string, m *models.DailyMetrics, change stats.Change, challenge string, achievements []badges.Achievement) DailyPromptData {
	data := DailyPromptData{
		Username:        username,
		Date:            m.MetricDate.Format(models.DateLayout),
		Style:           style,
		TotalMins:       m.TotalActiveMins,
		SocialMins:      m.SocialMins,
		SocialPct:       Percent(m.SocialMins, m.TotalActiveMins),
		GameMins:        m.GameMins,
		GamePct:         Percent(m.GameMins, m.TotalActiveMins),
		WorkMins:        m.WorkMins,
		WorkPct:         Percent(m.WorkMins, m.TotalActiveMins),
		TopApp:          m.TopApp,
		PeakHour:        defaultPeakHour,
		Change:          change,
		ChallengeStatus: challenge,
		Achievements:    FormatAchievements(achievements),
	}
	if data.TopApp == "" {
		data.TopApp = unknownTopApp
	}
	if m.PeakHour != nil {
		data.PeakHour = *m.PeakHour
	}
	if data.ChallengeStatus == "" {
		data.ChallengeStatus = noChallenge
	}
	return data
}

// FormatAchievements renders one achievement per line.
func FormatAchievements(achievements []badges.Achievement) string {
	if len(achievements) == 0 {
		return noAchievements
	}
	lines := make([]string, 0, len(achievements))
	for _, a := range achievements {
		lines = append(lines, a.Icon+" "+a.Name+": "+a.Description)
	}
	return strings.Join(lines, "\n")
}

// WeeklyPromptData is the context rendered into the weekly prompt.
type WeeklyPromptData struct {
	Username     string
	Style        string
	StartDate    string
	EndDate      string
	TotalMins    int
	AvgDailyMins float64
	ActiveDays   int
	SocialMins   int
	GameMins     int
	WorkMins     int
	TopApp       string
	PeakDay      string
	PeakDayMins  int
	LowDay       string
	LowDayMins   int
	Change       stats.Change
	NewBadges    string
}

// BuildWeeklyPromptData flattens a weekly summary for the prompt.
func BuildWeeklyPromptData(username, style string, w *stats.WeeklySummary, newBadges []string) WeeklyPromptData {
	data := WeeklyPromptData{
		Username:     username,
		Style:        style,
		StartDate:    w.WeekStart.Format(models.DateLayout),
		EndDate:      w.WeekEnd.Format(models.DateLayout),
		TotalMins:    w.TotalMins,
		AvgDailyMins: w.AvgMinsPerDay,
		ActiveDays:   w.ActiveDays,
		SocialMins:   w.SocialMins,
		GameMins:     w.GameMins,
		WorkMins:     w.WorkMins,
		TopApp:       w.TopApp,
		PeakDay:      w.PeakDay.Date.Format(weekdayDateLayout),
		PeakDayMins:  w.PeakDay.Mins,
		LowDay:       w.LowDay.Date.Format(weekdayDateLayout),
		LowDayMins:   w.LowDay.Mins,
		Change:       w.Change,
		NewBadges:    noNewBadges,
	}
	if data.TopApp == "" {
		data.TopApp = unknownTopApp
	}
	if len(newBadges) > 0 {
		data.NewBadges = strings.Join(newBadges, ", ")
	}
	return data
}
