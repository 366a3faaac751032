package badges

import "github.com/aimd54/lifescope-insights/internal/models"

// AchievementInput is the slice of a day's metrics the achievement
// catalog looks at.
type AchievementInput struct {
	TotalMins  int
	SocialMins int
	GameMins   int
	WorkMins   int
	PeakHour   *int
}

// InputFromMetrics builds the achievement input of a stored day.
func InputFromMetrics(m *models.DailyMetrics) AchievementInput {
	return AchievementInput{
		TotalMins:  m.TotalActiveMins,
		SocialMins: m.SocialMins,
		GameMins:   m.GameMins,
		WorkMins:   m.WorkMins,
		PeakHour:   m.PeakHour,
	}
}

// Achievement is a light-weight, non-persisted accolade shown in reports.
type Achievement struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// defaultPeakHour stands in for a day without a recorded peak hour.
const defaultPeakHour = 12

type achievementRule struct {
	Achievement
	match func(in AchievementInput, peak int) bool
}

var achievementCatalog = []achievementRule{
	{
		Achievement: Achievement{"Digital Minimalist", "🧘", "Did not touch the phone all day. A true digital detox master!"},
		match:       func(in AchievementInput, _ int) bool { return in.TotalMins == 0 },
	},
	{
		Achievement: Achievement{"Early Bird", "🌅", "Active before dawn. The early-rising champion!"},
		match:       func(_ AchievementInput, peak int) bool { return peak < 7 },
	},
	{
		Achievement: Achievement{"Night Owl", "🌙", "Still active late at night. What a nightlife!"},
		match:       func(_ AchievementInput, peak int) bool { return peak >= 23 },
	},
	{
		Achievement: Achievement{"Social Emperor", "👑", "Over 4 hours of socialising. Ruler of the friend feed!"},
		match:       func(in AchievementInput, _ int) bool { return in.SocialMins > 240 },
	},
	{
		Achievement: Achievement{"Social Expert", "👥", "More than 3 hours of socialising. Quite the network!"},
		match:       func(in AchievementInput, _ int) bool { return in.SocialMins > 180 },
	},
	{
		Achievement: Achievement{"Social Newbie", "👋", "Moderate socialising keeps relationships healthy."},
		match:       func(in AchievementInput, _ int) bool { return in.SocialMins > 60 && in.SocialMins <= 120 },
	},
	{
		Achievement: Achievement{"Work Demon", "💼", "Over 8 hours of work. Office elite!"},
		match:       func(in AchievementInput, _ int) bool { return in.WorkMins > 480 },
	},
	{
		Achievement: Achievement{"Workaholic", "⚡", "Over 6 hours of work. Admirable dedication!"},
		match:       func(in AchievementInput, _ int) bool { return in.WorkMins > 360 },
	},
	{
		Achievement: Achievement{"Scholar Mode", "📚", "Over 4 hours of study. A thirst for knowledge!"},
		match:       func(in AchievementInput, _ int) bool { return in.WorkMins > 240 },
	},
	{
		Achievement: Achievement{"Focus Master", "🎯", "3 to 5 hours of focused work. Off-the-charts efficiency!"},
		match:       func(in AchievementInput, _ int) bool { return in.WorkMins > 180 && in.WorkMins <= 300 },
	},
	{
		Achievement: Achievement{"Game King", "🏆", "Over 4 hours of gaming. Future e-sports star!"},
		match:       func(in AchievementInput, _ int) bool { return in.GameMins > 240 },
	},
	{
		Achievement: Achievement{"Entertainment Master", "🎮", "Over 2 hours of fun. Life in full colour!"},
		match:       func(in AchievementInput, _ int) bool { return in.GameMins > 120 },
	},
	{
		Achievement: Achievement{"Casual Player", "😊", "Just the right amount of play."},
		match:       func(in AchievementInput, _ int) bool { return in.GameMins > 30 && in.GameMins <= 90 },
	},
	{
		Achievement: Achievement{"Balanced Life", "⚖️", "Work, friends and play in perfect balance."},
		match: func(in AchievementInput, _ int) bool {
			return in.WorkMins > 120 && in.GameMins < 120 && in.SocialMins > 60
		},
	},
	{
		Achievement: Achievement{"Efficiency King", "🚀", "Worked hard without living on the phone."},
		match:       func(in AchievementInput, _ int) bool { return in.WorkMins > 240 && in.TotalMins < 480 },
	},
	{
		Achievement: Achievement{"Healthy Routine", "💚", "Reasonable screen time on a regular schedule."},
		match: func(in AchievementInput, peak int) bool {
			return in.TotalMins < 180 && peak >= 7 && peak <= 22
		},
	},
}

// EvaluateAchievements returns every achievement that in satisfies, in catalog order.
func EvaluateAchievements(in AchievementInput) []Achievement {
	peak := defaultPeakHour
	if in.PeakHour != nil {
		peak = *in.PeakHour
	}

	var out []Achievement
	for _, rule := range achievementCatalog {
		if rule.match(in, peak) {
			out = append(out, rule.Achievement)
		}
	}
	return out
}
