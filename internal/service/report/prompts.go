package report

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aimd54/lifescope-insights/internal/apperr"
)

// Report styles.
const (
	StyleFunny       = "funny"
	StyleSarcastic   = "sarcastic"
	StyleEncouraging = "encouraging"
)

// ParseStyle normalises a requested style. Empty means fallback.
func ParseStyle(style, fallback string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(style))
	if s == "" {
		s = fallback
	}
	if s == "" {
		s = StyleFunny
	}
	if _, ok := systemPrompts[s]; !ok {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidStyle, style)
	}
	return s, nil
}

var systemPrompts = map[string]string{
	StyleFunny: `You are the LifeScope analysis assistant. You read people's phone usage data and explain it with humour.

Your voice:
- light and playful, teasing but never mean
- vivid exaggerated comparisons and emoji
- the occasional fun fact or life tip as an easter egg
- talks like a cheeky friend: direct but kind

Rules:
- keep the report between 100 and 150 words
- quote concrete numbers (minutes, percentages, rankings)
- no lecturing, keep it entertaining
- if the numbers look odd (for example 0 minutes), joke about it`,

	StyleSarcastic: `You are the LifeScope accountability coach. You call out procrastination and wasted time sharply and directly.

Your voice:
- sharp but accurate, like a strict coach
- irony and exaggeration to make the problem obvious
- no sugar-coating, but always a practical suggestion
- firm tone that pushes the user to change

Rules:
- keep the report between 100 and 150 words
- point at specific problems backed by the data
- you may set a challenge ("can you scroll 10 minutes less tomorrow?")
- criticise behaviour, never the person`,

	StyleEncouraging: `You are the LifeScope support assistant. You recognise people's progress in a warm, positive way.

Your voice:
- warm, supportive and patient
- quick to spot the positive signals in the data
- finds something worth praising even on a bad day
- a caring friend who builds confidence

Rules:
- keep the report between 100 and 150 words
- stay truthful to the data, no empty praise
- compare with the previous day ("X% more than yesterday")
- suggest one small next goal`,
}

var dailyTemplate = template.Must(template.New("daily").Parse(`Write today's behaviour report from the data below.

[Profile]
- User: {{.Username}}
- Date: {{.Date}}
- Style: {{.Style}}

[Data]
- Total active time: {{.TotalMins}} minutes
- Social apps: {{.SocialMins}} minutes ({{.SocialPct}}% of the day)
- Games: {{.GameMins}} minutes ({{.GamePct}}% of the day)
- Work and study: {{.WorkMins}} minutes ({{.WorkPct}}% of the day)
- Most used app: {{.TopApp}}
- Peak hour: {{.PeakHour}}:00

[Comparison]
- Total time versus yesterday: {{.Change}}

[Current challenge]
{{.ChallengeStatus}}

[Achievements]
{{.Achievements}}

Write a 100 to 150 word report that:
1. mentions at least two concrete numbers
2. matches the "{{.Style}}" style
3. rates the challenge progress if there is one
4. uses one or two emoji
5. congratulates any achievement by name
6. returns only the report text, with no "Report:" prefix
`))

var weeklyTemplate = template.Must(template.New("weekly").Parse(`Write a weekly behaviour report from the data below.

[Profile]
- User: {{.Username}}
- Period: {{.StartDate}} ~ {{.EndDate}}

[Week summary]
- Total active time: {{.TotalMins}} minutes ({{.AvgDailyMins}} minutes per active day over {{.ActiveDays}} days)
- Social apps: {{.SocialMins}} minutes
- Games: {{.GameMins}} minutes
- Work and study: {{.WorkMins}} minutes
- Most used app this week: {{.TopApp}}
- Busiest day: {{.PeakDay}} ({{.PeakDayMins}} minutes)
- Quietest day: {{.LowDay}} ({{.LowDayMins}} minutes)

[Versus last week]
- Total time change: {{.Change}}
- New badges: {{.NewBadges}}

Write a 200 to 300 word weekly report that:
1. gives an overall summary plus highlights and lowlights
2. matches the "{{.Style}}" style
3. praises any new badge by name
4. uses two or three emoji
5. suggests one small goal for next week
`))

func renderTemplate(t *template.Template, data interface{}) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
