// Package dashboard shapes backend data into the panels of the admin
// dashboard. Builders are pure; Service ties them to the query cache.
package dashboard

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"whatsbot/internal/constants"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/format"
)

const (
	minBarHeightPx   = 4
	emptyBarHeightPx = 2
	promptPreviewLen = 80

	noChartData      = "No hay datos disponibles"
	noTopContacts    = "No hay contactos activos"
	noRecentActivity = "No hay actividad reciente"
	unnamedTop       = "Sin nombre"
	unnamedRecent    = "Usuario sin nombre"
	noActivity       = "Sin actividad"
)

// StatCard is one tile of the stats grid.
type StatCard struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Value  string `json:"value"`
	Detail string `json:"detail"`
}

// BuildStatsGrid returns the four headline cards: contacts, messages,
// response rate and average response time.
func BuildStatsGrid(a botapi.AnalyticsData) []StatCard {
	return []StatCard{
		{
			ID:     "contacts",
			Title:  "Total Contactos",
			Value:  format.FormatNumber(a.TotalContacts),
			Detail: strconv.Itoa(a.ActiveContacts) + " activos",
		},
		{
			ID:     "messages",
			Title:  "Mensajes Total",
			Value:  format.FormatNumber(a.TotalMessages),
			Detail: format.FormatNumber(a.AIResponses) + " de IA",
		},
		{
			ID:     "response_rate",
			Title:  "Tasa de Respuesta",
			Value:  format.FormatPercentage(a.ResponseRate),
			Detail: "IA respondiendo",
		},
		{
			ID:     "response_time",
			Title:  "Tiempo Promedio",
			Value:  strconv.FormatFloat(a.AvgResponseTime, 'f', -1, 64) + "s",
			Detail: "Respuesta rápida",
		},
	}
}

// ChartPoint is one bar of the activity chart. HeightPercent is relative to
// the busiest day; MinHeightPx keeps zero and tiny bars visible.
type ChartPoint struct {
	Date          string  `json:"date"`
	Label         string  `json:"label"`
	Count         int     `json:"count"`
	Tooltip       string  `json:"tooltip"`
	HeightPercent float64 `json:"height_percent"`
	MinHeightPx   int     `json:"min_height_px"`
}

// ActivityChart is the messages-per-day panel.
type ActivityChart struct {
	Points  []ChartPoint `json:"points"`
	Max     int          `json:"max"`
	Empty   bool         `json:"empty"`
	Message string       `json:"message,omitempty"`
	Caption string       `json:"caption"`
}

// BuildActivityChart keeps the last seven dates of daily, in ascending
// order, and scales each bar against the largest count.
func BuildActivityChart(daily map[string]int) ActivityChart {
	chart := ActivityChart{
		Points:  []ChartPoint{},
		Caption: "Mensajes por día (últimos 7 días)",
	}
	if len(daily) == 0 {
		chart.Empty = true
		chart.Message = noChartData
		return chart
	}

	days := botapi.AnalyticsData{DailyStats: daily}.SortedDays()
	if len(days) > constants.ActivityChartDays {
		days = days[len(days)-constants.ActivityChartDays:]
	}

	for _, day := range days {
		if daily[day] > chart.Max {
			chart.Max = daily[day]
		}
	}

	for _, day := range days {
		count := daily[day]
		point := ChartPoint{
			Date:        day,
			Label:       dayLabel(day),
			Count:       count,
			Tooltip:     strconv.Itoa(count) + " mensajes",
			MinHeightPx: emptyBarHeightPx,
		}
		if chart.Max > 0 {
			point.HeightPercent = float64(count) / float64(chart.Max) * 100
		}
		if count > 0 {
			point.MinHeightPx = minBarHeightPx
		}
		chart.Points = append(chart.Points, point)
	}
	return chart
}

func dayLabel(day string) string {
	t, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return day
	}
	return format.FormatDayLabel(t)
}

// TopContactRow is one entry of the most-active leaderboard.
type TopContactRow struct {
	Rank     string `json:"rank"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Messages string `json:"messages"`
}

// TopContactsPanel lists the most active contacts.
type TopContactsPanel struct {
	Rows    []TopContactRow `json:"rows"`
	Empty   bool            `json:"empty"`
	Message string          `json:"message,omitempty"`
}

// BuildTopContacts ranks the first five contacts in the order the backend
// sent them.
func BuildTopContacts(list []botapi.TopContact) TopContactsPanel {
	panel := TopContactsPanel{Rows: []TopContactRow{}}
	if len(list) == 0 {
		panel.Empty = true
		panel.Message = noTopContacts
		return panel
	}
	if len(list) > constants.TopContactsLimit {
		list = list[:constants.TopContactsLimit]
	}
	for i, c := range list {
		name := c.Name
		if name == "" {
			name = unnamedTop
		}
		panel.Rows = append(panel.Rows, TopContactRow{
			Rank:     "#" + strconv.Itoa(i+1),
			Name:     name,
			Phone:    format.FormatPhoneNumber(c.PhoneNumber),
			Messages: strconv.Itoa(c.MessageCount) + " mensajes",
		})
	}
	return panel
}

// RecentContactRow is one line of the recent activity feed.
type RecentContactRow struct {
	ID           string      `json:"id"`
	Initial      string      `json:"initial"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone"`
	Status       string      `json:"status"`
	StatusTone   format.Tone `json:"status_tone"`
	Messages     string      `json:"messages"`
	LastActivity string      `json:"last_activity"`
	AIEnabled    bool        `json:"ai_enabled"`
	AILabel      string      `json:"ai_label"`
}

// RecentContactsPanel is the recent activity feed.
type RecentContactsPanel struct {
	Rows    []RecentContactRow `json:"rows"`
	Empty   bool               `json:"empty"`
	Message string             `json:"message,omitempty"`
}

// BuildRecentContacts keeps contacts that have talked at least once, most
// recent first, and renders their last activity relative to now.
func BuildRecentContacts(list []botapi.Contact, now time.Time) RecentContactsPanel {
	panel := RecentContactsPanel{Rows: []RecentContactRow{}}
	f := format.Default()

	type dated struct {
		contact botapi.Contact
		at      time.Time
	}
	active := make([]dated, 0, len(list))
	for _, c := range list {
		if c.LastMessageAt == "" {
			continue
		}
		at, err := f.ParseTimestamp(c.LastMessageAt)
		if err != nil {
			continue
		}
		active = append(active, dated{contact: c, at: at})
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].at.After(active[j].at)
	})
	if len(active) > constants.RecentContactsLimit {
		active = active[:constants.RecentContactsLimit]
	}

	if len(active) == 0 {
		panel.Empty = true
		panel.Message = noRecentActivity
		return panel
	}

	for _, d := range active {
		row := ContactRow(d.contact, now)
		row.LastActivity = f.RelativeTimeAt(d.at, now)
		panel.Rows = append(panel.Rows, row)
	}
	return panel
}

// ContactRow renders one contact for list views.
func ContactRow(c botapi.Contact, now time.Time) RecentContactRow {
	name := c.Name
	initial := "U"
	if name == "" {
		name = unnamedRecent
	} else {
		r, _ := utf8.DecodeRuneInString(name)
		initial = string(unicode.ToUpper(r))
	}

	row := RecentContactRow{
		ID:           c.ID,
		Initial:      initial,
		Name:         name,
		Phone:        format.FormatPhoneNumber(c.PhoneNumber),
		Status:       string(c.Status),
		StatusTone:   format.StatusTone(string(c.Status)),
		Messages:     strconv.Itoa(c.MessageCount) + " mensajes",
		LastActivity: noActivity,
		AIEnabled:    c.AIEnabled,
		AILabel:      "IA pausada",
	}
	if c.AIEnabled {
		row.AILabel = "IA activa"
	}
	if c.LastMessageAt != "" {
		f := format.Default()
		if at, err := f.ParseTimestamp(c.LastMessageAt); err == nil {
			row.LastActivity = f.RelativeTimeAt(at, now)
		}
	}
	return row
}

// AIStatus summarizes the global AI configuration.
type AIStatus struct {
	Configured    bool        `json:"configured"`
	Enabled       bool        `json:"enabled"`
	StatusLabel   string      `json:"status_label"`
	StatusTone    format.Tone `json:"status_tone"`
	Temperature   string      `json:"temperature,omitempty"`
	MaxTokens     string      `json:"max_tokens,omitempty"`
	ResponseDelay string      `json:"response_delay,omitempty"`
	PromptPreview string      `json:"prompt_preview,omitempty"`
}

// BuildAIStatus renders cfg. A nil config means the backend has none yet.
func BuildAIStatus(cfg *botapi.AIConfig) AIStatus {
	if cfg == nil {
		return AIStatus{StatusLabel: "Sin configurar", StatusTone: format.ToneNeutral}
	}
	status := AIStatus{
		Configured:    true,
		Enabled:       cfg.Enabled,
		StatusLabel:   "Inactivo",
		StatusTone:    format.ToneWarning,
		Temperature:   format.FormatNumber(cfg.Temperature),
		MaxTokens:     format.FormatNumber(cfg.MaxTokens),
		ResponseDelay: strconv.Itoa(cfg.ResponseDelayMin) + "-" + strconv.Itoa(cfg.ResponseDelayMax) + "s",
		PromptPreview: format.TruncateText(strings.TrimSpace(cfg.SystemPrompt), promptPreviewLen),
	}
	if cfg.Enabled {
		status.StatusLabel = "Activo"
		status.StatusTone = format.ToneSuccess
	}
	return status
}

// CategoryCount is the number of training entries in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TrainingSummary aggregates the training library.
type TrainingSummary struct {
	Total      int             `json:"total"`
	Active     int             `json:"active"`
	TotalWords string          `json:"total_words"`
	Categories []CategoryCount `json:"categories"`
}

// BuildTrainingSummary counts entries, active entries and words, grouping
// by category. Categories are sorted by count, then name.
func BuildTrainingSummary(list []botapi.TrainingData) TrainingSummary {
	counts := make(map[string]int)
	words := 0
	summary := TrainingSummary{Total: len(list), Categories: []CategoryCount{}}
	for _, item := range list {
		if item.Active {
			summary.Active++
		}
		words += item.WordCount
		category := item.Category
		if category == "" {
			category = botapi.DefaultCategory
		}
		counts[category]++
	}
	summary.TotalWords = format.FormatNumber(words)

	for category, n := range counts {
		summary.Categories = append(summary.Categories, CategoryCount{Category: category, Count: n})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		a, b := summary.Categories[i], summary.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return summary
}
