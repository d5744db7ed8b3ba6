package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/infergate/intent-router/internal/domain"
)

// summaryWindow bounds how many trailing events go into the compact text
// summary sent to cheap backends.
const summaryWindow = 10

// SummarizeEvents renders the trailing events as one compact line per event,
// joined with " | ". It includes the event kind, the URL host when present,
// and the engagement properties the classifiers are trained on.
func SummarizeEvents(events []domain.BrowsingEvent) string {
	if len(events) > summaryWindow {
		events = events[len(events)-summaryWindow:]
	}

	parts := make([]string, 0, len(events))
	for _, event := range events {
		var b strings.Builder
		b.WriteString(event.EventType)

		if host := urlHost(event.URL); host != "" {
			b.WriteString(" on ")
			b.WriteString(host)
		}

		if depth, ok := floatProperty(event.Properties, "scroll_depth"); ok {
			fmt.Fprintf(&b, " scrolled %.0f%%", depth)
		}
		if seconds, ok := floatProperty(event.Properties, "time_on_page"); ok {
			fmt.Fprintf(&b, " for %.0fs", seconds)
		}

		parts = append(parts, b.String())
	}

	return strings.Join(parts, " | ")
}

func urlHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func floatProperty(props map[string]any, key string) (float64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
