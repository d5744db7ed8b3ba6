package classifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/infergate/intent-router/internal/domain"
)

func TestSummarizeEvents(t *testing.T) {
	events := []domain.BrowsingEvent{
		{EventType: "page_view", URL: "https://shop.example.com/products/widget"},
		{EventType: "scroll", Properties: map[string]any{"scroll_depth": 80.0}},
		{EventType: "dwell", Properties: map[string]any{"time_on_page": 45.0}},
		{EventType: "click"},
	}

	got := SummarizeEvents(events)
	want := "page_view on shop.example.com | scroll scrolled 80% | dwell for 45s | click"
	if got != want {
		t.Errorf("SummarizeEvents = %q, want %q", got, want)
	}
}

func TestSummarizeEvents_WindowKeepsTrailingEvents(t *testing.T) {
	var events []domain.BrowsingEvent
	for i := 0; i < summaryWindow+5; i++ {
		events = append(events, domain.BrowsingEvent{EventType: fmt.Sprintf("event_%d", i)})
	}

	got := SummarizeEvents(events)
	if strings.Contains(got, "event_0 ") || strings.HasPrefix(got, "event_0") {
		t.Errorf("summary should drop events outside the trailing window: %q", got)
	}
	if !strings.Contains(got, fmt.Sprintf("event_%d", summaryWindow+4)) {
		t.Errorf("summary should keep the newest event: %q", got)
	}
	if n := strings.Count(got, " | ") + 1; n != summaryWindow {
		t.Errorf("summary has %d entries, want %d", n, summaryWindow)
	}
}

func TestSummarizeEvents_IgnoresNonNumericProperties(t *testing.T) {
	events := []domain.BrowsingEvent{
		{EventType: "scroll", Properties: map[string]any{"scroll_depth": "deep"}},
	}
	if got := SummarizeEvents(events); got != "scroll" {
		t.Errorf("SummarizeEvents = %q, want %q", got, "scroll")
	}
}

func TestSummarizeEvents_Empty(t *testing.T) {
	if got := SummarizeEvents(nil); got != "" {
		t.Errorf("SummarizeEvents(nil) = %q, want empty", got)
	}
}
