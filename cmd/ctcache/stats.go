package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// statRows is the fixed print order. The local backend produces only a
// subset of these fields; the HTTP server adds the rest. A field that is
// missing or unreadable prints as N/A rather than failing the whole report.
var statRows = []struct {
	label  string
	key    string
	format func(any) (string, bool)
}{
	{"Hit count", "hit_count", formatCount},
	{"Miss count", "miss_count", formatCount},
	{"Hit rate", "hit_rate", formatRate},
	{"Miss rate", "miss_rate", formatRate},
	{"Total hit rate", "total_hit_rate", formatRate},
	{"Cached count", "cached_count", formatCount},
	{"Cleaned count", "cleaned_count", formatCount},
	{"Cleaned", "cleaned_seconds_ago", formatAgo},
	{"Saved", "saved_seconds_ago", formatAgo},
	{"Saved size", "saved_size_bytes", formatSize},
	{"Uptime", "uptime_seconds", formatSeconds},
}

func printStats(w io.Writer, stats map[string]any) {
	for _, row := range statRows {
		text := "N/A"
		if value, ok := stats[row.key]; ok {
			if formatted, ok := row.format(value); ok {
				text = formatted
			}
		}
		fmt.Fprintf(w, "%-16s %s\n", row.label+":", text)
	}
	printHistogram(w, "Age histogram (days)", stats["age_days_histogram"])
	printHistogram(w, "Hit count histogram", stats["hit_count_histogram"])
}

func printHistogram(w io.Writer, label string, value any) {
	hist, ok := value.(map[string]any)
	if !ok || len(hist) == 0 {
		return
	}
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", label)
	for _, k := range keys {
		count := "N/A"
		if n, ok := asFloat(hist[k]); ok {
			count = fmt.Sprintf("%.0f", n)
		}
		fmt.Fprintf(w, "  %6s: %s\n", k, count)
	}
}

func formatCount(v any) (string, bool) {
	n, ok := asFloat(v)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%.0f", n), true
}

func formatRate(v any) (string, bool) {
	n, ok := asFloat(v)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%.1f %%", n*100), true
}

func formatAgo(v any) (string, bool) {
	n, ok := asFloat(v)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s ago", time.Duration(n*float64(time.Second)).Round(time.Second)), true
}

func formatSeconds(v any) (string, bool) {
	n, ok := asFloat(v)
	if !ok {
		return "", false
	}
	return time.Duration(n * float64(time.Second)).Round(time.Second).String(), true
}

func formatSize(v any) (string, bool) {
	n, ok := asFloat(v)
	if !ok {
		return "", false
	}
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", n/(1<<30)), true
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", n/(1<<20)), true
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", n/(1<<10)), true
	default:
		return fmt.Sprintf("%.0f B", n), true
	}
}

// asFloat accepts the numeric shapes a stats object can carry: Go ints from
// the local backend, float64 and json.Number from decoded server responses.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
