package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/gamma-exposure/internal/refresh"
)

const maxListedErrors = 3

// notification is one ntfy message.
type notification struct {
	title    string
	body     string
	tags     string
	priority string
}

func successNotification(result *refresh.BatchResult, label string, duration time.Duration) notification {
	return notification{
		title: fmt.Sprintf("GEX %s refresh: %d/%d tickers", label, result.Success, result.Total),
		body:  FormatSuccessMessage(result, duration),
		tags:  "white_check_mark",
	}
}

func failureNotification(result *refresh.BatchResult, label string, duration time.Duration, err error) notification {
	return notification{
		title:    fmt.Sprintf("GEX %s refresh failed: %d/%d tickers", label, result.Success, result.Total),
		body:     FormatFailureMessage(result, duration, err),
		tags:     "x",
		priority: "high",
	}
}

// tickersByStatus groups the batch's tickers by outcome, each list sorted.
func tickersByStatus(result *refresh.BatchResult) (ok, notFound, failed []string) {
	for _, r := range result.Results {
		switch {
		case r.Success:
			ok = append(ok, r.Task.Ticker)
		case r.NotFound:
			notFound = append(notFound, r.Task.Ticker)
		default:
			failed = append(failed, r.Task.Ticker)
		}
	}
	sort.Strings(ok)
	sort.Strings(notFound)
	sort.Strings(failed)
	return ok, notFound, failed
}

func writeTickers(sb *strings.Builder, label string, tickers []string) {
	if len(tickers) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s (%d): %s\n", label, len(tickers), strings.Join(tickers, ", "))
}

// FormatSuccessMessage lists the refreshed tickers and the run duration.
func FormatSuccessMessage(result *refresh.BatchResult, duration time.Duration) string {
	var sb strings.Builder

	ok, notFound, _ := tickersByStatus(result)
	writeTickers(&sb, "Refreshed", ok)
	writeTickers(&sb, "No upstream data", notFound)
	fmt.Fprintf(&sb, "Duration: %s", duration.Round(time.Second))

	return sb.String()
}

// FormatFailureMessage names the failed tickers and the first few upstream errors.
func FormatFailureMessage(result *refresh.BatchResult, duration time.Duration, err error) string {
	var sb strings.Builder

	ok, notFound, failed := tickersByStatus(result)
	writeTickers(&sb, "Failed", failed)
	writeTickers(&sb, "No upstream data", notFound)
	writeTickers(&sb, "Refreshed", ok)
	fmt.Fprintf(&sb, "Duration: %s", duration.Round(time.Second))

	if err != nil {
		fmt.Fprintf(&sb, "\n\nError: %v", err)
	}

	if len(result.Errors) > 0 {
		sb.WriteString("\n\nErrors:\n")
		for _, e := range result.Errors[:min(maxListedErrors, len(result.Errors))] {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
		if len(result.Errors) > maxListedErrors {
			fmt.Fprintf(&sb, "... and %d more errors", len(result.Errors)-maxListedErrors)
		}
	}

	return sb.String()
}
