package vendors

import (
	"fmt"
	"strings"
	"time"
)

// monthNames are the upper-case literals the Google Ads API expects.
var monthNames = [12]string{
	"JANUARY", "FEBRUARY", "MARCH", "APRIL", "MAY", "JUNE",
	"JULY", "AUGUST", "SEPTEMBER", "OCTOBER", "NOVEMBER", "DECEMBER",
}

// BillingMonth is a resolved target month for a download run.
type BillingMonth struct {
	Year  int
	Month time.Month
}

// ResolveTargetMonth parses an explicit "YYYY-MM" value, or returns the
// previous calendar month when the value is empty.
func ResolveTargetMonth(value string, now time.Time) (BillingMonth, error) {
	if value == "" {
		prev := now.AddDate(0, -1, -now.Day()+1)
		return BillingMonth{Year: prev.Year(), Month: prev.Month()}, nil
	}

	t, err := time.Parse("2006-01", strings.TrimSpace(value))
	if err != nil {
		return BillingMonth{}, fmt.Errorf("invalid target month '%s', expected YYYY-MM: %w", value, err)
	}
	return BillingMonth{Year: t.Year(), Month: t.Month()}, nil
}

// String returns the canonical YYYY-MM form.
func (m BillingMonth) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// APIName returns the upper-case month literal used by the Google Ads API.
func (m BillingMonth) APIName() string {
	return monthNames[int(m.Month)-1]
}

// JapaneseLabel returns the "YYYY年M月" form used by Japanese vendor UIs.
func (m BillingMonth) JapaneseLabel() string {
	return fmt.Sprintf("%d年%d月", m.Year, int(m.Month))
}
