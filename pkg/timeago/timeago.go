// Package timeago formats elapsed time the way the board frontend shows it.
package timeago

import (
	"fmt"
	"time"
)

// Since formats the time elapsed between t and now, using whole seconds
// under a minute, minutes under an hour, hours under a day and days after
// that. Times in the future count as zero seconds.
func Since(now time.Time, t time.Time) string {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case elapsed < time.Minute:
		return unit(int64(elapsed/time.Second), "second")
	case elapsed < time.Hour:
		return unit(int64(elapsed/time.Minute), "minute")
	case elapsed < 24*time.Hour:
		return unit(int64(elapsed/time.Hour), "hour")
	default:
		return unit(int64(elapsed/(24*time.Hour)), "day")
	}
}

func unit(n int64, name string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", name)
	}
	return fmt.Sprintf("%d %ss ago", n, name)
}
