package composer

import (
	"fmt"
	"strings"
)

// RenderStatus returns the completion line shown after a batch.
func RenderStatus(r SendResult) string {
	return fmt.Sprintf("%d out of %d emails sent successfully!", r.Current, r.Total)
}

// ProgressBar renders r as a bar of the given width, e.g. "[#####-----] 50%".
func ProgressBar(r SendResult, width int) string {
	if width <= 0 {
		width = 20
	}
	pct := 0
	filled := 0
	if r.Total > 0 {
		current := min(max(r.Current, 0), r.Total)
		pct = current * 100 / r.Total
		filled = current * width / r.Total
	}
	return fmt.Sprintf("[%s%s] %d%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		pct,
	)
}
