package analytics

import (
	"log"
	"strconv"
)

// ClickEvent is what the chart reports for a click. ActiveLabel is the x-axis
// label under the pointer, nil when the click missed every point.
type ClickEvent struct {
	ActiveLabel *string `json:"activeLabel"`
}

// HandleClick seeks to the clicked frame. Clicks without a usable frame label
// are ignored and only logged. It reports whether seek was called.
func HandleClick(ev ClickEvent, seek func(frame int)) bool {
	if ev.ActiveLabel == nil {
		log.Printf("chart click without active label, ignoring")
		return false
	}
	frame, err := strconv.Atoi(*ev.ActiveLabel)
	if err != nil || frame < 0 {
		log.Printf("chart click with unusable label %q, ignoring", *ev.ActiveLabel)
		return false
	}
	seek(frame)
	return true
}
