package main

import (
	"fmt"
	"io"
	"time"

	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/types"
)

// progressPrinter writes one line per finished page.
func progressPrinter(w io.Writer, quiet bool) hybrid.Callbacks {
	if quiet {
		return hybrid.Callbacks{}
	}
	return hybrid.Callbacks{
		OnProgress: func(ev types.ProgressEvent) {
			fmt.Fprintf(w, "[%d/%d] %-7s elapsed %s  eta %s\n",
				ev.CurrentPage, ev.TotalPages, ev.Mode, formatDuration(ev.Elapsed), formatDuration(ev.ETA))
		},
		OnPage: func(res types.PageResult, _, _ string) {
			if res.Error != "" {
				fmt.Fprintf(w, "  page %d: %s\n", res.PageNumber, res.Error)
			}
		},
	}
}

// formatDuration renders d as m:ss, or h:mm:ss past an hour.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	h, m := s/3600, (s%3600)/60
	s %= 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
