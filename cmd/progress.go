package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/example/resy-sniper/internal/sniper"
)

// render writes one progress line for ev.
func render(w io.Writer, ev sniper.Event) {
	at := ev.At.Format("15:04:05.000")
	switch ev.Kind {
	case sniper.EventWaiting:
		fmt.Fprintf(w, "%s waiting  release in %s\n", at, ev.ETA.Round(time.Millisecond))
	case sniper.EventFiring:
		fmt.Fprintf(w, "%s firing   burst %d\n", at, ev.Burst)
	case sniper.EventRisk:
		fmt.Fprintf(w, "%s risk     %s: %s\n", at, ev.Risk, ev.Detail)
	case sniper.EventWon:
		fmt.Fprintf(w, "%s WON      %s\n", at, ev.Detail)
	case sniper.EventLost:
		fmt.Fprintf(w, "%s lost     %s\n", at, ev.Detail)
	default:
		if ev.Detail != "" {
			fmt.Fprintf(w, "%s %-8s %s\n", at, ev.Kind, ev.Detail)
			return
		}
		fmt.Fprintf(w, "%s %s\n", at, ev.Kind)
	}
}
