// time.go - Menschlich lesbare Zeit-Formatierung
// Hauptfunktionen: HumanDuration
package format

import (
	"fmt"
	"time"
)

// HumanDuration formatiert eine Dauer grob (Sekunden, Minuten, Stunden)
func HumanDuration(d time.Duration) string {
	seconds := int(d.Seconds())

	switch {
	case seconds < 1:
		return "less than a second"
	case seconds == 1:
		return "1 second"
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 120:
		return "1 minute"
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	case seconds < 7200:
		return "1 hour"
	default:
		return fmt.Sprintf("%d hours", seconds/3600)
	}
}
