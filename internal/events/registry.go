package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// sweep
	"sweep.planned":   {},
	"sweep.archived":  {},
	"sweep.started":   {},
	"sweep.completed": {},
	"sweep.degraded":  {},
	"sweep.failed":    {},
	"sweep.cancelled": {},

	// cell
	"cell.started":   {},
	"cell.completed": {},
	"cell.failed":    {},

	// manifest
	"manifest.written": {},

	// viewer
	"viewer.loaded":   {},
	"viewer.fallback": {},
	"viewer.released": {},

	// export
	"export.completed": {},

	// engine
	"engine.error": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
