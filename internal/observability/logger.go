package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns the global logger tagged with the owning component.
func Logger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
