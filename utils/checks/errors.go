package checks

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Checks has its own package, to prevent dependency cycles

// Assert panics when cond is false. It guards against caller misuse, not bad input.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Error().Stack().Str("assertion", msg).Msg("assertion failed")
	panic("assertion failed: " + msg)
}
