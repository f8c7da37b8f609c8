package strategy

import (
	"errors"
	"fmt"

	"ballast/internal/types"
)

// ErrDuplicateStrategy is returned when a name is registered twice.
var ErrDuplicateStrategy = errors.New("duplicate strategy name")

// ErrUnknownStrategy is returned by lookups for unregistered names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// IndicatorUnavailableError aborts evaluation of one strategy when a
// condition references an indicator the snapshot does not carry. The rule
// fails closed instead of picking a default branch.
type IndicatorUnavailableError struct {
	Strategy string
	Ref      types.IndicatorRef
}

func (e *IndicatorUnavailableError) Error() string {
	return fmt.Sprintf("strategy %s: indicator %s unavailable", e.Strategy, e.Ref)
}

// IsIndicatorUnavailable reports whether err is an indicator availability
// failure.
func IsIndicatorUnavailable(err error) bool {
	var target *IndicatorUnavailableError
	return errors.As(err, &target)
}
