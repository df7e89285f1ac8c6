package aggregate

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/tenantcore/internal/platform/errors"
)

// Invalid returns a validation error; no state was mutated.
func Invalid(format string, args ...any) error {
	return apperrors.New(apperrors.CodeValidation, fmt.Sprintf(format, args...))
}

// InvalidTransition names the current state and the states the command
// accepts.
func InvalidTransition(aggregate, action, current string, expected ...string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidStateTransition,
		fmt.Sprintf("cannot %s %s in state %s (expected %s)", action, aggregate, current, strings.Join(expected, " or ")),
		map[string]string{
			"aggregate": aggregate,
			"action":    action,
			"current":   current,
			"expected":  strings.Join(expected, ","),
		},
	)
}
