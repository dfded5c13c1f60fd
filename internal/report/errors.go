package report

import (
	"fmt"
	"strings"
)

// ApplicationFailedError is returned after a full materialize pass when at
// least one patch could not be applied.
type ApplicationFailedError struct {
	Failed int
	Total  int
}

func (e *ApplicationFailedError) Error() string {
	return fmt.Sprintf("%d out of %d patches failed to apply.", e.Failed, e.Total)
}

// VerificationFailedError is returned by regenerate when a freshly generated
// diff does not reproduce the working file.
type VerificationFailedError struct {
	Targets []string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("generated patches do not reproduce %d working file(s): %s", len(e.Targets), strings.Join(e.Targets, ", "))
}
