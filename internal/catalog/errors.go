package catalog

import (
	"errors"
	"fmt"
)

// DuplicateRegistrationError is returned when a generator ID is registered
// twice in the same catalog. Registration is a startup-only phase, so this
// is fatal: the process should not start with an inconsistent catalog.
type DuplicateRegistrationError struct {
	ID string
}

// Error implements the error interface.
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("generator %q is already registered", e.ID)
}

// IsDuplicateRegistration reports whether err is a DuplicateRegistrationError.
// Uses errors.As to handle wrapped errors.
func IsDuplicateRegistration(err error) bool {
	var de *DuplicateRegistrationError
	return errors.As(err, &de)
}
