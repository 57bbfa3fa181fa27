package patient

import "errors"

// ErrUnknownPatient is returned when an operation references a patient ID
// that does not exist.
var ErrUnknownPatient = errors.New("unknown patient")
