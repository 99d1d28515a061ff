package alarms

import "errors"

// ErrNotFound indicates a missing action or alert.
var ErrNotFound = errors.New("alarms: not found")

// ErrUnknownFaultType is returned for a fault type no rule produces.
var ErrUnknownFaultType = errors.New("alarms: unknown fault type")
