package monitor

import "errors"

var (
	// ErrRuleNotFound is returned when a rule is not found in the registry
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAlertNotFound is returned when acknowledge targets an alert that
	// does not exist or is no longer open
	ErrAlertNotFound = errors.New("alert not found or not open")

	// ErrAlreadyRunning is logged when Start is called on a running engine
	ErrAlreadyRunning = errors.New("engine already running")
)
