package settings

import "errors"

// Sentinel errors for settings operations.
var (
	// ErrUnknownType is returned when an inverter type is not configured.
	ErrUnknownType = errors.New("settings: inverter type not found")

	// ErrTypeExists is returned when adding an inverter type that is already configured.
	ErrTypeExists = errors.New("settings: inverter type already exists")

	// ErrInvalidType is returned for an empty inverter type name.
	ErrInvalidType = errors.New("settings: inverter type name is required")

	// ErrNotFound is returned by a Repository for a document that was never saved.
	ErrNotFound = errors.New("settings: document not found")
)
