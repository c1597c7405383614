package procession

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("procession: no store configured")
	ErrStoreClosed     = errors.New("procession: store closed")
	ErrMigrationFailed = errors.New("procession: migration failed")

	// Not found errors.
	ErrProcessNotFound  = errors.New("procession: process not found")
	ErrSessionNotFound  = errors.New("procession: form session not found")
	ErrEntityNotFound   = errors.New("procession: entity not found")
	ErrEventNotFound    = errors.New("procession: event not found")
	ErrWorkflowNotFound = errors.New("procession: workflow not registered")

	// Conflict errors.
	ErrProcessAlreadyExists = errors.New("procession: process already exists")
	ErrEntityAlreadyExists  = errors.New("procession: entity already exists")

	// State errors.
	ErrInvalidTransition   = errors.New("procession: invalid lifecycle transition")
	ErrProcessNotResumable = errors.New("procession: process is not resumable")
	ErrProcessBusy         = errors.New("procession: process is already being driven")
	ErrWizardCompleted     = errors.New("procession: wizard already completed")
)
