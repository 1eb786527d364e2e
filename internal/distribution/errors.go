package distribution

import (
	"errors"

	"github.com/bissquit/amber-relay/internal/catalog"
)

// Request errors.
var (
	ErrAlertNotFound  = catalog.ErrAlertNotFound
	ErrAlertNotActive = errors.New("alert is not active")
	ErrNoChannels     = errors.New("no channels requested")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownSystem  = errors.New("unknown regulated broadcast system")
)

// Store errors.
var (
	ErrUnitNotFound      = errors.New("distribution unit not found")
	ErrUnitStateChanged  = errors.New("distribution unit state changed concurrently")
	ErrInvalidTransition = errors.New("invalid distribution status transition")
)

// Dispatch errors.
var (
	// ErrApprovalRequired is returned by senders that park a unit for manual review.
	ErrApprovalRequired = errors.New("manual approval required")
	ErrNoSender         = errors.New("no sender registered for channel")
	ErrChannelDisabled  = errors.New("channel transport disabled")
	ErrNoRecipients     = errors.New("no recipient accepted the message")
)
