package catalog

import "errors"

// Catalog errors.
var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrPartnerNotFound = errors.New("partner not found")
	ErrPartnerInactive = errors.New("partner is inactive")
)
