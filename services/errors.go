package services

import "errors"

// Not found.
var (
	ErrInvalidCode    = errors.New("invalid affiliate code")
	ErrNoReferral     = errors.New("no referral record found")
	ErrSharerNotFound = errors.New("sharer not found")
	ErrEmailNotFound  = errors.New("email not found in your list")
)

// Conflict.
var (
	ErrDuplicateEmail   = errors.New("email already in your list")
	ErrSelfEntry        = errors.New("you cannot add your own email")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrAlreadyRewarded  = errors.New("VIP upgrade already awarded for this referral")
)

// Validation.
var (
	ErrEmptyRoster  = errors.New("no emails in your list")
	ErrInvalidPlan  = errors.New("invalid plan type")
	ErrInvalidEmail = errors.New("invalid email address")
)

// External.
var ErrDeliveryFailed = errors.New("email delivery failed")
