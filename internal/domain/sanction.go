package domain

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanctionDurationKind distinguishes permanent bans from temporary ones.
type SanctionDurationKind string

const (
	SanctionTemporary SanctionDurationKind = "temporary"
	SanctionPermanent SanctionDurationKind = "permanent"
)

// SanctionDurationUnit is the unit of a temporary sanction.
type SanctionDurationUnit string

const (
	DurationMinutes SanctionDurationUnit = "minutes"
	DurationHours   SanctionDurationUnit = "hours"
	DurationDays    SanctionDurationUnit = "days"
	DurationMonths  SanctionDurationUnit = "months"
)

// Suffix returns the short unit tag understood by the game server.
func (u SanctionDurationUnit) Suffix() string {
	switch u {
	case DurationMinutes:
		return "m"
	case DurationHours:
		return "h"
	case DurationDays:
		return "d"
	case DurationMonths:
		return "mo"
	}
	return ""
}

// DefaultSanctionReason is used when staff leave the reason blank.
const DefaultSanctionReason = "Banned via Web Panel"

const maxSanctionReasonLength = 256

// SanctionRequest is a staff request to ban an in-game identity. It is never
// stored as an entity; its outcome is recorded as a system message.
type SanctionRequest struct {
	TargetNickname string
	DurationKind   SanctionDurationKind
	DurationValue  int
	DurationUnit   SanctionDurationUnit
	Reason         string
	IdempotencyKey string
}

var (
	errNicknameRequired = errors.New("target nickname is required")
	errNicknameSpaces   = errors.New("target nickname must not contain whitespace")
	errDurationKind     = errors.New("duration kind must be temporary or permanent")
	errDurationValue    = errors.New("temporary sanctions need a positive duration")
	errDurationUnit     = errors.New("duration unit must be minutes, hours, days or months")
	errReasonTooLong    = errors.New("reason is too long")
	errReasonNewline    = errors.New("reason must be a single line")
)

// Normalize trims input and fills the default reason.
func (r SanctionRequest) Normalize() SanctionRequest {
	r.TargetNickname = strings.TrimSpace(r.TargetNickname)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		r.Reason = DefaultSanctionReason
	}
	if r.DurationKind == SanctionPermanent {
		r.DurationValue = 0
		r.DurationUnit = ""
	}
	return r
}

// Validate checks a normalized request.
func (r SanctionRequest) Validate() error {
	if r.TargetNickname == "" {
		return errNicknameRequired
	}
	if strings.IndexFunc(r.TargetNickname, unicode.IsSpace) >= 0 {
		return errNicknameSpaces
	}
	switch r.DurationKind {
	case SanctionPermanent:
	case SanctionTemporary:
		if r.DurationValue <= 0 {
			return errDurationValue
		}
		if r.DurationUnit.Suffix() == "" {
			return errDurationUnit
		}
	default:
		return errDurationKind
	}
	if utf8.RuneCountInString(r.Reason) > maxSanctionReasonLength {
		return errReasonTooLong
	}
	if strings.ContainsAny(r.Reason, "\r\n") {
		return errReasonNewline
	}
	return nil
}

// SanctionOutcomeStatus is the result reported by the enforcement boundary.
type SanctionOutcomeStatus string

const (
	SanctionAccepted    SanctionOutcomeStatus = "accepted"
	SanctionRejected    SanctionOutcomeStatus = "rejected"
	SanctionUnavailable SanctionOutcomeStatus = "unavailable"
)

// SanctionOutcome is what the moderation bridge reports for one dispatch.
type SanctionOutcome struct {
	Status    SanctionOutcomeStatus
	Command   string
	CommandID string
	Detail    string
}

// Accepted reports whether the boundary took the command.
func (o SanctionOutcome) Accepted() bool {
	return o.Status == SanctionAccepted
}
