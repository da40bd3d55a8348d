package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Game state errors
	ErrUserIDRequired = errors.New("user id is required")
	ErrStateNotFound  = errors.New("game state not found")

	// Referral errors
	ErrReferralNotFound        = errors.New("referral not found")
	ErrReferralAlreadyAccepted = errors.New("referral already accepted")
	ErrReferralExists          = errors.New("invitee already has a referral")
	ErrSelfReferral            = errors.New("cannot refer yourself")

	// Generation errors (matched by *ValidationError / *GenerationError Is methods)
	ErrValidation = errors.New("validation failed")
	ErrGeneration = errors.New("generation failed")

	// Cache
	ErrCacheMiss = errors.New("cache miss")
)

// ValidationError reports a well-formed value that violates field constraints,
// either an incoming payload or a generated artifact.
type ValidationError struct {
	Subject  string   // "payload", "artifact", "notification", "caption"
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Problems, "; "))
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// GenerationError reports a failed LLM call or an unparsable response.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrGeneration) match any *GenerationError.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
