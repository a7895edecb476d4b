package router

import (
	"fmt"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
)

// ValidationError reports a malformed request. Terminal: nothing is
// attempted, nothing falls back, and no request record is written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// QuotaError reports a rate-limit or budget denial. Terminal: the router
// never retries at SuggestedTier itself; the caller must re-request.
type QuotaError struct {
	Reason        string
	Tier          tiers.Tier
	SuggestedTier tiers.Tier
}

func (e *QuotaError) Error() string { return e.Reason }

// TerminalError reports that the last tier in the fallback chain failed.
type TerminalError struct {
	Tier tiers.Tier
	Err  error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("All tiers failed. Last error: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
