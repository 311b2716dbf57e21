package model

import "errors"

// Error taxonomy: each stage's failures are classified into one of
// these kinds so the Orchestrator can apply the right retry/fallback policy
// and so the job record can report a machine-readable error kind.
var (
	ErrConfig             = errors.New("config_error")
	ErrProviderTransient  = errors.New("provider_transient")
	ErrProviderPermanent  = errors.New("provider_permanent")
	ErrAssetMissing       = errors.New("asset_missing")
	ErrInvariantViolation = errors.New("invariant_violation")
	ErrStageFailed        = errors.New("stage_failed")
)

// Kind returns the taxonomy sentinel wrapped by err, or ErrStageFailed if
// none of the known kinds match.
func Kind(err error) error {
	for _, kind := range []error{ErrConfig, ErrProviderTransient, ErrProviderPermanent, ErrAssetMissing, ErrInvariantViolation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrStageFailed
}
