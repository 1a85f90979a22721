package gridup

import "errors"

// Error taxonomy for a provisioning run. The first fatal error aborts the
// whole run; already-applied side effects are not rolled back, so every
// phase must be idempotent and recovery is re-invocation from the start.
var (
	// ErrValidation marks bad or missing configuration and unsupported
	// platforms, raised before side effects wherever possible.
	ErrValidation = errors.New("invalid configuration")

	// ErrPrerequisite marks a host-side precondition failure that the run
	// cannot resolve itself (missing driver, unsupported kernel).
	ErrPrerequisite = errors.New("prerequisite not met")

	// ErrRebootRequired is a prerequisite failure that needs an operator
	// reboot before re-running; the orchestrator prints instructions and
	// exits instead of attempting reboot-and-resume.
	ErrRebootRequired = errors.New("reboot required")

	// ErrNetwork marks mesh or storage reachability failures after bounded
	// retries were exhausted.
	ErrNetwork = errors.New("network setup failed")

	// ErrConfiguration marks a template/version mismatch: an expected
	// artifact field was absent or unrenderable.
	ErrConfiguration = errors.New("configuration artifact mismatch")
)
