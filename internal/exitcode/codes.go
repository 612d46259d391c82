// Package exitcode defines named exit codes for the cull-engine CLI.
//
// Each code maps a specific termination condition to a numeric value
// recognized by shell scripts and job schedulers.
package exitcode

// Exit code constants.
const (
	Success             = 0   // Every image rated
	Error               = 1   // Invalid args, file not found, misconfiguration
	AllProvidersFailed  = 2   // No provider produced ratings
	PartialFailure      = 3   // Fast mode finished with some failed images
	InsufficientCredits = 4   // Every provider was skipped for lack of credits
	Interrupted         = 130 // SIGINT/SIGTERM received
)

// Name returns the human-readable name for the given exit code.
// Unknown codes return "unknown".
func Name(code int) string {
	switch code {
	case Success:
		return "Success"
	case Error:
		return "Error"
	case AllProvidersFailed:
		return "AllProvidersFailed"
	case PartialFailure:
		return "PartialFailure"
	case InsufficientCredits:
		return "InsufficientCredits"
	case Interrupted:
		return "Interrupted"
	default:
		return "unknown"
	}
}
