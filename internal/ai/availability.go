package ai

import "os/exec"

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// CheckAvailability reports which helper binaries are on PATH.
// Returns a map of tool name to availability status.
func CheckAvailability(tools ...string) map[string]bool {
	result := make(map[string]bool, len(tools))
	for _, tool := range tools {
		_, err := lookPath(tool)
		result[tool] = err == nil
	}
	return result
}

// LocalAvailable reports whether the runner's helper binary can be executed.
func (r *LocalRunner) LocalAvailable() bool {
	return CheckAvailability(r.command())[r.command()]
}
