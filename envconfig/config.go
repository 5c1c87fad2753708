// Package envconfig reads the MARLIN_* environment variables that steer the
// repack tools.
package envconfig

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

var (
	// Set via MARLIN_DEBUG in the environment
	Debug bool
	// Set via MARLIN_NUM_PARALLEL in the environment
	NumParallel int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"MARLIN_DEBUG":        {"MARLIN_DEBUG", Debug, "Show additional debug information (e.g. MARLIN_DEBUG=1)"},
		"MARLIN_NUM_PARALLEL": {"MARLIN_NUM_PARALLEL", NumParallel, "Maximum number of weights repacked in parallel (default: number of CPUs)"},
	}
}

func init() {
	LoadConfig()
}

// LoadConfig rereads the environment. Exposed for tests.
func LoadConfig() {
	Debug = false
	if debug := os.Getenv("MARLIN_DEBUG"); debug != "" {
		if b, err := strconv.ParseBool(debug); err == nil {
			Debug = b
		} else {
			Debug = true
		}
	}

	NumParallel = runtime.NumCPU()
	if p := os.Getenv("MARLIN_NUM_PARALLEL"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			NumParallel = n
		} else {
			fmt.Fprintf(os.Stderr, "invalid MARLIN_NUM_PARALLEL %q, ignoring\n", p)
		}
	}
}
