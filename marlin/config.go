package marlin

import (
	"fmt"
	"slices"
)

// Method identifies the source packing convention of a quantized weight.
type Method int

const (
	// GPTQ weights are row-packed: 32/bits logical input features share one
	// packed word.
	GPTQ Method = iota
	// AWQ weights are column-packed along the output-feature axis and carry
	// lane-interleaved zero-points.
	AWQ
)

func (m Method) String() string {
	switch m {
	case GPTQ:
		return "gptq"
	case AWQ:
		return "awq"
	}
	return "unknown"
}

var (
	// SupportedBits are the quantized bit widths the Marlin kernel accepts.
	SupportedBits = []int{4, 8}
	// SupportedGroupSizes are the quantization group sizes the Marlin kernel
	// accepts. -1 means a single group spanning all input features.
	SupportedGroupSizes = []int{-1, 32, 64, 128}
)

// ConfigError reports a quantization configuration the kernel cannot consume.
// These are caller-fixable and deterministic; retrying never helps.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "marlin: " + e.Msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Supported reports whether a weight with the given quantization parameters
// can be repacked at all. It is the cheap front-door check; Repack enforces
// the same constraints with specific errors.
func Supported(bits, groupSize int, method Method, sym bool) bool {
	return checkConfig(bits, groupSize, method, sym) == nil
}

// checkConfig is the validation gate. It runs before any transformation and
// names the exact violated constraint on failure.
func checkConfig(bits, groupSize int, method Method, sym bool) error {
	if !slices.Contains(SupportedBits, bits) {
		return configErrorf("repacking %d-bit weights is not supported, must be one of: 4, 8", bits)
	}
	if !slices.Contains(SupportedGroupSizes, groupSize) {
		return configErrorf("repacking weights with group size %d is not supported, must be one of: -1, 32, 64, 128", groupSize)
	}
	if !sym && method != AWQ {
		return configErrorf("asymmetric quantization is not supported for %s weights", method)
	}
	return nil
}
