// Package consts holds the engineering constants shared across the engine.
package consts

const (
	// MsPerHour converts a tick's delta_ms into hours, for Wh integration.
	MsPerHour = 3_600_000.0

	// Tolerance is the default absolute tolerance for comparing two floating
	// point quantities for equality.
	Tolerance = 1e-9
)
