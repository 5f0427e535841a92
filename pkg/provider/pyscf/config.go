package pyscf

import "time"

// Config holds configuration for the PySCF subprocess adapter.
type Config struct {
	// Command is the interpreter and its leading arguments. Defaults to
	// ["python3"].
	Command []string

	// Script is the driver path. Empty runs the embedded driver via "-c".
	Script string

	// WorkDir is the working directory for the subprocess. PySCF writes
	// checkpoint and optimizer scratch files here. Defaults to a temporary
	// directory per call.
	WorkDir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment
	// (e.g. OMP_NUM_THREADS).
	Env []string

	// Timeout bounds a single run. Zero means no limit beyond the caller's
	// context.
	Timeout time.Duration
}

// DefaultConfig returns a Config that runs the embedded driver with python3.
func DefaultConfig() Config {
	return Config{
		Command: []string{"python3"},
		Timeout: 30 * time.Minute,
	}
}
