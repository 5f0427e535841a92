// Package pyscf runs calculations through a local PySCF installation.
//
// Each call starts the embedded driver script (or a configured replacement)
// as a subprocess, writes the provider.Request as JSON to its stdin and reads
// the provider.Output from its stdout. A driver exit status of 2 together
// with an "input" error document means PySCF refused the input and maps to
// an engine error; any other failure is a server error.
package pyscf
