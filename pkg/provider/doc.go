// Package provider defines the interface to electronic-structure engines.
// Each adapter (remote HTTP service, local PySCF subprocess) handles its own
// protocol internally. The interface operates on the engine-facing Request
// and Output types, keeping backend details invisible to the engine package.
package provider
