// Package api defines the domain model and wire contract of the
// cloudcompchem service.
//
// This package provides the validated request types accepted from clients,
// the result types returned to them, and the tagged error type that
// classifies every failure. It performs no I/O beyond decoding a payload
// from a reader.
//
// Core types:
//   - [Molecule]: ordered atoms with charge and spin multiplicity; enforces
//     that electron count and multiplicity have matching parity
//   - [FunctionalConfig], [SolverConfig]: method selection and optimizer
//     thresholds merged against per-solver defaults
//   - [EnergyRequest], [OptimizationRequest]: built by [ParseEnergyRequest]
//     and [ParseOptimizationRequest] from an untyped JSON mapping
//   - [SinglePointEnergyResult], [StructureRelaxationResult]: results built
//     from raw engine output
//   - [APIError]: error with a transport-facing type and a validation kind
//
// Request objects are immutable after parsing and safe to share between
// goroutines.
package api
