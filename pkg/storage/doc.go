// Package storage provides utilities shared across job store
// implementations, including sentinel errors and tenant context helpers.
//
// Stores (memory, postgres) implement the jobs.Store interface defined in
// pkg/jobs. This package contains only shared types and helpers, not the
// interface itself.
package storage
