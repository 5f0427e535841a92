// Package engine implements the calculation pipeline of cloudcompchem.
// The Engine struct implements transport.Calculator: it checks a validated
// request against the provider's capabilities, translates it to the
// engine-facing form, invokes the provider and builds the result types from
// the raw output. Errors are always *api.APIError; unexpected failures are
// turned into internal errors whose detail is only logged.
package engine
