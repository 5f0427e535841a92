// Package jobs runs calculations out of band.
//
// A Queue accepts a validated calculation and returns a Job handle at once.
// The handle reports whether the job is ready, whether it succeeded, and,
// once ready, its value: the result or the classified error. Two queues are
// provided: Local, a goroutine worker pool over a Store, and the Temporal
// backed queue in the temporal subpackage.
package jobs
