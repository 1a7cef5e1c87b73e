// Package pool provides a fixed-size worker pool with admission control.
//
// Submit never blocks the caller: work is either admitted through the
// pool's gate and handed to one of W worker goroutines, or rejected with
// core.ErrAdmissionRejected. The gate slot taken on admission is released
// exactly once, when the unit of work completes, fails or panics.
//
// Gate capacity defaults to the worker count, so admitted work never waits
// behind a busy worker.
package pool
