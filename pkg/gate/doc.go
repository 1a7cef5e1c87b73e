// Package gate provides the admission gate bounding outstanding work.
//
// A Gate has a fixed capacity C. TryAcquire never blocks: it either takes
// one of the C slots or reports that the gate is saturated. Every
// successful TryAcquire must be paired with exactly one Release.
package gate
