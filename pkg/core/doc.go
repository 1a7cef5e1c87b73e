// Package core provides the fundamental types and interfaces for the
// firmware analysis jobs packages.
//
// This package contains:
//   - Job and Result data models with GORM annotations
//   - Outcome, the terminal state of one analysis run
//   - Storage interface defining the persistence contract
//   - Event types for service monitoring
//   - Error types for submission and execution
//
// Most users should import the root package github.com/jdziat/firmware-jobs
// instead of this package directly.
package core
