// Package security provides validation, sanitization, and limits for the fwjobs packages.
//
// This package includes:
//   - Input validation for job ids and analysis flags
//   - Error message sanitization to prevent sensitive data leakage
//   - Clamping of worker counts to safe limits
//   - Security-related constants defining maximum sizes and counts
//
// Most users should import the root package github.com/jdziat/firmware-jobs
// which re-exports the limits.
package security
