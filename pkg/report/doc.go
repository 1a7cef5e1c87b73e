// Package report turns the analysis tool's aggregated report into a typed
// result.
//
// Parsing happens in two phases. Parse reads the ';'-delimited records into
// Fields, a string-keyed map of scalar or nested values: two-field rows set
// a scalar, three-field rows set an entry of a nested map, every other row
// shape is skipped. Fields.Extract then projects those values onto
// core.ResultFields with typed zero defaults for absent keys.
//
// Both phases are pure functions of their input.
package report
