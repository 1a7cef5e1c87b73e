// Package schedule provides schedules for recurring maintenance work.
//
// This package includes:
//   - Schedule interface, compatible with robfig/cron's Schedule
//   - Every() for fixed-interval schedules
//   - Parse() for cron expressions and descriptors such as "@every 1h"
package schedule
