// Package sweep removes stale staging directories on a schedule.
//
// A staging directory <active root>/<job id> normally disappears when its
// run ends. Directories left behind by a crash between staging and cleanup
// are removed once they are older than the configured age and their job is
// finished or unknown. The log root is never touched.
package sweep
