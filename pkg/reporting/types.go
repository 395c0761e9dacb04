// Package reporting presents discovery events and snapshots to a
// terminal or a JSON event stream. It is presentation only: nothing in
// this package writes a file or otherwise persists a Connection past the
// life of the process.
package reporting

// OutputFormat selects how a Reporter renders events.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatTUI  OutputFormat = "tui"
)
