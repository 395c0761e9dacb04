package reporting

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jihwankim/xblive/pkg/discovery"
)

// RenderTable formats a connection snapshot as a fixed-width table for
// `xblive list`: peer, state, interface, ICS-bridged classification,
// name, CPUKey (if set), last seen.
func RenderTable(snapshot []discovery.ConnectionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "PEER\tSTATE\tIFACE\tBRIDGED\tNAME\tCPUKEY\tLAST SEEN")
	for _, v := range snapshot {
		key := "-"
		if !v.CPUKey.IsEmpty() {
			key = v.CPUKey.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			v.Peer, v.State, v.Interface, v.Bridged, v.Name, key, v.LastAck.Format("15:04:05"))
	}

	w.Flush()
	return buf.String()
}
