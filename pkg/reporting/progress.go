package reporting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jihwankim/xblive/pkg/discovery"
	"github.com/jihwankim/xblive/pkg/xlog"
)

// Reporter renders discovery events as they arrive. Its three Report*
// methods are meant to be registered directly as an EventBus's
// OnAdd/OnUpdate/OnRemove handlers.
type Reporter struct {
	format OutputFormat
	log    *xlog.Logger
}

// NewReporter creates a Reporter that renders in the given format.
func NewReporter(format OutputFormat, log *xlog.Logger) *Reporter {
	return &Reporter{format: format, log: log}
}

// ReportAdded reports a newly discovered console.
func (r *Reporter) ReportAdded(v discovery.ConnectionView) {
	switch r.format {
	case FormatJSON:
		r.printJSON("added", map[string]interface{}{"connection": v})
	case FormatTUI:
		fmt.Printf("🟢 %s (%s) joined via %s\n", v.Peer, v.Name, v.Interface)
	default:
		fmt.Printf("[ADD] %s %s online via %s\n", v.Peer, v.Name, v.Interface)
	}
}

// ReportUpdated reports a transition or a silent refresh of an existing
// console. before and after are always for the same peer.
func (r *Reporter) ReportUpdated(before, after discovery.ConnectionView) {
	switch r.format {
	case FormatJSON:
		r.printJSON("updated", map[string]interface{}{"before": before, "after": after})
	case FormatTUI:
		if before.State != after.State {
			fmt.Printf("🔄 %s: %s → %s\n", after.Peer, before.State, after.State)
		}
	default:
		if before.State != after.State {
			fmt.Printf("[STATE] %s: %s → %s\n", after.Peer, before.State, after.State)
		}
	}
}

// ReportRemoved reports eviction of a console from the registry.
func (r *Reporter) ReportRemoved(v discovery.ConnectionView) {
	switch r.format {
	case FormatJSON:
		r.printJSON("removed", map[string]interface{}{"connection": v})
	case FormatTUI:
		fmt.Printf("🔴 %s (%s) evicted\n", v.Peer, v.Name)
	default:
		fmt.Printf("[REMOVE] %s %s evicted\n", v.Peer, v.Name)
	}
}

// ReportSnapshot prints the registry's current contents, e.g. for an
// `xblive list` one-shot command.
func (r *Reporter) ReportSnapshot(snapshot []discovery.ConnectionView) {
	switch r.format {
	case FormatJSON:
		r.printJSON("snapshot", map[string]interface{}{"connections": snapshot})
	default:
		fmt.Print(RenderTable(snapshot))
	}
}

func (r *Reporter) printJSON(event string, fields map[string]interface{}) {
	fields["event"] = event
	fields["timestamp"] = time.Now()
	data, err := json.Marshal(fields)
	if err != nil {
		r.log.Error("marshal report event", "event", event, "error", err)
		return
	}
	fmt.Println(string(data))
}
