package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/twinsync/internal/store"
)

// Report summarizes one sync cycle.
type Report struct {
	CycleID string `json:"cycle_id"`
	Forced  bool   `json:"forced"`

	LocalFetched  int `json:"local_fetched"`
	RemoteFetched int `json:"remote_fetched"`
	Absorbed      int `json:"absorbed"`
	Scheduled     int `json:"scheduled"`
	Applied       int `json:"applied"`
	Dropped       int `json:"dropped"`

	Before   store.Watermark  `json:"before"`
	After    *store.Watermark `json:"after,omitempty"`
	Advanced bool             `json:"advanced"`

	Results []ApplyResult `json:"results"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Fetched returns the size of the merged change set.
func (r *Report) Fetched() int {
	return r.LocalFetched + r.RemoteFetched
}

// String renders a short human-readable summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s: fetched %d (edge %d, hub %d), absorbed %d, applied %d, dropped %d",
		r.CycleID, r.Fetched(), r.LocalFetched, r.RemoteFetched, r.Absorbed, r.Applied, r.Dropped)
	if r.Advanced && r.After != nil {
		fmt.Fprintf(&b, "\nwatermark: edge %d -> %d, hub %d -> %d",
			r.Before.LocalLastID, r.After.LocalLastID, r.Before.RemoteLastID, r.After.RemoteLastID)
	} else {
		b.WriteString("\nwatermark unchanged")
	}
	return b.String()
}
