package cmd

import (
	"time"

	"github.com/fly-207/skynet/internal/admin"
	"github.com/fly-207/skynet/internal/bootstrap"
)

// topRefresh is how often the dashboard repaints.
const topRefresh = 500 * time.Millisecond

// runTop attaches the termui dashboard to sys.Node, which satisfies
// admin.StatsProvider directly.
func runTop(sys *bootstrap.System) error {
	return admin.RunTop(sys.Node, topRefresh)
}
