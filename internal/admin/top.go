package admin

import (
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// RunTop renders a live terminal dashboard (gauge + sparkline) of node
// stats, polling provider every interval until the user quits (q or
// Ctrl-C). Intended for `skynet top`.
func RunTop(provider StatsProvider, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("admin: termui init: %w", err)
	}
	defer ui.Close()

	gauge := widgets.NewGauge()
	gauge.Title = "ready queue"
	gauge.SetRect(0, 0, 50, 3)

	spark := widgets.NewSparkline()
	spark.Title = "registered services"
	group := widgets.NewSparklineGroup(spark)
	group.SetRect(0, 3, 50, 13)

	history := make([]float64, 0, 200)

	render := func() {
		st := provider.Stats()
		if st.ReadyQueueEmpty {
			gauge.Percent = 0
			gauge.Label = "idle"
		} else {
			gauge.Percent = 100
			gauge.Label = "busy"
		}

		history = append(history, float64(st.RegisteredServices))
		if len(history) > 200 {
			history = history[len(history)-200:]
		}
		spark.Data = history

		ui.Render(gauge, group)
	}

	render()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}
