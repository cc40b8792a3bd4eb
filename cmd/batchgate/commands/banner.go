package commands

import (
	"fmt"

	"github.com/grainway/batchgate/config"
	"github.com/grainway/batchgate/logger"
	"github.com/grainway/batchgate/version"
)

// printStartupBanner prints the user-friendly daemon startup message
func printStartupBanner(verbosity, port int, cfg *config.Config) {
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s┌─ batchgate ─────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Verbosity: %s\n", green, reset, logger.LevelName(verbosity))
	fmt.Printf("%s│%s Port:      %d\n", green, reset, port)
	fmt.Printf("%s│%s Boards:    dependencies %d -> dependents %d\n", green, reset,
		cfg.Boards.DependencyBoardID, cfg.Boards.DependentBoardID)
	if cfg.Schedule.IntervalMinutes > 0 {
		window := ""
		if cfg.Schedule.BusinessHoursOnly {
			window = fmt.Sprintf(" (weekdays %02d-%02d %s)",
				cfg.Schedule.BusinessHoursStart, cfg.Schedule.BusinessHoursEnd, cfg.Schedule.Timezone)
		}
		fmt.Printf("%s│%s Sweeps:    every %dm%s\n", green, reset, cfg.Schedule.IntervalMinutes, window)
	} else {
		fmt.Printf("%s│%s Sweeps:    disabled (webhook and manual runs only)\n", green, reset)
	}
	if cfg.Server.WebhookSecret != "" {
		fmt.Printf("%s│%s Webhook:   /webhooks/board (secret required)\n", green, reset)
	} else {
		fmt.Printf("%s│%s Webhook:   /webhooks/board (no secret configured)\n", green, reset)
	}
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s✨ POST /api/runs/sweep to trigger a manual sweep%s\n", yellow, bold, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
