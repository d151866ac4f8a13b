package main

import (
	"context"
	"fmt"

	"campus-rag-go/internal/service"

	"github.com/spf13/cobra"
)

var eventQuery service.EventQuery

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List extracted academic calendar events",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventQuery.Type, "type", "", "only events of this type (exam, fee, deadline, ...)")
	f.BoolVar(&eventQuery.Upcoming, "upcoming", false, "only events in the upcoming window")
	f.StringVar(&eventQuery.Search, "search", "", "search titles and descriptions")
	f.StringVar(&eventQuery.FromDate, "from", "", "earliest date (YYYY-MM-DD)")
	f.StringVar(&eventQuery.ToDate, "to", "", "latest date (YYYY-MM-DD)")
	f.IntVarP(&eventQuery.Limit, "limit", "n", 0, "maximum number of events")
	f.BoolVar(&eventQuery.Stats, "stats", false, "show statistics instead of events")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Events.Query(ctx, eventQuery)
	if err != nil {
		return fmt.Errorf("query events failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, res)
	}
	if res.Stats != nil {
		st := res.Stats
		cmd.Printf("Total: %d  Upcoming: %d  Past: %d  Sources: %d\n", st.Total, st.Upcoming, st.Past, st.SourceFiles)
		for _, tc := range st.ByType {
			cmd.Printf("  %-12s %d\n", tc.EventType, tc.Count)
		}
		return nil
	}
	cmd.Println(res.Message)
	for _, ev := range res.Events {
		cmd.Printf("  %s  %-12s %s  (%s)\n", ev.Date, ev.EventType, ev.Title, ev.SourceFile)
	}
	return nil
}
