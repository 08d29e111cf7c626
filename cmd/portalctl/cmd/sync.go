package cmd

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/platformsync"
)

var (
	syncWait         bool
	syncFollow       bool
	syncPollInterval time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the catalog and customers to the softswitch",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a full sync",
	Long: `Start a full sync of customers, carriers, rate cards and routes.

By default the server runs the sync in the background and the command returns
at once. Use --wait to block on the request, or --follow to poll the status
until the run ends.`,
	RunE: runSyncRun,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running or last full sync",
	RunE:  runSyncStatus,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRunCmd, syncStatusCmd)

	syncRunCmd.Flags().BoolVar(&syncWait, "wait", false, "run the sync inside the request and print the report")
	syncRunCmd.Flags().BoolVarP(&syncFollow, "follow", "f", false, "poll until the background run finishes")
	syncRunCmd.Flags().DurationVar(&syncPollInterval, "poll-interval", 2*time.Second, "status poll interval for --follow")
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	var q url.Values
	if syncWait {
		q = url.Values{"wait": {"true"}}
	}
	var run platformsync.Run
	if err := call(cmd.Context(), "POST", "/api/admin/platform/sync", q, nil, &run); err != nil {
		return err
	}

	if syncFollow && run.Status == platformsync.RunRunning {
		if IsTableOutput() {
			fmt.Printf("Sync %s started, waiting for it to finish...\n", run.ID)
		}
		ticker := time.NewTicker(syncPollInterval)
		defer ticker.Stop()
		for run.Status == platformsync.RunRunning {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-ticker.C:
			}
			var status platformsync.Status
			if err := call(cmd.Context(), "GET", "/api/admin/platform/sync/status", nil, nil, &status); err != nil {
				return err
			}
			if status.LastRun != nil && status.LastRun.ID == run.ID {
				run = *status.LastRun
			}
		}
	}

	if !IsTableOutput() {
		return printStructured(stdout(), run)
	}
	printRun(&run)
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	var status platformsync.Status
	if err := call(cmd.Context(), "GET", "/api/admin/platform/sync/status", nil, nil, &status); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), status)
	}

	mode := "live"
	if status.Mock {
		mode = "mock"
	}
	fmt.Printf("Softswitch mode: %s\n", mode)
	if status.LastRun == nil {
		fmt.Println("No sync has run since the server started")
		return nil
	}
	printRun(status.LastRun)
	return nil
}

func printRun(run *platformsync.Run) {
	fmt.Printf("Run %s: %s (started %s", run.ID, run.Status, formatTime(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Printf(", took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Println(")")

	if len(run.Results) > 0 {
		kinds := make([]string, 0, len(run.Results))
		for kind := range run.Results {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Kind", "OK", "Failed")
		for _, kind := range kinds {
			res := run.Results[kind]
			table.Append(kind, strconv.Itoa(res.OK), strconv.Itoa(res.Failed))
		}
		table.Render()
	}

	if len(run.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range run.Errors {
			fmt.Printf("  %s %s: %s\n", e.Kind, e.ID, e.Error)
		}
		if run.Truncated {
			fmt.Println("  ... more errors were dropped")
		}
	}
}
