package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/api"
	"github.com/voxlane/backoffice/pkg/models"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Server health and maintenance",
}

var systemStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, cache, softswitch and host status",
	RunE:  runSystemStatus,
}

var systemStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the admin dashboard figures",
	RunE:  runSystemStats,
}

var systemCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the retention tasks now",
	RunE:  runSystemCleanup,
}

func init() {
	rootCmd.AddCommand(systemCmd)
	systemCmd.AddCommand(systemStatusCmd, systemStatsCmd, systemCleanupCmd)
}

func runSystemStatus(cmd *cobra.Command, args []string) error {
	var sys api.SystemResponse
	if err := call(cmd.Context(), "GET", "/api/admin/system", nil, nil, &sys); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), sys)
	}

	platform := sys.Platform.Mode
	if sys.Platform.Reachable {
		platform += fmt.Sprintf(", reachable (%d ms)", sys.Platform.LatencyMs)
	} else if sys.Platform.Error != "" {
		platform += ", unreachable: " + sys.Platform.Error
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Component", "Status")
	table.Append([]string{"Version", orDash(sys.Version)})
	table.Append([]string{"Uptime", sys.Uptime})
	table.Append([]string{"Database", sys.Database})
	table.Append([]string{"Cache", sys.Cache})
	table.Append([]string{"Softswitch", platform})
	if sys.Sync.LastRun != nil {
		table.Append([]string{"Last sync", sys.Sync.LastRun.Status + " at " + formatTime(sys.Sync.LastRun.StartedAt)})
	}
	table.Append([]string{"Host", fmt.Sprintf("%s (%s)", sys.System.Host.Hostname, sys.System.Host.OS)})

	tasks := make([]string, 0, len(sys.Cleanup))
	for name := range sys.Cleanup {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	for _, name := range tasks {
		st := sys.Cleanup[name]
		table.Append([]string{"Cleanup " + name, fmt.Sprintf("last %s, deleted %d", formatTime(st.LastRun), st.LastDeleted)})
	}
	table.Render()
	return nil
}

func runSystemStats(cmd *cobra.Command, args []string) error {
	var counts models.AdminCounts
	if err := call(cmd.Context(), "GET", "/api/admin/stats", nil, nil, &counts); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), counts)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append([]string{"Customers", fmt.Sprintf("%d (%d active, %d suspended)", counts.Customers, counts.ActiveCustomers, counts.SuspendedCustomers)})
	table.Append([]string{"Carriers", fmt.Sprint(counts.Carriers)})
	table.Append([]string{"Rate cards", fmt.Sprint(counts.RateCards)})
	table.Append([]string{"Routes", fmt.Sprint(counts.Routes)})
	table.Append([]string{"DIDs", fmt.Sprintf("%d (%d assigned)", counts.DIDsTotal, counts.DIDsAssigned)})
	table.Append([]string{"Pending KYC", fmt.Sprint(counts.PendingKYC)})
	table.Append([]string{"Trash items", fmt.Sprint(counts.TrashItems)})
	table.Append([]string{"CDRs today", fmt.Sprint(counts.CDRsToday)})
	table.Render()
	return nil
}

func runSystemCleanup(cmd *cobra.Command, args []string) error {
	var result api.CleanupResponse
	if err := call(cmd.Context(), "POST", "/api/admin/system/cleanup", nil, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	tasks := make([]string, 0, len(result.Deleted))
	for name := range result.Deleted {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	for _, name := range tasks {
		fmt.Printf("%-10s %d removed\n", name, result.Deleted[name])
	}
	return nil
}
