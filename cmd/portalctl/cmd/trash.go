package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/models"
)

var trashEntity string

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Browse and restore soft-deleted records",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trash items",
	RunE:  runTrashList,
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <trash-id>",
	Short: "Restore a trash item",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrashRestore,
}

var trashSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge every item past its retention now",
	RunE:  runTrashSweep,
}

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd, trashSweepCmd)

	addPageFlags(trashListCmd)
	trashListCmd.Flags().StringVar(&trashEntity, "entity", "", "entity type filter")
}

func runTrashList(cmd *cobra.Command, args []string) error {
	q := pageQuery()
	if trashEntity != "" {
		q.Set("entity_type", trashEntity)
	}
	var result models.ListResponse[models.TrashItem]
	if err := call(cmd.Context(), "GET", "/api/admin/trash", q, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("Trash is empty")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Type", "Label", "Deleted by", "Deleted", "Expires")
	for _, item := range result.Items {
		table.Append(
			item.ID,
			item.EntityType,
			orDash(item.Label),
			orDash(item.DeletedBy),
			formatTime(item.DeletedAt),
			formatTime(item.ExpiresAt),
		)
	}
	table.Render()
	fmt.Printf("\nShowing %d of %d items\n", result.Count, result.Total)
	return nil
}

func runTrashRestore(cmd *cobra.Command, args []string) error {
	var item models.TrashItem
	if err := call(cmd.Context(), "POST", "/api/admin/trash/"+url.PathEscape(args[0])+"/restore", nil, nil, &item); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), item)
	}
	fmt.Printf("Restored %s %s\n", item.EntityType, item.EntityID)
	return nil
}

func runTrashSweep(cmd *cobra.Command, args []string) error {
	var result struct {
		Purged int `json:"purged"`
	}
	if err := call(cmd.Context(), "POST", "/api/admin/trash/sweep", nil, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	fmt.Printf("Purged %d expired items\n", result.Purged)
	return nil
}
