package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/models"
)

var (
	auditCustomer string
	auditEntity   string
	auditAction   string
	auditSince    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	RunE:  runAuditList,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)

	addPageFlags(auditListCmd)
	auditListCmd.Flags().StringVar(&auditCustomer, "customer", "", "customer ID")
	auditListCmd.Flags().StringVar(&auditEntity, "entity", "", "entity type, e.g. customer or did")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "action, e.g. customer.suspend")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "RFC 3339 timestamp")
}

func runAuditList(cmd *cobra.Command, args []string) error {
	q := pageQuery()
	for key, value := range map[string]string{
		"customer_id": auditCustomer,
		"entity_type": auditEntity,
		"action":      auditAction,
		"since":       auditSince,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}

	var result models.ListResponse[models.AuditLog]
	if err := call(cmd.Context(), "GET", "/api/admin/audit", q, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("No audit entries")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Actor", "Action", "Entity", "Customer")
	for _, e := range result.Items {
		table.Append(
			formatTime(e.CreatedAt),
			orDash(e.ActorEmail),
			e.Action,
			e.EntityType+" "+e.EntityID,
			orDash(e.CustomerID),
		)
	}
	table.Render()
	fmt.Printf("\nShowing %d of %d entries\n", result.Count, result.Total)
	return nil
}
