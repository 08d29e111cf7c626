package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/models"
)

var (
	customerStatus string
	customerSearch string
	listLimit      int
	listOffset     int
)

var customersCmd = &cobra.Command{
	Use:     "customers",
	Aliases: []string{"customer", "cust"},
	Short:   "Manage customer accounts",
}

var customersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	RunE:  runCustomersList,
}

var customersGetCmd = &cobra.Command{
	Use:   "get <customer-id>",
	Short: "Show one customer",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomersGet,
}

var customersSuspendCmd = &cobra.Command{
	Use:   "suspend <customer-id>",
	Short: "Suspend a customer and lock its users out of the portal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCustomerStatus(cmd, args[0], "suspend")
	},
}

var customersActivateCmd = &cobra.Command{
	Use:   "activate <customer-id>",
	Short: "Reactivate a suspended customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCustomerStatus(cmd, args[0], "activate")
	},
}

func init() {
	rootCmd.AddCommand(customersCmd)
	customersCmd.AddCommand(customersListCmd, customersGetCmd, customersSuspendCmd, customersActivateCmd)

	customersListCmd.Flags().StringVar(&customerStatus, "status", "", "filter by status: active, suspended, closed")
	customersListCmd.Flags().StringVar(&customerSearch, "search", "", "match name, company, email or account number")
	addPageFlags(customersListCmd)
}

func addPageFlags(c *cobra.Command) {
	c.Flags().IntVar(&listLimit, "limit", 50, "maximum rows to fetch")
	c.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")
}

func pageQuery() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(listLimit))
	if listOffset > 0 {
		q.Set("offset", strconv.Itoa(listOffset))
	}
	return q
}

func runCustomersList(cmd *cobra.Command, args []string) error {
	q := pageQuery()
	if customerStatus != "" {
		q.Set("status", customerStatus)
	}
	if customerSearch != "" {
		q.Set("search", customerSearch)
	}

	var result models.ListResponse[models.Customer]
	if err := call(cmd.Context(), "GET", "/api/admin/customers", q, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("No customers found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Account", "Name", "Email", "Status", "KYC", "Balance", "Synced")
	for _, c := range result.Items {
		table.Append(
			c.AccountNumber,
			c.Name,
			c.Email,
			string(c.Status),
			string(c.KYCStatus),
			c.Balance.String()+" "+c.Currency,
			syncLabel(c.SyncState),
		)
	}
	table.Render()
	fmt.Printf("\nShowing %d of %d customers\n", result.Count, result.Total)
	return nil
}

func runCustomersGet(cmd *cobra.Command, args []string) error {
	var c models.Customer
	if err := call(cmd.Context(), "GET", "/api/admin/customers/"+url.PathEscape(args[0]), nil, nil, &c); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), c)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append([]string{"ID", c.ID})
	table.Append([]string{"Account", c.AccountNumber})
	table.Append([]string{"Name", c.Name})
	table.Append([]string{"Company", orDash(c.Company)})
	table.Append([]string{"Email", c.Email})
	table.Append([]string{"Country", orDash(c.Country)})
	table.Append([]string{"Status", string(c.Status)})
	table.Append([]string{"Plan", c.Plan})
	table.Append([]string{"Balance", c.Balance.String() + " " + c.Currency})
	table.Append([]string{"Credit limit", c.CreditLimit.String()})
	table.Append([]string{"Rate card", orDash(c.RateCardID)})
	table.Append([]string{"Channel limit", strconv.Itoa(c.ChannelLimit)})
	table.Append([]string{"KYC", string(c.KYCStatus)})
	table.Append([]string{"Softswitch", syncLabel(c.SyncState)})
	if c.SyncError != "" {
		table.Append([]string{"Sync error", c.SyncError})
	}
	table.Append([]string{"Created", formatTime(c.CreatedAt)})
	table.Render()
	return nil
}

func setCustomerStatus(cmd *cobra.Command, id, verb string) error {
	var c models.Customer
	path := "/api/admin/customers/" + url.PathEscape(id) + "/" + verb
	if err := call(cmd.Context(), "POST", path, nil, nil, &c); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), c)
	}
	fmt.Printf("Customer %s (%s) is now %s\n", c.AccountNumber, c.Name, c.Status)
	return nil
}

func syncLabel(s models.SyncState) string {
	switch {
	case s.SyncError != "":
		return "error"
	case s.SyncedAt != nil:
		return "#" + strconv.FormatInt(s.ExternalID, 10)
	default:
		return "pending"
	}
}
