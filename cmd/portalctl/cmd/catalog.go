package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/models"
)

var (
	rateCardDirection string
	didStatus         string
	didCountry        string
)

var carriersCmd = &cobra.Command{
	Use:   "carriers",
	Short: "Inspect upstream carriers",
}

var carriersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List carriers",
	RunE:  runCarriersList,
}

var rateCardsCmd = &cobra.Command{
	Use:     "rate-cards",
	Aliases: []string{"ratecards"},
	Short:   "Inspect buy and sell rate cards",
}

var rateCardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rate cards",
	RunE:  runRateCardsList,
}

var didsCmd = &cobra.Command{
	Use:   "dids",
	Short: "Inspect the DID inventory",
}

var didsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List DIDs",
	RunE:  runDIDsList,
}

func init() {
	rootCmd.AddCommand(carriersCmd, rateCardsCmd, didsCmd)
	carriersCmd.AddCommand(carriersListCmd)
	rateCardsCmd.AddCommand(rateCardsListCmd)
	didsCmd.AddCommand(didsListCmd)

	addPageFlags(carriersListCmd)
	addPageFlags(rateCardsListCmd)
	addPageFlags(didsListCmd)
	rateCardsListCmd.Flags().StringVar(&rateCardDirection, "direction", "", "buy or sell")
	didsListCmd.Flags().StringVar(&didStatus, "status", "", "available, assigned or reserved")
	didsListCmd.Flags().StringVar(&didCountry, "country", "", "ISO country code")
}

func runCarriersList(cmd *cobra.Command, args []string) error {
	var result models.ListResponse[models.Carrier]
	if err := call(cmd.Context(), "GET", "/api/admin/carriers", pageQuery(), nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("No carriers configured")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Host", "Protocol", "Priority", "Channels", "Status", "Synced")
	for _, c := range result.Items {
		table.Append(
			c.Name,
			fmt.Sprintf("%s:%d", c.Host, c.Port),
			c.Protocol,
			strconv.Itoa(c.Priority),
			strconv.Itoa(c.ChannelLimit),
			c.Status,
			syncLabel(c.SyncState),
		)
	}
	table.Render()
	fmt.Printf("\nTotal carriers: %d\n", result.Total)
	return nil
}

func runRateCardsList(cmd *cobra.Command, args []string) error {
	q := pageQuery()
	if rateCardDirection != "" {
		q.Set("direction", rateCardDirection)
	}
	var result models.ListResponse[models.RateCard]
	if err := call(cmd.Context(), "GET", "/api/admin/rate-cards", q, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("No rate cards found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Direction", "Currency", "Rates", "Synced")
	for _, rc := range result.Items {
		table.Append(rc.ID, rc.Name, rc.Direction, rc.Currency, strconv.Itoa(rc.RateCount), syncLabel(rc.SyncState))
	}
	table.Render()
	fmt.Printf("\nTotal rate cards: %d\n", result.Total)
	return nil
}

func runDIDsList(cmd *cobra.Command, args []string) error {
	q := pageQuery()
	if didStatus != "" {
		q.Set("status", didStatus)
	}
	if didCountry != "" {
		q.Set("country", didCountry)
	}
	var result models.ListResponse[models.DID]
	if err := call(cmd.Context(), "GET", "/api/admin/dids", q, nil, &result); err != nil {
		return err
	}
	if !IsTableOutput() {
		return printStructured(stdout(), result)
	}
	if len(result.Items) == 0 {
		fmt.Println("No DIDs found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Number", "Country", "Type", "Monthly", "Status", "Customer")
	for _, d := range result.Items {
		table.Append(d.Number, d.Country, d.Type, d.MonthlyPrice.String(), d.Status, orDash(d.CustomerID))
	}
	table.Render()
	fmt.Printf("\nShowing %d of %d DIDs\n", result.Count, result.Total)
	return nil
}
