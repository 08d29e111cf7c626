package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL    string
	outputFormat string
	cfgFile      string
	apiKey       string
	insecure     bool
	caCert       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "CLI for the Voxlane back-office",
	Long:          `portalctl manages customers, the carrier catalog, the trash bin and softswitch synchronisation through the admin API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "table", "json", "yaml":
			return nil
		}
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", outputFormat)
	},
}

// Execute adds all child commands to the root command and runs it.
// Ctrl-C cancels in-flight requests.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.portalctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API URL (default from config or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "admin API key or session token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&caCert, "ca-cert", "", "CA certificate to trust for a self-signed server")
}

// initConfig reads the config file and PORTALCTL_* environment variables
func initConfig() {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".portalctl"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PORTALCTL")
	v.AutomaticEnv()
	v.BindEnv("api_key", "PORTALCTL_API_KEY", "VOXLANE_AUTH_ADMIN_API_KEY")
	v.BindEnv("server_url", "PORTALCTL_SERVER_URL")

	if err := v.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read %s: %v\n", cfgFile, err)
	}

	if serverURL == "" {
		serverURL = v.GetString("server_url")
	}
	if apiKey == "" {
		apiKey = v.GetString("api_key")
	}
	if !insecure {
		insecure = v.GetBool("insecure")
	}
	if caCert == "" {
		caCert = v.GetString("ca_cert")
	}
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
}

// ServerURL returns the configured API URL without trailing slashes
func ServerURL() string {
	return strings.TrimRight(serverURL, "/")
}
