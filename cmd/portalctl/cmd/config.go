package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current flags to $HOME/.portalctl/config.yaml",
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
}

// cliConfig is the on-disk CLI configuration
type cliConfig struct {
	ServerURL string `json:"server_url" yaml:"server_url"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Insecure  bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	CACert    string `json:"ca_cert,omitempty" yaml:"ca_cert,omitempty"`
}

func currentConfig(redact bool) cliConfig {
	c := cliConfig{ServerURL: ServerURL(), APIKey: apiKey, Insecure: insecure, CACert: caCert}
	if redact && c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c := currentConfig(true)
	if outputFormat == "json" {
		return printStructured(stdout(), c)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# loaded from %s\n", used)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(c)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to find home directory: %w", err)
		}
		path = filepath.Join(home, ".portalctl", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(currentConfig(false))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
