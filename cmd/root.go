package cmd

import (
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-connect/core/config"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-connect",
	Short: "WhatsApp multi-provider channel engine",
	Long: `az-connect manages WhatsApp channels across providers (QR session gateways and the
Cloud API): connection lifecycle, inbound webhooks, message ordering and self-healing.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initApp)
}

// initFlags binds the persistent flags into viper under the same keys as the
// environment variables, so config.LoadConfig sees a single source.
func initFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.StringSliceP("basic-auth", "b", nil, "basic auth credential | -b=yourUsername:yourPassword")
	flags.String("base-path", "", `base path for subpath deployment --base-path <string> | example: --base-path="/connect"`)
	flags.String("db-driver", "", `database driver (sqlite or postgres) --db-driver <string> | example: --db-driver=postgres`)
	flags.String("db-name", "", `database name, or file path for sqlite --db-name <string> | example: --db-name="storages/app.db"`)
	flags.String("server-id", "", `stable id of this instance, used for locks and websocket fan-out --server-id <string>`)
	flags.String("pipeline-url", "", `forward admitted messages to this url --pipeline-url <string> | example: --pipeline-url="https://bot.internal/incoming"`)

	bindings := map[string]string{
		"app_port":      "port",
		"app_debug":     "debug",
		"app_base_path": "base-path",
		"db_driver":     "db-driver",
		"db_name":       "db-name",
		"server_id":     "server-id",
		"pipeline_url":  "pipeline-url",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logrus.Fatalf("[CONFIG] Could not bind flag %s: %v", flag, err)
		}
	}
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	if ba, _ := rootCmd.PersistentFlags().GetStringSlice("basic-auth"); len(ba) > 0 {
		cfg.App.BasicAuth = ba
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(cfg.Paths.Storages, 0755); err != nil {
		logrus.Errorln(err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
