package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ctagard/testops-mcp/internal/config"
	"github.com/ctagard/testops-mcp/internal/logging"
	"github.com/ctagard/testops-mcp/internal/version"
)

var (
	configPath string
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:           "testops-mcp",
	Short:         "Playwright test automation tools over the Model Context Protocol",
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `testops-mcp is a Model Context Protocol (MCP) server that gives AI agents
test automation tools for Playwright suites: test generation, failure analysis,
test data and environment management, run monitoring and alerting.

TOOLS:
    Authoring:
        generate_test_case       Render a UI or API test skeleton
        generate_api_tests       Render a request test for one endpoint
        auto_heal_locators       Suggest replacement locators
        analyze_test_failure     Diagnose a failure and suggest fixes

    Data:
        manage_test_data         Generate, update, validate and back up test data
        manage_environment       Create, update, validate and switch environments

    Monitoring:
        monitor_test_execution   Start, update, stop and inspect test runs
        get_insights             Summarize monitored runs
        setup_alerts             Persist an alert rule
        check_alerts             Evaluate alert rules against event data

CONFIGURATION:
    Settings come from defaults, then --config (YAML, JSON or TOML), then
    TESTOPS_* environment variables, then flags. For example:

        listenAddress: localhost:3001
        dataFile: config/config.yaml
        alertsFile: config/alerts.json
        lockTimeout: 5s
        logLevel: info`,
}

func init() {
	rootCmd.SetVersionTemplate(version.GetInfo().String() + "\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to configuration file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	mustBind(v, "logLevel", flags.Lookup("log-level"))
	mustBind(v, "logFormat", flags.Lookup("log-format"))

	rootCmd.AddCommand(newServeCmd(), newCallCmd(), newVersionCmd())
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag for %s: %v", key, err))
	}
}

// loadConfig resolves the layered configuration and builds the logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
	})
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
