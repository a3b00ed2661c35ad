package main

import (
	"context"
	"os"

	"creditiq/pkg/core/config"
	"creditiq/pkg/core/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries the flags and configuration shared by every subcommand.
type cli struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "creditiq",
		Short: "Preliminary credit analysis of SEC 10-Q filings",
		Long: `CreditIQ extracts a structured financial record from a quarterly filing,
derives liquidity, leverage and cash flow ratios, drafts a preliminary credit
rating summary and cross-checks the extracted figures against the source.

The rating guidance is advisory. Final decisions rest with the credit team.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("provider", "", "LLM provider (azure, openai, deepseek, qwen, gemini, mock)")
	flags.String("results-dir", "", "directory for run artifacts")
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = c.v.BindPFlag("store.results_dir", flags.Lookup("results-dir"))

	root.AddCommand(
		newRunCmd(c),
		newBatchCmd(c),
		newCompareCmd(c),
		newExportCmd(c),
		newServeCmd(c),
	)
	return root
}

func (c *cli) load() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	}
	cfg, err := config.Load(c.v, c.envFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	logging.Init(cfg.LogLevel, os.Stderr)
	return nil
}

// app builds the full pipeline; callers must Close it.
func (c *cli) app(ctx context.Context) (*app, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	return newApp(ctx, c.cfg)
}
