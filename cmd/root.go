package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/cros-updates/cros-updates/internal/utils"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
	jsonLog    bool

	cm  *config.Manager
	log *zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "cros-updates",
		Short:         "cros-updates watches Chromebooks for ChromeOS updates and announces new versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "path to the config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config; ignored when missing")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	flags.BoolVar(&opts.jsonLog, "json-log", false, "log as JSON instead of console output")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newCheckCommand(opts),
	)
	return rootCmd
}

func (o *globalOptions) init(cmd *cobra.Command) error {
	if err := loadEnvFile(o.envFile); err != nil {
		return err
	}

	var mutators []func(*config.Config)
	if cmd.Flags().Changed("log-level") {
		mutators = append(mutators, config.SetLogLevel(o.logLevel))
	}
	if cmd.Flags().Changed("json-log") {
		mutators = append(mutators, config.SetJSONLogging(o.jsonLog))
	}

	cm, warnings, err := utils.InitConfig(o.configPath, mutators...)
	if err != nil {
		return fmt.Errorf("error initializing config: %w", err)
	}

	ctx, log := utils.InitLogger(cmd.Context(), cm.Config(), warnings)
	cmd.SetContext(ctx)

	o.cm = cm
	o.log = log
	return nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
