package main

import (
	"github.com/spf13/cobra"

	"github.com/cwygoda/vidbot/internal/config"
	"github.com/cwygoda/vidbot/internal/extract"
)

// commandContext lazily loads the configuration shared by all commands.
type commandContext struct {
	configFlag *string
	cfg        *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "vidbot",
		Short:         "Download chat-posted videos and re-encode them for delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == cmd.Root() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}

// newExtractor builds the built-in patterns plus the configured extras.
func newExtractor(cfg *config.Config) (*extract.Extractor, error) {
	ext := extract.New()
	for _, p := range cfg.Patterns {
		if err := ext.Register(p.Name, p.Pattern); err != nil {
			return nil, err
		}
	}
	return ext, nil
}
