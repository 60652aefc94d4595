package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var showPattern bool
	cmd := &cobra.Command{
		Use:   "extract <text...>",
		Short: "Print the video URLs a chat message would queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ext, err := newExtractor(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			text := strings.Join(args, " ")
			if !showPattern {
				for _, u := range ext.Extract(text) {
					fmt.Fprintln(out, u)
				}
				return nil
			}
			for _, p := range ext.Patterns() {
				for _, u := range p.FindAll(text) {
					fmt.Fprintf(out, "%s\t%s\n", p.Name, u)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPattern, "pattern", false, "Prefix each URL with the pattern that matched it")
	return cmd
}
