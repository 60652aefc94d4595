package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwygoda/vidbot/internal/adapter/ffmpeg"
	"github.com/cwygoda/vidbot/internal/command"
	"github.com/cwygoda/vidbot/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that yt-dlp, ffmpeg and the hardware encoder are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Tools(cfg.Tools.YtDlp, cfg.Tools.FFmpeg))
			if statuses[1].Available {
				enc := ffmpeg.NewEncoder(command.NewExecRunner(), ffmpeg.Options{
					Binary:       cfg.Tools.FFmpeg,
					ProbeTimeout: cfg.Timeouts.Probe.Duration,
				}, nil)
				statuses = append(statuses, deps.CheckHardwareEncoder(cmd.Context(), enc, ffmpeg.HardwareEncoder))
			}

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "ok"
				switch {
				case !s.Available && s.Optional:
					state = "optional"
				case !s.Available:
					state = "missing"
				}
				rows = append(rows, []string{s.Name, s.Command, state, s.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Dependency", "Command", "Status", "Detail"}, rows, nil))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
}
