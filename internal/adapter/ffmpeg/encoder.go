// Package ffmpeg encodes fetched videos to the fixed delivery profile,
// preferring NVENC and falling back to libx264.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwygoda/vidbot/internal/command"
	"github.com/cwygoda/vidbot/internal/domain"
)

// Profile settings shared by both encode paths.
const (
	DefaultBinary = "ffmpeg"

	HardwareEncoder = "h264_nvenc"
	SoftwareEncoder = "libx264"

	EvenDimensionsFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p"
	VideoProfile         = "baseline"
	VideoLevel           = "3.1"
	Quality              = "18"

	AudioCodec   = "aac"
	AudioBitrate = "160k"

	FastStartFlag = "+faststart"
)

// Options configures an Encoder. Zero values fall back to defaults.
type Options struct {
	Binary       string
	OutputDir    string
	ProfileTag   string
	ProbeTimeout time.Duration
	Timeout      time.Duration
}

// Encoder runs the hardware encode when available and the software encode
// otherwise or after a hardware failure.
type Encoder struct {
	runner command.Runner
	opts   Options
	logger *slog.Logger
}

// NewEncoder creates a new ffmpeg encoder.
func NewEncoder(runner command.Runner, opts Options, logger *slog.Logger) *Encoder {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.ProfileTag == "" {
		opts.ProfileTag = domain.DefaultProfileTag
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{runner: runner, opts: opts, logger: logger.With("component", "encode")}
}

// OutputPath returns where req's output is written.
func (e *Encoder) OutputPath(req domain.EncodeRequest) string {
	return filepath.Join(e.opts.OutputDir, domain.OutputFileName(req.Title, req.StartedAt, e.opts.ProfileTag))
}

// HardwareAvailable asks ffmpeg whether it lists the NVENC encoder. Any probe
// error counts as unavailable. The answer is not cached.
func (e *Encoder) HardwareAvailable(ctx context.Context) bool {
	res, err := e.runner.Run(ctx, command.Cmd{
		Name:    e.opts.Binary,
		Args:    []string{"-hide_banner", "-encoders"},
		Timeout: e.opts.ProbeTimeout,
	})
	if err != nil {
		e.logger.Debug("encoder probe failed", "error", err)
		return false
	}
	return bytes.Contains(res.Stdout, []byte(HardwareEncoder))
}

// Encode transcodes req.InputPath. Each attempt writes to a hidden partial
// file next to the output, renamed into place only after a clean exit, so a
// failed attempt never touches an existing file of the same name.
func (e *Encoder) Encode(ctx context.Context, req domain.EncodeRequest) (domain.EncodeResult, error) {
	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return domain.EncodeResult{}, fmt.Errorf("create output dir: %w", err)
	}
	out := e.OutputPath(req)

	var hwErr error
	if e.HardwareAvailable(ctx) {
		e.logger.Info("using hardware encoding", "encoder", HardwareEncoder, "output", filepath.Base(out))
		if hwErr = e.attempt(ctx, req.InputPath, out, HardwareArgs); hwErr == nil {
			return domain.EncodeResult{OutputPath: out, Method: domain.MethodGPU}, nil
		}
		hwErr = fmt.Errorf("%w: %w", domain.ErrEncodeHardware, hwErr)
		e.logger.Warn("hardware encoding failed, falling back to software", "error", hwErr)
	} else {
		e.logger.Info("hardware encoder not available, using software encoding", "encoder", SoftwareEncoder)
	}

	if err := e.attempt(ctx, req.InputPath, out, SoftwareArgs); err != nil {
		return domain.EncodeResult{}, errors.Join(fmt.Errorf("%w: %w", domain.ErrEncodeSoftware, err), hwErr)
	}
	return domain.EncodeResult{OutputPath: out, Method: domain.MethodCPU}, nil
}

// PartialPath is where an encode writes before it is moved to out.
func PartialPath(out string) string {
	return filepath.Join(filepath.Dir(out), "."+strings.TrimSuffix(filepath.Base(out), ".mp4")+".partial.mp4")
}

func (e *Encoder) attempt(ctx context.Context, input, out string, build func(input, output string) []string) error {
	partial := PartialPath(out)
	if err := e.run(ctx, build(input, partial)); err != nil {
		e.removePartial(partial)
		return err
	}
	if err := os.Rename(partial, out); err != nil {
		e.removePartial(partial)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

func (e *Encoder) run(ctx context.Context, args []string) error {
	_, err := e.runner.Run(ctx, command.Cmd{Name: e.opts.Binary, Args: args, Timeout: e.opts.Timeout})
	return err
}

func (e *Encoder) removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("remove partial output failed", "path", path, "error", err)
	}
}

// HardwareArgs builds the NVENC invocation: constant-quality VBR.
func HardwareArgs(input, output string) []string {
	args := []string{
		"-i", input,
		"-vf", EvenDimensionsFilter,
		"-c:v", HardwareEncoder,
		"-preset", "p4",
		"-tune", "hq",
		"-rc", "vbr",
		"-cq", Quality,
		"-b:v", "0",
	}
	return append(args, commonArgs(output)...)
}

// SoftwareArgs builds the libx264 invocation: slow preset, CRF.
func SoftwareArgs(input, output string) []string {
	args := []string{
		"-i", input,
		"-vf", EvenDimensionsFilter,
		"-c:v", SoftwareEncoder,
		"-preset", "slow",
		"-crf", Quality,
	}
	return append(args, commonArgs(output)...)
}

func commonArgs(output string) []string {
	return []string{
		"-profile:v", VideoProfile,
		"-level", VideoLevel,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-movflags", FastStartFlag,
		"-y",
		output,
	}
}
