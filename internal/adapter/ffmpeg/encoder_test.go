package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwygoda/vidbot/internal/command"
	"github.com/cwygoda/vidbot/internal/command/commandtest"
	"github.com/cwygoda/vidbot/internal/domain"
)

const encoderListing = ` V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
`

// fakeFFmpeg answers the encoder probe and writes the output file for encode
// invocations unless the chosen codec is set to fail.
type fakeFFmpeg struct {
	listing  string
	probeErr error
	failHW   bool
	failSW   bool
}

func (f fakeFFmpeg) handle(ctx context.Context, cmd command.Cmd) (command.Result, error) {
	if commandtest.HasArg(cmd, "-encoders") {
		return command.Result{Stdout: []byte(f.listing)}, f.probeErr
	}
	out := cmd.Args[len(cmd.Args)-1]
	if err := os.WriteFile(out, []byte("partial"), 0644); err != nil {
		return command.Result{}, err
	}
	switch commandtest.ArgAfter(cmd, "-c:v") {
	case HardwareEncoder:
		if f.failHW {
			return command.Result{}, errors.New("exit status 1")
		}
	case SoftwareEncoder:
		if f.failSW {
			return command.Result{}, errors.New("exit status 1")
		}
	}
	return command.Result{}, nil
}

func newTestEncoder(t *testing.T, f fakeFFmpeg) (*Encoder, *commandtest.Runner, string) {
	t.Helper()
	outDir := filepath.Join(t.TempDir(), "output")
	runner := &commandtest.Runner{Handler: f.handle}
	return NewEncoder(runner, Options{OutputDir: outDir}, nil), runner, outDir
}

func testRequest() domain.EncodeRequest {
	return domain.EncodeRequest{
		InputPath: "/work/job/input_video.webm",
		Title:     "My_Video",
		StartedAt: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC),
	}
}

func encodeCodecs(calls []command.Cmd) []string {
	var codecs []string
	for _, c := range calls {
		if codec := commandtest.ArgAfter(c, "-c:v"); codec != "" {
			codecs = append(codecs, codec)
		}
	}
	return codecs
}

func TestEncoder_HardwareSuccess(t *testing.T) {
	e, runner, outDir := newTestEncoder(t, fakeFFmpeg{listing: encoderListing})

	res, err := e.Encode(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if res.Method != domain.MethodGPU {
		t.Errorf("Method = %q, want %q", res.Method, domain.MethodGPU)
	}
	want := filepath.Join(outDir, "My_Video-03-05-24_14:30-x220.mp4")
	if res.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", res.OutputPath, want)
	}
	if got := encodeCodecs(runner.Calls()); len(got) != 1 || got[0] != HardwareEncoder {
		t.Errorf("encode attempts = %v, want [%s]", got, HardwareEncoder)
	}
}

func TestEncoder_HardwareFailsFallsBack(t *testing.T) {
	e, runner, _ := newTestEncoder(t, fakeFFmpeg{listing: encoderListing, failHW: true})

	res, err := e.Encode(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if res.Method != domain.MethodCPU {
		t.Errorf("Method = %q, want %q", res.Method, domain.MethodCPU)
	}
	got := encodeCodecs(runner.Calls())
	if len(got) != 2 || got[0] != HardwareEncoder || got[1] != SoftwareEncoder {
		t.Errorf("encode attempts = %v, want hardware then software", got)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestEncoder_NoHardware(t *testing.T) {
	tests := []struct {
		name string
		ff   fakeFFmpeg
	}{
		{"not listed", fakeFFmpeg{listing: " V....D libx264 H.264\n"}},
		{"probe error", fakeFFmpeg{listing: encoderListing, probeErr: errors.New("not found")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, runner, _ := newTestEncoder(t, tt.ff)
			res, err := e.Encode(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if res.Method != domain.MethodCPU {
				t.Errorf("Method = %q, want %q", res.Method, domain.MethodCPU)
			}
			if got := encodeCodecs(runner.Calls()); len(got) != 1 || got[0] != SoftwareEncoder {
				t.Errorf("encode attempts = %v, want [%s]", got, SoftwareEncoder)
			}
		})
	}
}

func TestEncoder_BothFail(t *testing.T) {
	e, _, outDir := newTestEncoder(t, fakeFFmpeg{listing: encoderListing, failHW: true, failSW: true})

	_, err := e.Encode(context.Background(), testRequest())
	if !errors.Is(err, domain.ErrEncodeSoftware) {
		t.Errorf("Encode() error = %v, want %v", err, domain.ErrEncodeSoftware)
	}
	if !errors.Is(err, domain.ErrEncodeHardware) {
		t.Errorf("Encode() error = %v, should also carry %v", err, domain.ErrEncodeHardware)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("partial output left behind: %v", entries)
	}
}

func TestEncoder_WritesPartialThenRenames(t *testing.T) {
	e, runner, outDir := newTestEncoder(t, fakeFFmpeg{listing: encoderListing})

	res, err := e.Encode(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var encodeOut string
	for _, c := range runner.Calls() {
		if commandtest.ArgAfter(c, "-c:v") != "" {
			encodeOut = c.Args[len(c.Args)-1]
		}
	}
	if encodeOut != PartialPath(res.OutputPath) {
		t.Errorf("ffmpeg wrote to %q, want %q", encodeOut, PartialPath(res.OutputPath))
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 || entries[0].Name() != filepath.Base(res.OutputPath) {
		t.Errorf("output dir = %v, want only the final file", entries)
	}
}

// A failed job sharing title and minute with a delivered one must leave the
// delivered file alone.
func TestEncoder_FailureKeepsExistingOutput(t *testing.T) {
	e, _, _ := newTestEncoder(t, fakeFFmpeg{listing: encoderListing})
	first, err := e.Encode(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := os.WriteFile(first.OutputPath, []byte("delivered"), 0644); err != nil {
		t.Fatal(err)
	}

	e.runner = &commandtest.Runner{Handler: fakeFFmpeg{listing: encoderListing, failHW: true, failSW: true}.handle}
	req := testRequest()
	req.StartedAt = req.StartedAt.Add(20 * time.Second)
	if _, err := e.Encode(context.Background(), req); err == nil {
		t.Fatal("Encode() error = nil, want failure")
	}

	data, err := os.ReadFile(first.OutputPath)
	if err != nil {
		t.Fatalf("delivered output removed: %v", err)
	}
	if string(data) != "delivered" {
		t.Errorf("delivered output overwritten with %q", data)
	}
	if _, err := os.Stat(PartialPath(first.OutputPath)); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestPartialPath(t *testing.T) {
	if got := PartialPath("/out/clip-03-05-24_14:30-x220.mp4"); got != "/out/.clip-03-05-24_14:30-x220.partial.mp4" {
		t.Errorf("PartialPath() = %q", got)
	}
}

func TestEncoder_ProbedPerCall(t *testing.T) {
	e, runner, _ := newTestEncoder(t, fakeFFmpeg{listing: encoderListing})

	for i := 0; i < 2; i++ {
		if _, err := e.Encode(context.Background(), testRequest()); err != nil {
			t.Fatal(err)
		}
	}
	probes := 0
	for _, c := range runner.Calls() {
		if commandtest.HasArg(c, "-encoders") {
			probes++
		}
	}
	if probes != 2 {
		t.Errorf("capability probes = %d, want one per encode", probes)
	}
}

func TestHardwareArgs(t *testing.T) {
	args := HardwareArgs("in.webm", "out.mp4")
	cmd := command.Cmd{Args: args}

	checks := map[string]string{
		"-i":         "in.webm",
		"-vf":        EvenDimensionsFilter,
		"-c:v":       "h264_nvenc",
		"-preset":    "p4",
		"-tune":      "hq",
		"-rc":        "vbr",
		"-cq":        "18",
		"-b:v":       "0",
		"-profile:v": "baseline",
		"-level":     "3.1",
		"-c:a":       "aac",
		"-b:a":       "160k",
		"-movflags":  "+faststart",
	}
	for flag, want := range checks {
		if got := commandtest.ArgAfter(cmd, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
	if args[len(args)-1] != "out.mp4" || args[len(args)-2] != "-y" {
		t.Errorf("args should end with -y out.mp4: %v", args)
	}
}

func TestSoftwareArgs(t *testing.T) {
	args := SoftwareArgs("in.webm", "out.mp4")
	cmd := command.Cmd{Args: args}

	checks := map[string]string{
		"-c:v":       "libx264",
		"-preset":    "slow",
		"-crf":       "18",
		"-profile:v": "baseline",
		"-b:a":       "160k",
		"-movflags":  "+faststart",
	}
	for flag, want := range checks {
		if got := commandtest.ArgAfter(cmd, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
	if commandtest.HasArg(cmd, "-cq") {
		t.Error("software args must not carry NVENC rate control")
	}
}
