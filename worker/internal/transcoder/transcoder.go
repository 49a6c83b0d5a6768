// Package transcoder wraps the ffmpeg/SVT-AV1/libopus subprocess: command
// construction, nice/ionice priority, key=value progress-stream parsing,
// and SIGTERM-then-kill cancellation. Parses ffmpeg's key=value
// `-progress pipe:2` stream instead of scraping human-readable stderr.
package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avfarm/common/models"
)

// Progress is one tick of the encoder's reported state.
type Progress struct {
	Percent float64
	FPS     float64
	ETA     int64 // seconds
}

// ProgressFunc receives progress ticks at roughly the encoder's own
// reporting rate (≥1 Hz for ffmpeg's default -progress cadence).
type ProgressFunc func(Progress)

type Transcoder struct {
	ffmpegPath    string
	niceValue     int
	ionicePrio    int
	sigtermGrace  time.Duration
}

func New(ffmpegPath string, niceValue, ionicePrio int, sigtermGrace time.Duration) *Transcoder {
	if sigtermGrace <= 0 {
		sigtermGrace = 5 * time.Second
	}
	return &Transcoder{
		ffmpegPath:   ffmpegPath,
		niceValue:    niceValue,
		ionicePrio:   ionicePrio,
		sigtermGrace: sigtermGrace,
	}
}

// Result is returned on a successful encode.
type Result struct {
	OutputPath string
	OutputSize int64
}

// Encode runs the encoder to completion, or until ctx is cancelled. On
// cancellation it sends SIGTERM, waits sigtermGrace, then SIGKILLs, and
// always removes a partial output file.
func (t *Transcoder) Encode(
	ctx context.Context,
	sourcePath, outputPath string,
	params *models.EncodeParams,
	durationSec float64,
	onProgress ProgressFunc,
) (*Result, error) {
	args := t.buildArgs(sourcePath, outputPath, params)

	name, cmdArgs := t.ffmpegPath, args
	if t.ionicePrio > 0 {
		cmdArgs = append([]string{"-n", strconv.Itoa(t.ionicePrio), name}, cmdArgs...)
		name = "ionice"
	}
	if t.niceValue != 0 {
		cmdArgs = append([]string{"-n", strconv.Itoa(t.niceValue), name}, cmdArgs...)
		name = "nice"
	}

	// #nosec G204 - ffmpegPath is static worker config, args are built from validated EncodeParams
	cmd := exec.Command(name, cmdArgs...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &models.TranscodeError{Kind: "io_error", Message: err.Error()}
	}

	slog.Debug("starting transcode", "args", args)

	if err := cmd.Start(); err != nil {
		return nil, &models.TranscodeError{Kind: "io_error", Message: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	go scanProgress(stderr, durationSec, onProgress)

	select {
	case <-ctx.Done():
		t.cancel(cmd, done)
		_ = os.Remove(outputPath)
		return nil, &models.TranscodeError{Kind: "killed", Message: "cancelled"}
	case err := <-done:
		if err != nil {
			exitCode := -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
			_ = os.Remove(outputPath)
			return nil, &models.TranscodeError{Kind: "encoder_crash", Message: err.Error(), ExitCode: exitCode}
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &models.TranscodeError{Kind: "io_error", Message: err.Error()}
	}
	if info.Size() == 0 {
		_ = os.Remove(outputPath)
		return nil, &models.TranscodeError{Kind: "empty_output", Message: "encoder produced an empty file"}
	}

	return &Result{OutputPath: outputPath, OutputSize: info.Size()}, nil
}

// cancel sends SIGTERM and escalates to SIGKILL after sigtermGrace if the
// process hasn't exited.
func (t *Transcoder) cancel(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(t.sigtermGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func (t *Transcoder) buildArgs(sourcePath, outputPath string, params *models.EncodeParams) []string {
	args := []string{
		"-i", sourcePath,
		"-map", "0",
		"-c:v", "libsvtav1",
		"-preset", strconv.Itoa(params.Preset),
		"-crf", strconv.Itoa(params.CRF),
		"-pix_fmt", params.PixelFormat,
	}

	if params.Color != nil && params.Color.EnableHDR {
		args = append(args,
			"-color_primaries", params.Color.ColorPrimaries,
			"-color_trc", params.Color.ColorTransfer,
			"-colorspace", params.Color.ColorSpace,
			"-svtav1-params", "enable-hdr=1",
		)
	}

	if params.SkipAudioTranscode {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", "libopus")
		for _, plan := range params.AudioPlans {
			args = append(args,
				fmt.Sprintf("-b:a:%d", plan.StreamIndex),
				fmt.Sprintf("%dk", plan.BitrateKbps),
			)
		}
	}

	if params.CopySubtitles {
		args = append(args, "-c:s", "copy")
	}
	if params.CopyMetadata {
		args = append(args, "-map_metadata", "0")
	}

	args = append(args, "-progress", "pipe:2", "-nostats", "-y", outputPath)
	return args
}

// scanProgress parses ffmpeg's `-progress pipe:2` key=value stream.
// Each block of lines ends with "progress=continue" or "progress=end";
// we emit one Progress tick per block.
func scanProgress(r io.Reader, durationSec float64, onProgress ProgressFunc) {
	if onProgress == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	block := map[string]string{}

	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		block[key] = value

		if key != "progress" {
			continue
		}

		outUs, _ := strconv.ParseFloat(block["out_time_us"], 64)
		fps, _ := strconv.ParseFloat(block["fps"], 64)

		var percent float64
		if durationSec > 0 {
			percent = min(100, (outUs/1_000_000)/durationSec*100)
		}

		var eta int64
		if fps > 0 && durationSec > 0 {
			elapsed := outUs / 1_000_000
			remaining := durationSec - elapsed
			if remaining > 0 {
				eta = int64(remaining)
			}
		}

		onProgress(Progress{Percent: percent, FPS: fps, ETA: eta})
		block = map[string]string{}
	}
}
