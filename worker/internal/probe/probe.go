// Package probe inspects a downloaded source file with ffprobe and builds
// the SourceProfile that QualityPolicy and Transcoder consume. Follows the
// same ffprobe-JSON-parsing shape as other metadata extractors, expanded
// with HDR side-data classification.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avfarm/common/models"
)

// Prober wraps a local ffprobe binary.
type Prober struct {
	ffprobePath string
}

func New(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type probeSideData struct {
	SideDataType string `json:"side_data_type"`
}

type probeStream struct {
	CodecType          string          `json:"codec_type"`
	CodecName          string          `json:"codec_name"`
	Width              int             `json:"width"`
	Height             int             `json:"height"`
	PixFmt             string          `json:"pix_fmt"`
	BitRate            string          `json:"bit_rate"`
	RFrameRate         string          `json:"r_frame_rate"`
	ColorTransfer      string          `json:"color_transfer"`
	ColorPrimaries     string          `json:"color_primaries"`
	ColorSpace         string          `json:"color_space"`
	Channels           int             `json:"channels"`
	SampleRate         string          `json:"sample_rate"`
	SideDataList       []probeSideData `json:"side_data_list"`
	DolbyVisionProfile int             `json:"dv_profile"`
	Tags               struct {
		Language string `json:"language"`
	} `json:"tags"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe inspects sourcePath and returns its SourceProfile. On failure it
// returns a *models.ProbeError classified as unreadable, timeout, or
// malformed, per the HDR-classification and probe-error contracts.
func (p *Prober) Probe(ctx context.Context, sourcePath string) (*models.SourceProfile, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, &models.ProbeError{Kind: "unreadable", Message: err.Error()}
	}
	if info.IsDir() {
		return nil, &models.ProbeError{Kind: "unreadable", Message: "source path is a directory"}
	}

	cleanPath := filepath.Clean(sourcePath)

	// #nosec G204 - ffprobePath comes from static worker config, cleanPath validated above
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		cleanPath,
	)

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &models.ProbeError{Kind: "timeout", Message: err.Error()}
		}
		return nil, &models.ProbeError{Kind: "unreadable", Message: err.Error()}
	}

	var raw probeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &models.ProbeError{Kind: "malformed", Message: err.Error()}
	}

	var video *probeStream
	for i := range raw.Streams {
		if raw.Streams[i].CodecType == "video" {
			video = &raw.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, &models.ProbeError{Kind: "malformed", Message: ErrNoVideoStream.Error()}
	}

	profile := &models.SourceProfile{
		Container:  raw.Format.FormatName,
		VideoCodec: normalizeCodec(video.CodecName),
		Width:      video.Width,
		Height:     video.Height,
		BitDepth:   bitDepthFromPixFmt(video.PixFmt),
		FrameRate:  parseFrameRate(video.RFrameRate),
		BitrateBPS: firstPositive(parseInt64(video.BitRate), parseInt64(raw.Format.BitRate)),
		DurationSec: parseFloat(raw.Format.Duration),

		ColorTransfer:  video.ColorTransfer,
		ColorPrimaries: video.ColorPrimaries,
		ColorSpace:     video.ColorSpace,
	}

	for _, sd := range video.SideDataList {
		switch {
		case strings.Contains(sd.SideDataType, "Mastering display"):
			profile.MasteringDisplay = true
		case strings.Contains(sd.SideDataType, "Content light level"):
			profile.ContentLightLevel = true
		case strings.Contains(sd.SideDataType, "SMPTE2094-40"):
			profile.HDR10PlusPresent = true
		case strings.Contains(sd.SideDataType, "DOVI configuration record"), strings.Contains(sd.SideDataType, "Dolby Vision"):
			if video.DolbyVisionProfile == 0 {
				video.DolbyVisionProfile = 1
			}
		}
	}
	profile.DolbyVisionProfile = video.DolbyVisionProfile
	profile.HDRKind = classifyHDR(profile)

	for _, s := range raw.Streams {
		if s.CodecType != "audio" {
			continue
		}
		profile.AudioStreams = append(profile.AudioStreams, models.AudioStream{
			Index:        len(profile.AudioStreams),
			Codec:        normalizeCodec(s.CodecName),
			ChannelCount: s.Channels,
			BitrateBPS:   parseInt64(s.BitRate),
			SampleRateHz: int(parseInt64(s.SampleRate)),
			Language:     s.Tags.Language,
		})
	}

	return profile, nil
}

// classifyHDR applies the fixed priority order: dolby_vision_profile,
// then hdr10plus_present, then static color_transfer/mastering_display,
// else none.
func classifyHDR(p *models.SourceProfile) string {
	switch {
	case p.DolbyVisionProfile > 0:
		return "dolby_vision"
	case p.HDR10PlusPresent:
		return "hdr10plus"
	case p.ColorTransfer == "smpte2084" || p.ColorTransfer == "arib-std-b67" || p.MasteringDisplay:
		return "hdr10"
	default:
		return "none"
	}
}

func normalizeCodec(codec string) string {
	switch strings.ToLower(codec) {
	case "x264", "h.264":
		return "h264"
	case "x265", "h.265", "hevc":
		return "h265"
	case "e-ac3", "eac-3":
		return "eac3"
	default:
		return strings.ToLower(codec)
	}
}

func bitDepthFromPixFmt(pixFmt string) int {
	if strings.Contains(pixFmt, "10") {
		return 10
	}
	return 8
}

func parseFrameRate(rFrameRate string) float64 {
	parts := strings.SplitN(rFrameRate, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// ErrNoVideoStream's text is the Message of the malformed ProbeError that
// Probe returns for a file with no video track; the worker reports that
// case as skip{non_video}.
var ErrNoVideoStream = fmt.Errorf("probe: no video stream")
