package transcoder

import (
	"strings"
	"testing"

	"github.com/avfarm/common/models"
)

func TestBuildArgsSDR(t *testing.T) {
	tc := New("ffmpeg", 6, 0, 0)
	params := &models.EncodeParams{
		CRF:                28,
		Preset:              6,
		PixelFormat:         "yuv420p",
		SkipAudioTranscode: true,
		CopySubtitles:      true,
		CopyMetadata:       true,
	}
	args := tc.buildArgs("in.mkv", "out.mkv", params)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-c:v libsvtav1", "-crf 28", "-preset 6", "-c:a copy", "-c:s copy", "-map_metadata 0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got %q", want, joined)
		}
	}
	if strings.Contains(joined, "enable-hdr") {
		t.Errorf("did not expect HDR flags for SDR params, got %q", joined)
	}
}

func TestBuildArgsHDR10(t *testing.T) {
	tc := New("ffmpeg", 6, 0, 0)
	params := &models.EncodeParams{
		CRF:         20,
		Preset:      4,
		PixelFormat: "yuv420p10le",
		Color: &models.ColorParams{
			ColorPrimaries: "bt2020",
			ColorTransfer:  "smpte2084",
			ColorSpace:     "bt2020nc",
			EnableHDR:      true,
		},
		AudioPlans: []models.AudioBitratePlan{{StreamIndex: 0, BitrateKbps: 128}},
	}
	args := tc.buildArgs("in.mkv", "out.mkv", params)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-color_primaries bt2020", "-color_trc smpte2084", "-colorspace bt2020nc", "enable-hdr=1", "-c:a libopus", "-b:a:0 128k"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected args to contain %q, got %q", want, joined)
		}
	}
}

func TestScanProgressEmitsPercentAndETA(t *testing.T) {
	stream := "out_time_us=50000000\nfps=25.0\nprogress=continue\nout_time_us=100000000\nfps=25.0\nprogress=end\n"

	var ticks []Progress
	scanProgress(strings.NewReader(stream), 100, func(p Progress) {
		ticks = append(ticks, p)
	})

	if len(ticks) != 2 {
		t.Fatalf("expected 2 progress ticks, got %d", len(ticks))
	}
	if ticks[0].Percent != 50 {
		t.Errorf("expected 50%% at 50s of 100s, got %v", ticks[0].Percent)
	}
	if ticks[1].Percent != 100 {
		t.Errorf("expected 100%% at 100s of 100s, got %v", ticks[1].Percent)
	}
	if ticks[0].ETA != 50 {
		t.Errorf("expected 50s ETA at the halfway point, got %v", ticks[0].ETA)
	}
}

func TestNewDefaultsSigtermGrace(t *testing.T) {
	tc := New("ffmpeg", 0, 0, 0)
	if tc.sigtermGrace <= 0 {
		t.Errorf("expected a positive default sigterm grace, got %v", tc.sigtermGrace)
	}
}
