package probe

import (
	"context"
	"testing"

	"github.com/avfarm/common/models"
)

func TestProbeUnreadableSource(t *testing.T) {
	p := New("ffprobe")
	_, err := p.Probe(context.Background(), "/nonexistent/path.mkv")

	var pErr *models.ProbeError
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
	if perr, ok := err.(*models.ProbeError); ok {
		pErr = perr
	}
	if pErr == nil || pErr.Kind != "unreadable" {
		t.Fatalf("expected unreadable ProbeError, got %v", err)
	}
}

func TestClassifyHDRPriorityOrder(t *testing.T) {
	cases := []struct {
		name string
		p    *models.SourceProfile
		want string
	}{
		{"dolby vision wins over hdr10plus", &models.SourceProfile{DolbyVisionProfile: 5, HDR10PlusPresent: true}, "dolby_vision"},
		{"hdr10plus wins over static hdr10", &models.SourceProfile{HDR10PlusPresent: true, ColorTransfer: "smpte2084"}, "hdr10plus"},
		{"smpte2084 classifies as hdr10", &models.SourceProfile{ColorTransfer: "smpte2084"}, "hdr10"},
		{"mastering display alone classifies as hdr10", &models.SourceProfile{MasteringDisplay: true}, "hdr10"},
		{"sdr source classifies as none", &models.SourceProfile{ColorTransfer: "bt709"}, "none"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := classifyHDR(c.p); got != c.want {
				t.Errorf("classifyHDR() = %s, want %s", got, c.want)
			}
		})
	}
}

func TestNormalizeCodec(t *testing.T) {
	cases := map[string]string{
		"x264": "h264",
		"hevc": "h265",
		"HEVC": "h265",
		"e-ac3": "eac3",
		"aac":  "aac",
	}
	for in, want := range cases {
		if got := normalizeCodec(in); got != want {
			t.Errorf("normalizeCodec(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestBitDepthFromPixFmt(t *testing.T) {
	if got := bitDepthFromPixFmt("yuv420p10le"); got != 10 {
		t.Errorf("expected 10-bit, got %d", got)
	}
	if got := bitDepthFromPixFmt("yuv420p"); got != 8 {
		t.Errorf("expected 8-bit, got %d", got)
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := parseFrameRate("24000/1001"); got < 23.9 || got > 24.0 {
		t.Errorf("expected ~23.976, got %v", got)
	}
	if got := parseFrameRate("malformed"); got != 0 {
		t.Errorf("expected 0 for malformed input, got %v", got)
	}
}

func TestFirstPositive(t *testing.T) {
	if got := firstPositive(0, 0, 5, 10); got != 5 {
		t.Errorf("expected first positive value 5, got %d", got)
	}
	if got := firstPositive(0, 0); got != 0 {
		t.Errorf("expected 0 when nothing positive, got %d", got)
	}
}
