package quality

import (
	"testing"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
)

func baseConfig() *models.ClusterConfig {
	return &models.ClusterConfig{
		EncoderPreset: 6,
	}
}

func TestDecideSkipsNonVideo(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src := &models.SourceProfile{}
	_, skip := p.Decide(src, baseConfig())
	if skip == nil || skip.Reason != constants.SkipNonVideo {
		t.Fatalf("expected non_video skip, got %+v", skip)
	}
}

func TestDecideSkipsDynamicHDR(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src := &models.SourceProfile{
		Width: 1920, Height: 1080,
		VideoCodec: "h264",
		HDRKind:    constants.HDRKindHDR10Plus,
	}
	_, skip := p.Decide(src, baseConfig())
	if skip == nil || skip.Reason != constants.SkipDynamicHDRUnpreservable {
		t.Fatalf("expected dynamic_hdr_unpreservable skip, got %+v", skip)
	}
}

func TestDecideBuildsEncodeParamsForSDRSource(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src := &models.SourceProfile{
		Width: 1920, Height: 1080,
		VideoCodec: "h264",
		BitrateBPS: 8_000_000,
		HDRKind:    constants.HDRKindNone,
		AudioStreams: []models.AudioStream{
			{Index: 0, Codec: "aac", ChannelCount: 2, BitrateBPS: 128_000},
		},
	}
	params, skip := p.Decide(src, baseConfig())
	if skip != nil {
		t.Fatalf("expected no skip, got %+v", skip)
	}
	if params.CRF <= 0 {
		t.Errorf("expected positive CRF, got %d", params.CRF)
	}
	if params.PixelFormat != "yuv420p" {
		t.Errorf("expected 8-bit pixel format, got %s", params.PixelFormat)
	}
	if params.Color != nil {
		t.Errorf("expected no color params for SDR source, got %+v", params.Color)
	}
	if len(params.AudioPlans) != 1 {
		t.Fatalf("expected one audio plan, got %d", len(params.AudioPlans))
	}
	if params.AudioPlans[0].BitrateKbps <= 0 {
		t.Errorf("expected positive opus bitrate, got %d", params.AudioPlans[0].BitrateKbps)
	}
}

func TestDecideAttachesHDR10ColorParams(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src := &models.SourceProfile{
		Width: 3840, Height: 2160,
		VideoCodec: "h265",
		BitDepth:   10,
		BitrateBPS: 20_000_000,
		HDRKind:    constants.HDRKindHDR10,
	}
	params, skip := p.Decide(src, baseConfig())
	if skip != nil {
		t.Fatalf("expected no skip, got %+v", skip)
	}
	if params.Color == nil || !params.Color.EnableHDR {
		t.Fatalf("expected HDR10 color params, got %+v", params.Color)
	}
	if params.PixelFormat != "yuv420p10le" {
		t.Errorf("expected 10-bit pixel format, got %s", params.PixelFormat)
	}
}

func TestResolutionBucketBoundaries(t *testing.T) {
	cases := []struct {
		w, h int
		want string
	}{
		{640, 480, "sd"},
		{1280, 720, "720p"},
		{1920, 1080, "1080p"},
		{2560, 1440, "1440p"},
		{3840, 2160, "4k"},
	}
	for _, c := range cases {
		if got := resolutionBucket(c.w, c.h); got != c.want {
			t.Errorf("resolutionBucket(%d,%d) = %s, want %s", c.w, c.h, got, c.want)
		}
	}
}

func TestClosestBitrateMatchPicksNearestKey(t *testing.T) {
	table := map[string]int{"1M": 20, "4M": 24, "10M": 28}
	got := closestBitrateMatch(table, "6M", 0)
	if got != 24 {
		t.Errorf("expected closest match to 6M bucket (4M=24), got %d", got)
	}
}
