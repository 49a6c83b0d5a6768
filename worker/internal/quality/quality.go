// Package quality implements QualityPolicy: a pure function from a
// probed SourceProfile to either an EncodeParams or a terminal Skip.
// The lookup tables are embedded JSON assets, structurally the same
// nested-map-plus-closest-match-fallback shape as the original
// quality.py lookup, keyed by bucket names instead of the original's
// (codec, bitdepth, hdr, resolution) tuple.
package quality

import (
	"embed"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/avfarm/common/constants"
	"github.com/avfarm/common/models"
)

//go:embed quality_lookup.json audio_codec_lookup.json
var lookupFS embed.FS

type videoTable map[string]map[string]map[string]int   // resolution -> codec -> bitrate bucket -> crf
type audioTable map[string]map[string]map[string]int    // codec -> channel bucket -> bitrate bucket -> kbps

// Policy holds the parsed lookup tables; safe for concurrent use since it
// never mutates after construction.
type Policy struct {
	video videoTable
	audio audioTable
}

func Load() (*Policy, error) {
	videoRaw, err := lookupFS.ReadFile("quality_lookup.json")
	if err != nil {
		return nil, err
	}
	audioRaw, err := lookupFS.ReadFile("audio_codec_lookup.json")
	if err != nil {
		return nil, err
	}

	var p Policy
	if err := json.Unmarshal(videoRaw, &p.video); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(audioRaw, &p.audio); err != nil {
		return nil, err
	}
	return &p, nil
}

// Decide runs QualityPolicy against a probed source. For an AV1 source the
// already-efficient shortcut compares the source's own BitrateBPS against
// the bitrate predicted for the chosen CRF.
func (p *Policy) Decide(src *models.SourceProfile, cfg *models.ClusterConfig) (*models.EncodeParams, *models.Skip) {
	if src.Width == 0 || src.Height == 0 {
		return nil, &models.Skip{Reason: constants.SkipNonVideo}
	}

	switch src.HDRKind {
	case constants.HDRKindHDR10Plus, constants.HDRKindDolbyVision:
		return nil, &models.Skip{Reason: constants.SkipDynamicHDRUnpreservable}
	}

	bucket := resolutionBucket(src.Width, src.Height)
	crf := p.crfFor(bucket, src.VideoCodec, videoBitrateBucket(src.BitrateBPS))

	if src.VideoCodec == "av1" && alreadyEfficient(src, crf) {
		return nil, &models.Skip{Reason: constants.SkipAlreadyEfficient}
	}

	params := &models.EncodeParams{
		CRF:                crf,
		Preset:             cfg.EncoderPreset,
		PixelFormat:        pixelFormat(src),
		SkipAudioTranscode: cfg.SkipAudioTranscode,
		CopySubtitles:      cfg.CopySubtitles,
		CopyMetadata:       cfg.CopyMetadata,
	}

	if src.HDRKind == constants.HDRKindHDR10 {
		params.Color = &models.ColorParams{
			ColorPrimaries: "bt2020",
			ColorTransfer:  "smpte2084",
			ColorSpace:     "bt2020nc",
			EnableHDR:      true,
		}
	}

	if !cfg.SkipAudioTranscode {
		for _, stream := range src.AudioStreams {
			kbps := p.opusBitrateFor(stream.Codec, stream.ChannelCount, audioBitrateBucket(stream.BitrateBPS, stream.Codec))
			params.AudioPlans = append(params.AudioPlans, models.AudioBitratePlan{
				StreamIndex: stream.Index,
				BitrateKbps: kbps,
			})
		}
	}

	return params, nil
}

// alreadyEfficient mirrors the spec's 10%-of-predicted-bitrate shortcut:
// an AV1 source is left alone if its measured bitrate already sits within
// 10% of what this CRF would be expected to produce at this resolution.
func alreadyEfficient(src *models.SourceProfile, crf int) bool {
	predicted := predictedBitrateBPS(src.Width, src.Height, crf)
	if predicted == 0 || src.BitrateBPS == 0 {
		return false
	}
	diff := float64(src.BitrateBPS-predicted) / float64(predicted)
	return diff > -0.10 && diff < 0.10
}

// predictedBitrateBPS is a coarse CRF-to-bitrate model: lower CRF implies
// higher bitrate, scaled by frame area. Good enough for a "close to
// target" comparison, not a rate-control guarantee.
func predictedBitrateBPS(width, height, crf int) int64 {
	area := int64(width) * int64(height)
	if area == 0 {
		return 0
	}
	// bits/pixel falls roughly by half every +6 CRF steps, anchored at
	// CRF 24 ~= 0.05 bits/pixel for 30fps content.
	bitsPerPixel := 0.05 * pow2(float64(24-crf)/6.0)
	return int64(bitsPerPixel * float64(area) * 30)
}

func pow2(x float64) float64 {
	result := 1.0
	if x < 0 {
		for ; x < 0; x++ {
			result /= 2
		}
		return result
	}
	for ; x > 0; x-- {
		result *= 2
	}
	return result
}

func pixelFormat(src *models.SourceProfile) string {
	if src.BitDepth >= 10 || src.HDRKind != constants.HDRKindNone {
		return "yuv420p10le"
	}
	return "yuv420p"
}

func resolutionBucket(width, height int) string {
	pixels := width * height
	switch {
	case pixels < 720*720:
		return "sd"
	case pixels < 1280*1280:
		return "720p"
	case pixels < 1920*1920:
		return "1080p"
	case pixels < 2560*2560:
		return "1440p"
	default:
		return "4k"
	}
}

// videoBitrateBucket mirrors probe.get_bitrate_category.
func videoBitrateBucket(bps int64) string {
	mbps := float64(bps) / 1_000_000
	switch {
	case mbps < 1.5:
		return "1M"
	case mbps < 3:
		return "2M"
	case mbps < 5:
		return "4M"
	case mbps < 7:
		return "6M"
	case mbps < 9:
		return "8M"
	case mbps < 12:
		return "10M"
	case mbps < 17:
		return "15M"
	case mbps < 25:
		return "20M"
	case mbps < 35:
		return "30M"
	default:
		return "40M+"
	}
}

// audioBitrateBucket mirrors probe.get_audio_bitrate_category, with the
// same per-codec-family thresholds.
func audioBitrateBucket(bps int64, codec string) string {
	kbps := float64(bps) / 1000
	switch codec {
	case "aac", "mp3":
		switch {
		case kbps < 48:
			return "32k"
		case kbps < 80:
			return "64k"
		case kbps < 112:
			return "96k"
		case kbps < 160:
			return "128k"
		case kbps < 224:
			return "192k"
		case kbps < 288:
			return "256k"
		default:
			return "320k"
		}
	case "ac3", "eac3":
		switch {
		case kbps < 80:
			return "64k"
		case kbps < 112:
			return "96k"
		case kbps < 160:
			return "128k"
		case kbps < 224:
			return "192k"
		case kbps < 320:
			return "256k"
		case kbps < 448:
			return "384k"
		case kbps < 576:
			return "512k"
		default:
			return "640k+"
		}
	case "dts", "truehd", "flac", "pcm":
		switch {
		case kbps < 384:
			return "256k"
		case kbps < 640:
			return "512k"
		case kbps < 896:
			return "768k"
		case kbps < 1280:
			return "1024k"
		case kbps < 2000:
			return "1536k+"
		case kbps < 3000:
			return "2000k"
		case kbps < 5000:
			return "4000k"
		default:
			return "6000k+"
		}
	default:
		switch {
		case kbps < 96:
			return "64k"
		case kbps < 160:
			return "128k"
		case kbps < 256:
			return "192k"
		default:
			return "384k"
		}
	}
}

func channelBucket(channels int) string {
	switch {
	case channels <= 1:
		return "1ch"
	case channels <= 2:
		return "2ch"
	case channels <= 6:
		return "6ch"
	default:
		return "8ch"
	}
}

func (p *Policy) crfFor(resolution, codec, bitrateBucket string) int {
	codecTable, ok := p.video[resolution]
	if !ok {
		codecTable = p.video["default"]
	}
	bucketTable, ok := codecTable[codec]
	if !ok {
		bucketTable = codecTable["default"]
	}
	if crf, ok := bucketTable[bitrateBucket]; ok {
		return crf
	}
	if crf, ok := bucketTable["default"]; ok {
		return crf
	}
	return closestBitrateMatch(bucketTable, bitrateBucket, 26)
}

func (p *Policy) opusBitrateFor(codec string, channels int, bitrateBucket string) int {
	channelTable, ok := p.audio[codec]
	if !ok {
		channelTable = p.audio["default"]
	}
	bucketTable, ok := channelTable[channelBucket(channels)]
	if !ok {
		bucketTable = channelTable["default"]
	}
	if kbps, ok := bucketTable[bitrateBucket]; ok {
		return kbps
	}
	if kbps, ok := bucketTable["default"]; ok {
		return kbps
	}
	return closestBitrateMatch(bucketTable, bitrateBucket, 96)
}

// closestBitrateMatch picks the bucket key numerically nearest to target
// when neither an exact nor a "default" entry exists.
func closestBitrateMatch(table map[string]int, target string, fallback int) int {
	if len(table) == 0 {
		return fallback
	}
	targetValue := bucketToNumber(target)
	var closestKey string
	closestDiff := -1.0
	for key := range table {
		diff := absFloat(bucketToNumber(key) - targetValue)
		if closestDiff < 0 || diff < closestDiff {
			closestDiff = diff
			closestKey = key
		}
	}
	return table[closestKey]
}

func bucketToNumber(bucket string) float64 {
	s := strings.TrimSuffix(strings.TrimSuffix(bucket, "+"), "M")
	s = strings.TrimSuffix(s, "k")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
