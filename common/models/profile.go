package models

// AudioStream describes one audio track of a probed source, in stream order.
type AudioStream struct {
	Index         int    `json:"index"`
	Codec         string `json:"codec"`
	ChannelCount  int    `json:"channel_count"`
	BitrateBPS    int64  `json:"bitrate_bps"`
	SampleRateHz  int    `json:"sample_rate_hz"`
	Language      string `json:"language"`
}

// SourceProfile is what Probe returns: the media characteristics needed by
// QualityPolicy and Transcoder. HDRKind is already classified.
type SourceProfile struct {
	Container   string `json:"container"`
	VideoCodec  string `json:"video_codec"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	BitDepth    int    `json:"bit_depth"`
	FrameRate   float64 `json:"frame_rate"`
	BitrateBPS  int64  `json:"bitrate_bps"`
	DurationSec float64 `json:"duration_sec"`

	ColorTransfer    string `json:"color_transfer,omitempty"`
	ColorPrimaries   string `json:"color_primaries,omitempty"`
	ColorSpace       string `json:"color_space,omitempty"`
	MasteringDisplay bool   `json:"mastering_display"`
	ContentLightLevel bool  `json:"content_light_level"`
	DolbyVisionProfile int  `json:"dolby_vision_profile,omitempty"`
	HDR10PlusPresent bool   `json:"hdr10plus_present"`

	HDRKind string `json:"hdr_kind"`

	AudioStreams []AudioStream `json:"audio_streams"`
}

// ColorParams are the HDR10 color flags SafeReplace/Transcoder must emit
// verbatim on the encoder's command line to preserve wide-gamut metadata.
type ColorParams struct {
	ColorPrimaries string `json:"color_primaries"`
	ColorTransfer  string `json:"color_transfer"`
	ColorSpace     string `json:"color_space"`
	EnableHDR      bool   `json:"enable_hdr"`
}

// AudioBitratePlan is the per-stream Opus target for one source audio track.
type AudioBitratePlan struct {
	StreamIndex  int `json:"stream_index"`
	BitrateKbps  int `json:"bitrate_kbps"`
}

// EncodeParams is QualityPolicy's positive output: everything Transcoder
// needs to build its command line.
type EncodeParams struct {
	CRF          int                `json:"crf"`
	Preset       int                `json:"preset"`
	PixelFormat  string             `json:"pixel_format"`
	Color        *ColorParams       `json:"color,omitempty"`
	AudioPlans   []AudioBitratePlan `json:"audio_plans"`
	SkipAudioTranscode bool         `json:"skip_audio_transcode"`
	CopySubtitles bool              `json:"copy_subtitles"`
	CopyMetadata  bool              `json:"copy_metadata"`
}

// Skip is QualityPolicy's negative output: the file should not be
// transcoded at all, and the reason is terminal (see constants.Skip*).
type Skip struct {
	Reason string `json:"reason"`
}
