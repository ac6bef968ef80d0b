// Package packaging translates the small declarative selectors of a job
// request (video/audio qualities, DRM schemes, manifest formats) into the
// full multi-stream packaging configuration submitted to the transcoding
// engine. The builder is a pure function: no I/O, no mutable state, and
// identical inputs always produce identical output.
package packaging

// Wire types mirror the engine's REST job-config schema (camelCase JSON).

// ElementaryStream is a single encoded audio or video track before muxing.
type ElementaryStream struct {
	Key         string       `json:"key"`
	VideoStream *VideoStream `json:"videoStream,omitempty"`
	AudioStream *AudioStream `json:"audioStream,omitempty"`
}

type VideoStream struct {
	H264 H264Settings `json:"h264"`
}

type H264Settings struct {
	HeightPixels int    `json:"heightPixels"`
	WidthPixels  int    `json:"widthPixels"`
	BitrateBps   int    `json:"bitrateBps"`
	FrameRate    int    `json:"frameRate"`
	Profile      string `json:"profile"`
	Tune         string `json:"tune"`
}

type AudioStream struct {
	Codec      string `json:"codec"`
	BitrateBps int    `json:"bitrateBps"`
}

// MuxStream is a multiplexed, optionally encrypted output container.
type MuxStream struct {
	Key               string   `json:"key"`
	Container         string   `json:"container"`
	ElementaryStreams []string `json:"elementaryStreams"`
	EncryptionID      string   `json:"encryptionId,omitempty"`
}

// Manifest is an HLS or DASH index file over one DRM family's mux streams.
type Manifest struct {
	FileName   string   `json:"fileName"`
	Type       string   `json:"type"`
	MuxStreams []string `json:"muxStreams"`
}

// Encryption is a DRM descriptor shared by every mux stream of one family.
type Encryption struct {
	ID                     string                `json:"id"`
	SecretManagerKeySource SecretSource          `json:"secretManagerKeySource"`
	DRMSystems             DRMSystems            `json:"drmSystems"`
	MpegCenc               *MpegCommonEncryption `json:"mpegCenc,omitempty"`
}

type SecretSource struct {
	SecretVersion string `json:"secretVersion"`
}

type DRMSystems struct {
	Fairplay *struct{} `json:"fairplay,omitempty"`
	Widevine *struct{} `json:"widevine,omitempty"`
}

type MpegCommonEncryption struct {
	Scheme string `json:"scheme"`
}

// Overlay is a static image burned onto every rendition.
type Overlay struct {
	Image      OverlayImage       `json:"image"`
	Animations []OverlayAnimation `json:"animations"`
}

type OverlayImage struct {
	URI        string     `json:"uri"`
	Resolution Coordinate `json:"resolution"`
	Alpha      float64    `json:"alpha"`
}

type OverlayAnimation struct {
	AnimationStatic AnimationStatic `json:"animationStatic"`
}

type AnimationStatic struct {
	XY              Coordinate `json:"xy"`
	StartTimeOffset string     `json:"startTimeOffset"`
}

type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PubsubDestination is where the engine publishes the terminal completion
// event for a job.
type PubsubDestination struct {
	Topic string `json:"topic"`
}

// JobConfig is the complete packaging configuration for one job. It is
// request-scoped: built, submitted, discarded.
type JobConfig struct {
	ElementaryStreams []ElementaryStream `json:"elementaryStreams"`
	MuxStreams        []MuxStream        `json:"muxStreams"`
	Manifests         []Manifest         `json:"manifests"`
	Encryptions       []Encryption       `json:"encryptions,omitempty"`
	Overlays          []Overlay          `json:"overlays"`
	PubsubDestination *PubsubDestination `json:"pubsubDestination,omitempty"`
}
