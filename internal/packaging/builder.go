package packaging

import "fmt"

// ladderRung is one fixed entry of the H.264 bitrate ladder. The index
// positions (1..4 video ascending, 5 audio) are a wire contract shared with
// the key matchers and the completion path; they never shift when a quality
// is left out.
type ladderRung struct {
	Height  int
	Width   int
	Bitrate int
	Profile string
}

var videoLadder = []ladderRung{
	{Height: 360, Width: 640, Bitrate: 603000, Profile: "baseline"},
	{Height: 480, Width: 854, Bitrate: 1080000, Profile: "main"},
	{Height: 720, Width: 1280, Bitrate: 2430000, Profile: "main"},
	{Height: 1080, Width: 1920, Bitrate: 5850000, Profile: "high"},
}

const (
	frameRate     = 25
	h264Tune      = "film"
	audioBitrate  = 64000
	audioQuality  = 64
	containerFmp4 = "fmp4"
	audioIndex    = 5
)

// Builder assembles packaging configurations. It carries only static
// identity needed for the secret-version reference; everything else comes
// from the per-call selection.
type Builder struct {
	projectID string
	secretID  string
}

func NewBuilder(projectID, secretID string) *Builder {
	return &Builder{projectID: projectID, secretID: secretID}
}

// Build produces the complete packaging configuration for one request.
// Calling it twice with identical inputs yields identical output; the
// orchestrator relies on that for idempotent retries.
func (b *Builder) Build(sel Selection, imageURI string, secretVersion int) JobConfig {
	return JobConfig{
		ElementaryStreams: b.elementaryStreams(sel),
		MuxStreams:        b.muxStreams(sel),
		Manifests:         b.manifests(sel),
		Encryptions:       b.encryptions(sel, secretVersion),
		Overlays:          b.overlays(imageURI),
	}
}

func (b *Builder) elementaryStreams(sel Selection) []ElementaryStream {
	var streams []ElementaryStream
	for _, rung := range videoLadder {
		if !sel.hasVideo(rung.Height) {
			continue
		}
		streams = append(streams, ElementaryStream{
			Key: fmt.Sprintf("video-stream-%d", rung.Height),
			VideoStream: &VideoStream{
				H264: H264Settings{
					HeightPixels: rung.Height,
					WidthPixels:  rung.Width,
					BitrateBps:   rung.Bitrate,
					FrameRate:    frameRate,
					Profile:      rung.Profile,
					Tune:         h264Tune,
				},
			},
		})
	}
	if sel.hasAudio(audioQuality) {
		streams = append(streams, ElementaryStream{
			Key: fmt.Sprintf("audio-stream-%d", audioQuality),
			AudioStream: &AudioStream{
				Codec:      "aac",
				BitrateBps: audioBitrate,
			},
		})
	}
	return streams
}

// familyPrefix names one DRM family's mux streams: "fmp4" for the
// unencrypted family, "fmp4_fairplay"/"fmp4_widevine" otherwise.
func familyPrefix(scheme DRMScheme) string {
	if scheme == DRMNone {
		return containerFmp4
	}
	return fmt.Sprintf("%s_%s", containerFmp4, scheme)
}

// familyStreamNames lists one family's mux-stream names in index order:
// video 1..4 ascending resolution, audio at 5. An index is consumed only if
// the quality was selected, so the name<->quality mapping is stable across
// requests with different subsets.
func familyStreamNames(sel Selection, scheme DRMScheme) []string {
	prefix := familyPrefix(scheme)
	var names []string
	for i, rung := range videoLadder {
		if sel.hasVideo(rung.Height) {
			names = append(names, fmt.Sprintf("%s_%d", prefix, i+1))
		}
	}
	if sel.hasAudio(audioQuality) {
		names = append(names, fmt.Sprintf("%s_%d", prefix, audioIndex))
	}
	return names
}

func (b *Builder) muxStreams(sel Selection) []MuxStream {
	families := []DRMScheme{DRMNone}
	if !sel.Unencrypted() {
		families = sel.Schemes()
	}

	var streams []MuxStream
	for _, scheme := range families {
		prefix := familyPrefix(scheme)
		encryptionID := ""
		if scheme != DRMNone {
			encryptionID = string(scheme)
		}
		for i, rung := range videoLadder {
			if !sel.hasVideo(rung.Height) {
				continue
			}
			streams = append(streams, MuxStream{
				Key:               fmt.Sprintf("%s_%d", prefix, i+1),
				Container:         containerFmp4,
				ElementaryStreams: []string{fmt.Sprintf("video-stream-%d", rung.Height)},
				EncryptionID:      encryptionID,
			})
		}
		if sel.hasAudio(audioQuality) {
			streams = append(streams, MuxStream{
				Key:               fmt.Sprintf("%s_%d", prefix, audioIndex),
				Container:         containerFmp4,
				ElementaryStreams: []string{fmt.Sprintf("audio-stream-%d", audioQuality)},
				EncryptionID:      encryptionID,
			})
		}
	}
	return streams
}

func (b *Builder) manifests(sel Selection) []Manifest {
	var manifests []Manifest

	if sel.Unencrypted() {
		names := familyStreamNames(sel, DRMNone)
		for _, format := range sel.Formats() {
			manifests = append(manifests, Manifest{
				FileName:   manifestFileName(format, DRMNone),
				Type:       manifestType(format),
				MuxStreams: names,
			})
		}
		return manifests
	}

	for _, scheme := range sel.Schemes() {
		names := familyStreamNames(sel, scheme)
		for _, format := range sel.Formats() {
			manifests = append(manifests, Manifest{
				FileName:   manifestFileName(format, scheme),
				Type:       manifestType(format),
				MuxStreams: names,
			})
		}
	}
	return manifests
}

func manifestType(format ManifestFormat) string {
	if format == ManifestDASH {
		return "DASH"
	}
	return "HLS"
}

func manifestFileName(format ManifestFormat, scheme DRMScheme) string {
	ext := "m3u8"
	if format == ManifestDASH {
		ext = "mpd"
	}
	if scheme == DRMNone {
		return fmt.Sprintf("manifest_%s.%s", format, ext)
	}
	return fmt.Sprintf("manifest_%s_%s.%s", format, scheme, ext)
}

func (b *Builder) encryptions(sel Selection, secretVersion int) []Encryption {
	if sel.Unencrypted() {
		return nil
	}
	secretRef := fmt.Sprintf("projects/%s/secrets/%s/versions/%d", b.projectID, b.secretID, secretVersion)

	var encryptions []Encryption
	for _, scheme := range sel.Schemes() {
		switch scheme {
		case DRMFairplay:
			encryptions = append(encryptions, Encryption{
				ID:                     string(DRMFairplay),
				SecretManagerKeySource: SecretSource{SecretVersion: secretRef},
				DRMSystems:             DRMSystems{Fairplay: &struct{}{}},
				MpegCenc:               &MpegCommonEncryption{Scheme: "cbcs"},
			})
		case DRMWidevine:
			encryptions = append(encryptions, Encryption{
				ID:                     string(DRMWidevine),
				SecretManagerKeySource: SecretSource{SecretVersion: secretRef},
				DRMSystems:             DRMSystems{Widevine: &struct{}{}},
				MpegCenc:               &MpegCommonEncryption{Scheme: "cenc"},
			})
		}
	}
	return encryptions
}

func (b *Builder) overlays(imageURI string) []Overlay {
	return []Overlay{
		{
			Image: OverlayImage{
				URI:        imageURI,
				Resolution: Coordinate{X: 0.1, Y: 0},
				Alpha:      1,
			},
			Animations: []OverlayAnimation{
				{
					AnimationStatic: AnimationStatic{
						XY:              Coordinate{X: 0.9, Y: 0.01},
						StartTimeOffset: "0s",
					},
				},
			},
		},
	}
}
