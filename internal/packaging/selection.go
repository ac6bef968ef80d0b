package packaging

import (
	"fmt"
	"sort"
)

// DRMScheme is the closed set of encryption schemes a request can select.
type DRMScheme string

const (
	DRMNone     DRMScheme = "none"
	DRMFairplay DRMScheme = "fairplay"
	DRMWidevine DRMScheme = "widevine"
)

// ManifestFormat is the closed set of adaptive-playback index formats.
type ManifestFormat string

const (
	ManifestHLS  ManifestFormat = "hls"
	ManifestDASH ManifestFormat = "dash"
)

// Selection is the normalized form of a request's quality/DRM/manifest
// selectors. Construct it with NewSelection so the loose request strings are
// checked once, at the edge.
type Selection struct {
	VideoQualities []int
	AudioQualities []int

	none     bool
	fairplay bool
	widevine bool

	hls  bool
	dash bool
}

// NewSelection validates and normalizes the raw request selectors. Unknown
// DRM or manifest strings are an error; unknown quality values are kept and
// silently skipped by the builder (deliberate permissive policy).
func NewSelection(video, audio []int, drmTypes, manifestTypes []string) (Selection, error) {
	sel := Selection{
		VideoQualities: normalizeQualities(video),
		AudioQualities: normalizeQualities(audio),
	}

	for _, d := range drmTypes {
		switch DRMScheme(d) {
		case DRMNone:
			sel.none = true
		case DRMFairplay:
			sel.fairplay = true
		case DRMWidevine:
			sel.widevine = true
		case "both":
			sel.fairplay = true
			sel.widevine = true
		default:
			return Selection{}, fmt.Errorf("unknown drm_type %q", d)
		}
	}
	if !sel.none && !sel.fairplay && !sel.widevine {
		return Selection{}, fmt.Errorf("drm_type selects nothing")
	}

	for _, m := range manifestTypes {
		switch ManifestFormat(m) {
		case ManifestHLS:
			sel.hls = true
		case ManifestDASH:
			sel.dash = true
		default:
			return Selection{}, fmt.Errorf("unknown manifast_type %q", m)
		}
	}

	return sel, nil
}

// Unencrypted reports whether the job skips DRM entirely. "none" wins over
// any real scheme selected alongside it.
func (s Selection) Unencrypted() bool { return s.none }

// Schemes returns the encrypted DRM families to produce, in canonical
// order. Empty when the selection is unencrypted.
func (s Selection) Schemes() []DRMScheme {
	if s.none {
		return nil
	}
	var out []DRMScheme
	if s.fairplay {
		out = append(out, DRMFairplay)
	}
	if s.widevine {
		out = append(out, DRMWidevine)
	}
	return out
}

// Formats returns the selected manifest formats in canonical order.
func (s Selection) Formats() []ManifestFormat {
	var out []ManifestFormat
	if s.hls {
		out = append(out, ManifestHLS)
	}
	if s.dash {
		out = append(out, ManifestDASH)
	}
	return out
}

func (s Selection) hasVideo(q int) bool {
	for _, v := range s.VideoQualities {
		if v == q {
			return true
		}
	}
	return false
}

func (s Selection) hasAudio(q int) bool {
	for _, a := range s.AudioQualities {
		if a == q {
			return true
		}
	}
	return false
}

func normalizeQualities(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, q := range in {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	sort.Ints(out)
	return out
}
