package packaging

import "fmt"

// KeyClass is the quality class an encryption key applies to, as named by
// the key server.
type KeyClass string

const (
	KeyClassAudio KeyClass = "audio"
	KeyClassSD    KeyClass = "sd"
	KeyClassHD    KeyClass = "hd"
)

// KeyMatcher binds one delivered key to the mux streams it decrypts.
type KeyMatcher struct {
	MuxStreams []string `json:"muxStreams"`
}

// Matcher lists, across every encrypted DRM family, the mux-stream names a
// key of the given class covers. For the audio class that is every stream
// in the family, audio first; the sd and hd classes are implemented but not
// driven by the current request flow.
func (b *Builder) Matcher(sel Selection, class KeyClass) KeyMatcher {
	var names []string
	for _, scheme := range sel.Schemes() {
		prefix := familyPrefix(scheme)
		switch class {
		case KeyClassAudio:
			if sel.hasAudio(audioQuality) {
				names = append(names, fmt.Sprintf("%s_%d", prefix, audioIndex))
			}
			for i, rung := range videoLadder {
				if sel.hasVideo(rung.Height) {
					names = append(names, fmt.Sprintf("%s_%d", prefix, i+1))
				}
			}
		case KeyClassSD:
			for i, rung := range videoLadder {
				if rung.Height < 1080 && sel.hasVideo(rung.Height) {
					names = append(names, fmt.Sprintf("%s_%d", prefix, i+1))
				}
			}
		case KeyClassHD:
			for i, rung := range videoLadder {
				if rung.Height >= 1080 && sel.hasVideo(rung.Height) {
					names = append(names, fmt.Sprintf("%s_%d", prefix, i+1))
				}
			}
		}
	}
	return KeyMatcher{MuxStreams: names}
}
