package models

import "strings"

// MediaKind represents the broad class of a downloaded payload
type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindAudio
	MediaKindVideo
)

// String returns the string representation of the media kind
func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseMediaKind converts a kind string to MediaKind enum
func ParseMediaKind(kindStr string) MediaKind {
	switch strings.ToLower(kindStr) {
	case "audio":
		return MediaKindAudio
	case "video":
		return MediaKindVideo
	default:
		return MediaKindUnknown
	}
}

// MarshalJSON implements json.Marshaler interface
func (k MediaKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler interface
func (k *MediaKind) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	*k = ParseMediaKind(str)
	return nil
}
