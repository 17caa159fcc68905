// Tests for media_kind.go — MediaKind String(), ParseMediaKind(), MarshalJSON(), and UnmarshalJSON().
package models

import (
	"encoding/json"
	"testing"
)

func TestMediaKind_String(t *testing.T) {
	tests := []struct {
		name string
		kind MediaKind
		want string
	}{
		{"unknown", MediaKindUnknown, "unknown"},
		{"audio", MediaKindAudio, "audio"},
		{"video", MediaKindVideo, "video"},
		{"invalid high value", MediaKind(99), "unknown"},
		{"negative value", MediaKind(-1), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.kind.String()
			if got != tt.want {
				t.Errorf("MediaKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestParseMediaKind(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  MediaKind
	}{
		{"audio", "audio", MediaKindAudio},
		{"video", "video", MediaKindVideo},
		{"uppercase AUDIO", "AUDIO", MediaKindAudio},
		{"mixed case Video", "Video", MediaKindVideo},
		{"unknown string", "podcast", MediaKindUnknown},
		{"empty string", "", MediaKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMediaKind(tt.input)
			if got != tt.want {
				t.Errorf("ParseMediaKind(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMediaKind_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		kind MediaKind
		want string
	}{
		{"audio", MediaKindAudio, `"audio"`},
		{"video", MediaKindVideo, `"video"`},
		{"unknown", MediaKindUnknown, `"unknown"`},
		{"invalid", MediaKind(42), `"unknown"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.kind)
			if err != nil {
				t.Fatalf("MarshalJSON() unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("MarshalJSON() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestMediaKind_JSONRoundTrip(t *testing.T) {
	kinds := []MediaKind{MediaKindUnknown, MediaKindAudio, MediaKindVideo}

	for _, original := range kinds {
		t.Run(original.String(), func(t *testing.T) {
			data, err := json.Marshal(original)
			if err != nil {
				t.Fatalf("Marshal() unexpected error: %v", err)
			}

			var decoded MediaKind
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal(%s) unexpected error: %v", data, err)
			}

			if decoded != original {
				t.Errorf("roundtrip failed: original=%d, decoded=%d (json=%s)", original, decoded, data)
			}
		})
	}
}
