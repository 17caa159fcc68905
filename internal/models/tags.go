package models

// TrackTags is the metadata a tag writer can embed into a media container.
type TrackTags struct {
	Title      string   `json:"title,omitempty"`
	Artists    []string `json:"artists,omitempty"`
	Album      string   `json:"album,omitempty"`
	Genre      string   `json:"genre,omitempty"`
	Year       int      `json:"year,omitempty"`
	ArtworkURL string   `json:"artworkUrl,omitempty"`
}

// IsEmpty reports whether there is nothing worth embedding.
func (t *TrackTags) IsEmpty() bool {
	if t == nil {
		return true
	}
	return t.Title == "" && len(t.Artists) == 0 && t.Album == "" &&
		t.Genre == "" && t.Year == 0 && t.ArtworkURL == ""
}
