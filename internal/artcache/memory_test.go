package artcache

import (
	"testing"
	"time"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c, err := New("memory", ProviderConfig{Size: 10, TTL: time.Hour})
	if err != nil {
		t.Fatalf("New memory cache: %v", err)
	}
	defer c.Close()

	// Miss
	image, ok := c.Get("https://cdn.example/cover.png")
	if ok {
		t.Fatal("Expected miss for an unknown url")
	}
	if image != nil {
		t.Fatalf("Expected nil image on miss, got %v", image)
	}

	// Set + hit
	c.Set("https://cdn.example/cover.png", []byte("PNGDATA"))
	image, ok = c.Get("https://cdn.example/cover.png")
	if !ok {
		t.Fatal("Expected hit after Set")
	}
	if string(image) != "PNGDATA" {
		t.Fatalf("Expected PNGDATA, got %s", string(image))
	}
}

func TestMemoryCache_Contains(t *testing.T) {
	c, err := New("memory", ProviderConfig{Size: 10, TTL: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Contains("https://cdn.example/absent.png") {
		t.Fatal("Expected absent url to not be contained")
	}

	c.Set("https://cdn.example/cover.png", []byte("PNGDATA"))
	if !c.Contains("https://cdn.example/cover.png") {
		t.Fatal("Expected cached url to be contained")
	}
}

func TestMemoryCache_Len(t *testing.T) {
	c, err := New("memory", ProviderConfig{Size: 10, TTL: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Len() != 0 {
		t.Fatalf("Expected empty cache, got %d entries", c.Len())
	}

	c.Set("https://cdn.example/a.png", []byte("a"))
	c.Set("https://cdn.example/b.png", []byte("b"))
	if c.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", c.Len())
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	evicted := make([]string, 0)
	c, err := New("memory", ProviderConfig{
		Size: 2,
		TTL:  time.Hour,
		OnEvict: func(sourceURL string, _ []byte) {
			evicted = append(evicted, sourceURL)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Set("https://cdn.example/a.png", []byte("a"))
	c.Set("https://cdn.example/b.png", []byte("b"))
	c.Set("https://cdn.example/c.png", []byte("c"))

	if len(evicted) != 1 || evicted[0] != "https://cdn.example/a.png" {
		t.Errorf("Expected the oldest url to be evicted, got %v", evicted)
	}
	if c.Contains("https://cdn.example/a.png") {
		t.Error("Expected the evicted url to be gone")
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c, err := New("memory", ProviderConfig{Size: 10, TTL: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	c.Set("https://cdn.example/cover.png", []byte("PNGDATA"))
	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get("https://cdn.example/cover.png"); ok {
		t.Error("Expected the image to expire")
	}
}
