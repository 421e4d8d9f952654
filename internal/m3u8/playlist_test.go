package m3u8

import (
	"net/url"
	"strings"
	"testing"

	"github.com/grafov/m3u8"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
https://cdn.example.com/high/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=854x480
mid/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

func TestParseDetectsType(t *testing.T) {
	_, typ, err := Parse(strings.NewReader(masterPlaylist))
	if err != nil {
		t.Fatalf("Parse master: %v", err)
	}
	if typ != Master {
		t.Errorf("Expected Master, got %v", typ)
	}

	_, typ, err = Parse(strings.NewReader(mediaPlaylist))
	if err != nil {
		t.Fatalf("Parse media: %v", err)
	}
	if typ != Variant {
		t.Errorf("Expected Variant, got %v", typ)
	}

	if _, _, err := Parse(strings.NewReader("not a playlist")); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestBestVariant(t *testing.T) {
	pl, _, err := Parse(strings.NewReader(masterPlaylist))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	base, _ := url.Parse("https://origin.example.com/live/master.m3u8")

	best, err := BestVariant(pl.(*m3u8.MasterPlaylist), base)
	if err != nil {
		t.Fatalf("BestVariant: %v", err)
	}
	if best != "https://cdn.example.com/high/index.m3u8" {
		t.Errorf("Unexpected best variant %s", best)
	}

	if _, err := BestVariant(m3u8.NewMasterPlaylist(), base); err == nil {
		t.Error("Expected error for empty master playlist")
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://origin.example.com/live/master.m3u8")
	tests := []struct {
		ref      string
		expected string
	}{
		{"low/index.m3u8", "https://origin.example.com/live/low/index.m3u8"},
		{"/root.m3u8", "https://origin.example.com/root.m3u8"},
		{"https://other.example.com/x.m3u8", "https://other.example.com/x.m3u8"},
	}
	for _, test := range tests {
		if got := ResolveURL(base, test.ref); got != test.expected {
			t.Errorf("ResolveURL(%s) = %s, expected %s", test.ref, got, test.expected)
		}
	}
}
