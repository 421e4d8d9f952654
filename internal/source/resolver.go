package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	playlist "audio-extractor/internal/m3u8"

	"github.com/grafov/m3u8"
)

const maxPlaylistHops = 3

type Resolver struct {
	client     *http.Client
	headers    map[string]string
	resolveHLS bool
}

type Options struct {
	Timeout    time.Duration
	Headers    map[string]string
	ResolveHLS bool
}

func NewResolver(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Resolver{
		client:     &http.Client{Timeout: opts.Timeout},
		headers:    opts.Headers,
		resolveHLS: opts.ResolveHLS,
	}
}

// Resolve returns the URL a converter should be handed. It always returns a
// usable URL: on error the canonical form of rawURL is returned with it.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	canonical := CanonicalURL(rawURL)
	if !r.resolveHLS || !isPlaylist(canonical) {
		return canonical, nil
	}

	resolved, err := r.bestStream(ctx, canonical, maxPlaylistHops)
	if err != nil {
		return canonical, err
	}
	return resolved, nil
}

// bestStream follows master playlists down to the highest-bandwidth media
// playlist.
func (r *Resolver) bestStream(ctx context.Context, rawURL string, hops int) (string, error) {
	if hops == 0 {
		return "", fmt.Errorf("too many nested master playlists")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	pl, listType, err := playlist.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse playlist: %w", err)
	}

	if listType != playlist.Master {
		return rawURL, nil
	}
	next, err := playlist.BestVariant(pl.(*m3u8.MasterPlaylist), base)
	if err != nil {
		return "", err
	}
	return r.bestStream(ctx, next, hops-1)
}

// CanonicalURL rewrites YouTube watch and short links to
// https://www.youtube.com/watch?v=<id>. Other URLs are returned unchanged.
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	switch u.Hostname() {
	case "www.youtube.com", "youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return watchURL(id)
		}
	case "youtu.be":
		if id := strings.TrimLeft(u.Path, "/"); id != "" {
			return watchURL(id)
		}
	}
	return rawURL
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}

func isPlaylist(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}
