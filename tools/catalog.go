// Package tools exposes the read-only catalog surface: one-off lookups that
// browse the upstream without touching the tracking registry.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lbarthe/vidwatch/youtube"
)

// Browser is the slice of the API client the catalog consumes.
type Browser interface {
	FetchDetails(ctx context.Context, ids []string) (map[string]youtube.VideoDetails, map[string]*youtube.APIError, error)
	ChannelInfo(ctx context.Context, id string) (*youtube.Channel, error)
	SearchVideos(ctx context.Context, query string, max int) ([]youtube.SearchResult, error)
	VideoComments(ctx context.Context, videoID string, max int) ([]youtube.Comment, error)
}

// Catalog wraps the browser with input validation and logging.
type Catalog struct {
	browser Browser
	logger  *slog.Logger
}

// NewCatalog creates a catalog. logger may be nil.
func NewCatalog(b Browser, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{browser: b, logger: logger}
}

// VideoDetails looks up one video's metadata and current counters.
func (c *Catalog) VideoDetails(ctx context.Context, videoID string) (*youtube.VideoDetails, error) {
	if videoID == "" {
		return nil, fmt.Errorf("tools: video id required")
	}
	found, missing, err := c.browser.FetchDetails(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	if apiErr, ok := missing[videoID]; ok {
		return nil, apiErr
	}
	d := found[videoID]
	return &d, nil
}

// ChannelInfo looks up one channel's metadata and aggregate counters.
func (c *Catalog) ChannelInfo(ctx context.Context, channelID string) (*youtube.Channel, error) {
	if channelID == "" {
		return nil, fmt.Errorf("tools: channel id required")
	}
	return c.browser.ChannelInfo(ctx, channelID)
}

// Search finds videos matching a query. This is the expensive call of the
// catalog; the quota cost is two orders of magnitude above a lookup.
func (c *Catalog) Search(ctx context.Context, query string, max int) ([]youtube.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("tools: query required")
	}
	c.logger.Info("tools: search", "query", query, "max", max)
	return c.browser.SearchVideos(ctx, query, max)
}

// Comments fetches recent top-level comments for a video.
func (c *Catalog) Comments(ctx context.Context, videoID string, max int) ([]youtube.Comment, error) {
	if videoID == "" {
		return nil, fmt.Errorf("tools: video id required")
	}
	return c.browser.VideoComments(ctx, videoID, max)
}
