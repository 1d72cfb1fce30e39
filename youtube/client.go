// Package youtube is the upstream client for the YouTube Data API v3.
//
// It owns three concerns nothing above it should see: request mechanics
// (batching, key injection, timeouts), failure classification into ErrorKind,
// and daily-quota accounting through QuotaTracker.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://youtube.googleapis.com/youtube/v3"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "vidwatch/1.0"

	// Upstream batch caps per endpoint.
	maxVideosPerList = 50
	maxSearchResults = 50
	maxCommentsPage  = 100
)

// Config configures the client.
type Config struct {
	// APIKey is required.
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Timeout applies per HTTP request. Default: 30s.
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the Data API. It is safe for concurrent use.
type Client struct {
	cfg   Config
	http  *http.Client
	quota *QuotaTracker
	log   *slog.Logger
}

// New creates a client. quota may be nil, in which case a tracker with no
// local budget is created.
func New(cfg Config, quota *QuotaTracker) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube: api key required")
	}
	cfg.defaults()
	if quota == nil {
		quota = NewQuotaTracker(0)
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		quota: quota,
		log:   cfg.Logger,
	}, nil
}

// Quota returns the tracker the client spends against.
func (c *Client) Quota() *QuotaTracker { return c.quota }

// FetchMetrics fetches current counters for the given video ids, batching
// requests in groups of 50. The first map holds counters for every id the
// upstream returned; ids absent from the response are reported in the second
// map as not-found errors. A whole-call failure is returned as an *APIError.
func (c *Client) FetchMetrics(ctx context.Context, ids []string) (map[string]Counters, map[string]*APIError, error) {
	found := make(map[string]Counters, len(ids))
	missing := map[string]*APIError{}

	for _, batch := range chunkIDs(ids, maxVideosPerList) {
		var resp listResponse
		err := c.get(ctx, "/videos", url.Values{
			"part": {"statistics"},
			"id":   {strings.Join(batch, ",")},
		}, CostList, &resp)
		if err != nil {
			return nil, nil, err
		}
		for _, it := range resp.Items {
			if it.Statistics == nil {
				continue
			}
			found[it.ID.s] = Counters{
				Views:    int64(it.Statistics.ViewCount),
				Likes:    int64(it.Statistics.LikeCount),
				Comments: int64(it.Statistics.CommentCount),
			}
		}
		for _, id := range batch {
			if _, ok := found[id]; !ok {
				missing[id] = &APIError{
					Kind:    KindNotFound,
					Message: fmt.Sprintf("video %s absent from response", id),
				}
			}
		}
	}
	return found, missing, nil
}

// FetchDetails fetches snippet metadata and current counters for the given
// ids. Missing ids are reported the same way as FetchMetrics.
func (c *Client) FetchDetails(ctx context.Context, ids []string) (map[string]VideoDetails, map[string]*APIError, error) {
	found := make(map[string]VideoDetails, len(ids))
	missing := map[string]*APIError{}

	for _, batch := range chunkIDs(ids, maxVideosPerList) {
		var resp listResponse
		err := c.get(ctx, "/videos", url.Values{
			"part": {"snippet,statistics,contentDetails"},
			"id":   {strings.Join(batch, ",")},
		}, CostList, &resp)
		if err != nil {
			return nil, nil, err
		}
		for _, it := range resp.Items {
			if it.Snippet == nil {
				continue
			}
			d := VideoDetails{
				ID:           it.ID.s,
				Title:        it.Snippet.Title,
				ChannelID:    it.Snippet.ChannelID,
				ChannelTitle: it.Snippet.ChannelTitle,
				PublishedAt:  it.Snippet.PublishedAt,
			}
			if it.Statistics != nil {
				d.Counters = Counters{
					Views:    int64(it.Statistics.ViewCount),
					Likes:    int64(it.Statistics.LikeCount),
					Comments: int64(it.Statistics.CommentCount),
				}
			}
			if it.ContentDetails != nil {
				d.Duration = it.ContentDetails.Duration
			}
			found[it.ID.s] = d
		}
		for _, id := range batch {
			if _, ok := found[id]; !ok {
				missing[id] = &APIError{
					Kind:    KindNotFound,
					Message: fmt.Sprintf("video %s absent from response", id),
				}
			}
		}
	}
	return found, missing, nil
}

// CheckExists reports whether a video is still reachable upstream. A video
// absent from a successful response counts as gone; call-level failures are
// returned as errors so the caller does not mistake an outage for deletion.
func (c *Client) CheckExists(ctx context.Context, id string) (bool, error) {
	var resp listResponse
	err := c.get(ctx, "/videos", url.Values{
		"part": {"id"},
		"id":   {id},
	}, CostList, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Terminal() {
			return false, nil
		}
		return false, err
	}
	for _, it := range resp.Items {
		if it.ID.s == id {
			return true, nil
		}
	}
	return false, nil
}

// ChannelInfo fetches metadata and aggregate counters for one channel.
func (c *Client) ChannelInfo(ctx context.Context, id string) (*Channel, error) {
	var resp listResponse
	err := c.get(ctx, "/channels", url.Values{
		"part": {"snippet,statistics"},
		"id":   {id},
	}, CostList, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, &APIError{Kind: KindNotFound, Message: fmt.Sprintf("channel %s not found", id)}
	}
	it := resp.Items[0]
	ch := &Channel{ID: it.ID.s}
	if it.Snippet != nil {
		ch.Title = it.Snippet.Title
		ch.Description = it.Snippet.Description
		ch.PublishedAt = it.Snippet.PublishedAt
	}
	if it.Statistics != nil {
		ch.Subscribers = int64(it.Statistics.SubscriberCount)
		ch.VideoCount = int64(it.Statistics.VideoCount)
		ch.ViewCount = int64(it.Statistics.ViewCount)
	}
	return ch, nil
}

// SearchVideos searches for videos matching the query, up to max results
// (capped at 50). This costs a hundred quota units per call.
func (c *Client) SearchVideos(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if max <= 0 || max > maxSearchResults {
		max = maxSearchResults
	}
	var resp listResponse
	err := c.get(ctx, "/search", url.Values{
		"part":       {"snippet"},
		"q":          {query},
		"type":       {"video"},
		"maxResults": {strconv.Itoa(max)},
	}, CostSearch, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Snippet == nil {
			continue
		}
		out = append(out, SearchResult{
			VideoID:      it.ID.s,
			Title:        it.Snippet.Title,
			ChannelID:    it.Snippet.ChannelID,
			ChannelTitle: it.Snippet.ChannelTitle,
			PublishedAt:  it.Snippet.PublishedAt,
		})
	}
	return out, nil
}

// VideoComments fetches up to max top-level comments (capped at 100),
// most recent first.
func (c *Client) VideoComments(ctx context.Context, videoID string, max int) ([]Comment, error) {
	if max <= 0 || max > maxCommentsPage {
		max = maxCommentsPage
	}
	var resp listResponse
	err := c.get(ctx, "/commentThreads", url.Values{
		"part":       {"snippet"},
		"videoId":    {videoID},
		"order":      {"time"},
		"maxResults": {strconv.Itoa(max)},
	}, CostList, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Snippet == nil || it.Snippet.TopLevelComment == nil {
			continue
		}
		s := it.Snippet.TopLevelComment.Snippet
		out = append(out, Comment{
			Author:      s.AuthorDisplayName,
			Text:        s.TextDisplay,
			LikeCount:   s.LikeCount,
			PublishedAt: s.PublishedAt,
		})
	}
	return out, nil
}

// get performs one API call: quota pre-check, request, classification, spend.
func (c *Client) get(ctx context.Context, path string, params url.Values, cost int64, out any) error {
	if resetAt, exhausted := c.quota.ResumeAt(); exhausted {
		return &APIError{
			Kind:    KindQuotaExhausted,
			Message: "daily quota exhausted (local)",
			ResetAt: resetAt,
		}
	}

	params.Set("key", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("youtube: request failed", "path", path, "err", err)
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.quota.Spend(cost)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classify(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "decode: " + err.Error()}
	}
	return nil
}

// classify builds an APIError from a non-2xx response and records quota
// exhaustion in the tracker.
func (c *Client) classify(status int, body []byte) *APIError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	reason := ""
	if len(er.Error.Errors) > 0 {
		reason = er.Error.Errors[0].Reason
	}
	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	apiErr := &APIError{
		Kind:       classifyStatus(status, reason),
		StatusCode: status,
		Reason:     reason,
		Message:    msg,
	}
	if apiErr.Kind == KindQuotaExhausted {
		c.quota.MarkExhausted(time.Time{})
		apiErr.ResetAt, _ = c.quota.ResumeAt()
		c.log.Warn("youtube: quota exhausted", "reason", reason, "reset_at", apiErr.ResetAt)
	}
	return apiErr
}

// chunkIDs splits ids into batches of at most n, dropping empties.
func chunkIDs(ids []string, n int) [][]string {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			clean = append(clean, id)
		}
	}
	var batches [][]string
	for len(clean) > 0 {
		k := n
		if len(clean) < k {
			k = len(clean)
		}
		batches = append(batches, clean[:k])
		clean = clean[k:]
	}
	return batches
}
