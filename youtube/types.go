package youtube

import (
	"encoding/json"
	"strconv"
	"time"
)

// Counters is one reading of a video's cumulative counters. Values are raw
// as reported by the upstream; decreases between readings are possible and
// preserved.
type Counters struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
}

// VideoDetails is the descriptive metadata captured once at registration.
type VideoDetails struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	Duration     string    `json:"duration,omitempty"`
	Counters     Counters  `json:"counters"`
}

// Channel is the catalog view of a channel.
type Channel struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Subscribers int64     `json:"subscribers"`
	VideoCount  int64     `json:"video_count"`
	ViewCount   int64     `json:"view_count"`
}

// SearchResult is one hit from a video search.
type SearchResult struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
}

// Comment is one top-level comment on a video.
type Comment struct {
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
}

// Wire shapes. Statistics counters come back as decimal strings, hence the
// count type below.

type listResponse struct {
	Items         []item `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type item struct {
	ID             itemID          `json:"id"`
	Snippet        *snippet        `json:"snippet"`
	Statistics     *statistics     `json:"statistics"`
	ContentDetails *contentDetails `json:"contentDetails"`
}

// itemID is a plain string on videos.list and channels.list but an object on
// search.list.
type itemID struct {
	s string
}

func (id *itemID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &id.s)
	}
	var obj struct {
		VideoID string `json:"videoId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	id.s = obj.VideoID
	return nil
}

type snippet struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	PublishedAt  time.Time `json:"publishedAt"`

	// commentThreads nests the comment under topLevelComment.snippet; the
	// client flattens it after decoding.
	TopLevelComment *struct {
		Snippet struct {
			AuthorDisplayName string    `json:"authorDisplayName"`
			TextDisplay       string    `json:"textDisplay"`
			LikeCount         int64     `json:"likeCount"`
			PublishedAt       time.Time `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"topLevelComment"`
}

type statistics struct {
	ViewCount       count `json:"viewCount"`
	LikeCount       count `json:"likeCount"`
	CommentCount    count `json:"commentCount"`
	SubscriberCount count `json:"subscriberCount"`
	VideoCount      count `json:"videoCount"`
}

type contentDetails struct {
	Duration string `json:"duration"`
}

// count decodes the upstream's string-encoded integers. Absent or empty
// values decode to zero (the upstream omits likeCount when ratings are
// hidden).
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*c = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*c = count(n)
	return nil
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}
