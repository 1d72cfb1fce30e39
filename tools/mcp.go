package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lbarthe/vidwatch/kit"
)

// RegisterMCP registers all catalog tools on an MCP server.
func (c *Catalog) RegisterMCP(srv *mcp.Server) {
	c.registerVideoDetails(srv)
	c.registerChannelInfo(srv)
	c.registerSearch(srv)
	c.registerComments(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (c *Catalog) registerVideoDetails(srv *mcp.Server) {
	type req struct {
		VideoID string `json:"video_id"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_video_details",
		Description: "Look up a video's metadata and current counters without tracking it",
		InputSchema: inputSchema(map[string]any{
			"video_id": map[string]any{"type": "string", "description": "Video ID"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.VideoDetails(ctx, p.VideoID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (c *Catalog) registerChannelInfo(srv *mcp.Server) {
	type req struct {
		ChannelID string `json:"channel_id"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_channel_info",
		Description: "Look up a channel's metadata and aggregate counters",
		InputSchema: inputSchema(map[string]any{
			"channel_id": map[string]any{"type": "string", "description": "Channel ID"},
		}, []string{"channel_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.ChannelInfo(ctx, p.ChannelID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (c *Catalog) registerSearch(srv *mcp.Server) {
	type req struct {
		Query string `json:"query"`
		Max   int    `json:"max_results"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_search_videos",
		Description: "Search for videos by keyword (expensive: heavy quota cost)",
		InputSchema: inputSchema(map[string]any{
			"query":       map[string]any{"type": "string", "description": "Search query"},
			"max_results": map[string]any{"type": "integer", "description": "Max results, up to 50"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.Search(ctx, p.Query, p.Max)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (c *Catalog) registerComments(srv *mcp.Server) {
	type req struct {
		VideoID string `json:"video_id"`
		Max     int    `json:"max_results"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_video_comments",
		Description: "Fetch recent top-level comments for a video",
		InputSchema: inputSchema(map[string]any{
			"video_id":    map[string]any{"type": "string", "description": "Video ID"},
			"max_results": map[string]any{"type": "integer", "description": "Max comments, up to 100"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.Comments(ctx, p.VideoID, p.Max)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func decodeJSON[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if len(r.Params.Arguments) > 0 {
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}
