package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lbarthe/vidwatch/kit"
)

// RegisterMCP registers all tracker tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerRegisterVideo(srv)
	svc.registerRemoveVideo(srv)
	svc.registerCollectNow(srv)
	svc.registerVideoTrend(srv)
	svc.registerListTracked(srv)
	svc.registerStats(srv)
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

func (svc *Service) registerRegisterVideo(srv *mcp.Server) {
	type req struct {
		VideoID string `json:"video_id"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_register_video",
		Description: "Start tracking a video's performance metrics",
		InputSchema: inputSchema(map[string]any{
			"video_id": map[string]any{"type": "string", "description": "Video ID"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.RegisterVideo(ctx, p.VideoID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (svc *Service) registerRemoveVideo(srv *mcp.Server) {
	type req struct {
		VideoID      string `json:"video_id"`
		PurgeHistory bool   `json:"purge_history"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_remove_video",
		Description: "Stop tracking a video, optionally purging its snapshot history",
		InputSchema: inputSchema(map[string]any{
			"video_id":      map[string]any{"type": "string", "description": "Video ID"},
			"purge_history": map[string]any{"type": "boolean", "description": "Also delete stored snapshots"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.RemoveVideo(ctx, p.VideoID, p.PurgeHistory); err != nil {
			return nil, err
		}
		return map[string]any{"removed": p.VideoID, "purged": p.PurgeHistory}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (svc *Service) registerCollectNow(srv *mcp.Server) {
	type req struct {
		VideoID string `json:"video_id"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_collect_now",
		Description: "Queue an immediate metric collection for a tracked video",
		InputSchema: inputSchema(map[string]any{
			"video_id": map[string]any{"type": "string", "description": "Video ID"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.CollectNow(ctx, p.VideoID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (svc *Service) registerVideoTrend(srv *mcp.Server) {
	type req struct {
		VideoID string `json:"video_id"`
		From    string `json:"from"`
		To      string `json:"to"`
		Unit    string `json:"unit"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_video_trend",
		Description: "Analyze growth and engagement for a tracked video over a time window",
		InputSchema: inputSchema(map[string]any{
			"video_id": map[string]any{"type": "string", "description": "Video ID"},
			"from":     map[string]any{"type": "string", "description": "Window start, RFC 3339 (optional)"},
			"to":       map[string]any{"type": "string", "description": "Window end, RFC 3339 (optional)"},
			"unit":     map[string]any{"type": "string", "description": "Bucket width: hour, day, week, month (default day)"},
		}, []string{"video_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		q := TrendQuery{VideoID: p.VideoID, Unit: p.Unit}
		var err error
		if q.From, err = parseRFC3339(p.From); err != nil {
			return nil, err
		}
		if q.To, err = parseRFC3339(p.To); err != nil {
			return nil, err
		}
		return svc.Trend(ctx, q)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (svc *Service) registerListTracked(srv *mcp.Server) {
	type req struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}

	tool := &mcp.Tool{
		Name:        "vidwatch_list_tracked",
		Description: "List tracked videos, optionally filtered by status",
		InputSchema: inputSchema(map[string]any{
			"status": map[string]any{"type": "string", "description": "Filter: active or unavailable"},
			"limit":  map[string]any{"type": "integer", "description": "Max results"},
			"offset": map[string]any{"type": "integer", "description": "Pagination offset"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ListTracked(ctx, p.Status, p.Limit, p.Offset)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

func (svc *Service) registerStats(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "vidwatch_stats",
		Description: "Operational summary: tracked counts, pending tasks, quota state",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.Stats(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[req])
}

// decodeJSON builds the standard decode function for a request type.
func decodeJSON[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if len(r.Params.Arguments) > 0 {
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}

func parseRFC3339(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
