// Package kit holds the small transport glue shared by vidwatch surfaces.
package kit

import "context"

// Endpoint is a transport-agnostic request handler. Each MCP tool and HTTP
// handler reduces to one of these.
type Endpoint func(ctx context.Context, request any) (any, error)
