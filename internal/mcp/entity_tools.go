package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/contextengine/internal/entityindex"
)

// IndexCodeInput defines the input schema for index_code.
type IndexCodeInput struct {
	Directory string `json:"directory" jsonschema:"root directory to scan for code symbols"`
	Recursive *bool  `json:"recursive,omitempty" jsonschema:"descend into subdirectories, default true"`
}

// IndexCodeOutput defines the output of index_code.
type IndexCodeOutput struct {
	EntitiesIndexed int `json:"entities_indexed"`
}

// IndexCode rebuilds the entity index (G) from directory, the handler for
// the index_code tool.
func (c *Core) IndexCode(ctx context.Context, in IndexCodeInput) (*IndexCodeOutput, error) {
	if in.Directory == "" {
		return nil, newDispatchError(KindInvalidRequest, "directory is required")
	}
	recursive := true
	if in.Recursive != nil {
		recursive = *in.Recursive
	}
	if err := c.rebuildEntities(ctx, in.Directory, recursive); err != nil {
		return nil, err
	}
	return &IndexCodeOutput{EntitiesIndexed: len(c.entities.Names())}, nil
}

// SearchEntityInput defines the input schema for search_entity.
type SearchEntityInput struct {
	Name       string `json:"name" jsonschema:"substring to search for in entity names"`
	EntityType string `json:"entity_type,omitempty" jsonschema:"one of: function, class, any; default any"`
}

// SearchEntityOutput defines the output of search_entity.
type SearchEntityOutput struct {
	Entities []entityindex.Record `json:"entities"`
}

// SearchEntity looks up code symbols by name substring, the handler for
// search_entity.
func (c *Core) SearchEntity(ctx context.Context, in SearchEntityInput) (*SearchEntityOutput, error) {
	if c.entities == nil {
		return nil, errDisabled
	}
	if in.Name == "" {
		return nil, newDispatchError(KindInvalidRequest, "name is required")
	}
	var records []entityindex.Record
	switch in.EntityType {
	case "function":
		records = c.entities.SearchFunction(in.Name)
	case "class":
		records = c.entities.SearchClass(in.Name)
	case "", "any":
		records = append(c.entities.SearchFunction(in.Name), c.entities.SearchClass(in.Name)...)
	default:
		return nil, newDispatchError(KindInvalidRequest, "unknown entity_type %q", in.EntityType)
	}
	return &SearchEntityOutput{Entities: records}, nil
}

func (s *Server) mcpIndexCodeHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexCodeInput) (
	*mcp.CallToolResult, *IndexCodeOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "entity indexing is not configured")
	}
	out, err := s.core.IndexCode(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpSearchEntityHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchEntityInput) (
	*mcp.CallToolResult, *SearchEntityOutput, error,
) {
	if s.core == nil {
		return nil, nil, newDispatchError(KindDisabled, "entity indexing is not configured")
	}
	out, err := s.core.SearchEntity(ctx, input)
	if err != nil {
		return nil, nil, asDispatchError(err)
	}
	return nil, out, nil
}
