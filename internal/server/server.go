package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/session"
	"github.com/sessionmind/memory-mcp/internal/tools"
)

// New creates a fully configured MCP server with all tools registered.
func New(sess *session.Manager) *mcp.Server {
	pt := &tools.ProjectTools{Session: sess}
	kt := &tools.KnowledgeTools{Session: sess}
	mt := &tools.MemoryTools{Session: sess}
	dt := &tools.DiscoveryTools{Session: sess}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "memory-mcp",
		Version: "0.2.0",
	}, nil)

	// Project management tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List all projects with optional status filter (active, archived, all)",
	}, pt.ListProjects)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a new project with its own isolated database",
	}, pt.CreateProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "use_project",
		Description: "Switch the active project context, optionally creating it",
	}, pt.UseProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_current_project",
		Description: "Get information about the currently active project",
	}, pt.GetCurrentProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "archive_project",
		Description: "Archive a project (preserves data, makes it inactive)",
	}, pt.ArchiveProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_project",
		Description: "Permanently delete a project and all its data (irreversible)",
	}, pt.DeleteProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "restore_project",
		Description: "Restore an archived project back to active status",
	}, pt.RestoreProject)

	// Knowledge graph tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create entities with embeddings; set auto_discover to infer relationships automatically (requires active project)",
	}, kt.CreateEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Add observations to an existing entity and refresh its embedding (requires active project)",
	}, kt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relations",
		Description: "Create directed relations between entities; duplicates are reported, not errors (requires active project)",
	}, kt.CreateRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_similar",
		Description: "Find entities semantically similar to a name or free text, with keyword fallback (requires active project)",
	}, kt.FindSimilar)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_nodes",
		Description: "Retrieve specific entities by exact name match, with their relations (requires active project)",
	}, kt.OpenNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_graph",
		Description: "Read the entire knowledge graph of the current project (requires active project)",
	}, kt.ReadGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Soft-delete entities and cascade to their observations and relations (requires active project)",
	}, kt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_observations",
		Description: "Soft-delete specific observations from an entity (requires active project)",
	}, kt.DeleteObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Soft-delete specific relations (requires active project)",
	}, kt.DeleteRelations)

	// Memory tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store an unstructured memory with tags and metadata (requires active project)",
	}, mt.StoreMemory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_memory",
		Description: "Search stored memories by semantic similarity, with keyword fallback (requires active project)",
	}, mt.SearchMemory)

	// Discovery tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "discover_transitive_relationships",
		Description: "Materialize relations implied by chains (A->B->C implies A->C); idempotent (requires active project)",
	}, dt.DiscoverTransitive)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "extract_pattern_relationships",
		Description: "Scan an entity's observations for verb patterns naming other entities and create relations (requires active project)",
	}, dt.ExtractPatterns)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Graph counts, confidence and discovery-method distributions, and embedding cache stats (requires active project)",
	}, dt.MemoryStats)

	return srv
}
