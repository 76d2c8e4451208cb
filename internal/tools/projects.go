package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/session"
)

// ProjectTools holds references needed by project management tool handlers.
type ProjectTools struct {
	Session *session.Manager
}

// --- Input types ---

type ListProjectsInput struct {
	Status string `json:"status" jsonschema:"Filter projects by status: active, archived, or all"`
}

type CreateProjectInput struct {
	Name        string `json:"name" jsonschema:"Unique project name (slug-friendly)"`
	Description string `json:"description,omitempty" jsonschema:"Optional project description"`
}

type UseProjectInput struct {
	Name   string `json:"name" jsonschema:"Name of the project to switch to"`
	Create bool   `json:"create,omitempty" jsonschema:"Create the project if it does not exist"`
}

type ArchiveProjectInput struct {
	Name string `json:"name" jsonschema:"Name of the project to archive"`
}

type DeleteProjectInput struct {
	Name string `json:"name" jsonschema:"Name of the project to permanently delete"`
}

type RestoreProjectInput struct {
	Name string `json:"name" jsonschema:"Name of the archived project to restore"`
}

// --- Handlers ---

func (t *ProjectTools) ListProjects(_ context.Context, _ *mcp.CallToolRequest, input ListProjectsInput) (*mcp.CallToolResult, any, error) {
	status := input.Status
	if status == "" {
		status = "active"
	}

	projects, err := t.Session.Meta().ListProjects(status)
	if err != nil {
		return toolError("Failed to list projects: %v", err), nil, nil
	}
	if projects == nil {
		projects = []models.Project{}
	}

	return toolJSON(projects)
}

func (t *ProjectTools) CreateProject(_ context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	proj, err := t.Session.Meta().CreateProject(input.Name, input.Description)
	if err != nil {
		return toolError("Failed to create project: %v", err), nil, nil
	}

	// Auto-switch to the new project
	if _, err := t.Session.Use(proj.Name, false); err != nil {
		return toolError("Project created but failed to switch: %v", err), nil, nil
	}

	return toolJSON(proj)
}

func (t *ProjectTools) UseProject(_ context.Context, _ *mcp.CallToolRequest, input UseProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	proj, err := t.Session.Use(input.Name, input.Create)
	if err != nil {
		return toolError("Failed to switch project: %v", err), nil, nil
	}

	return toolJSON(proj)
}

func (t *ProjectTools) GetCurrentProject(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	name := t.Session.Current()
	if name == "" {
		return toolText("No project is currently active. Use use_project to select one."), nil, nil
	}

	proj, err := t.Session.Meta().GetProjectByName(name)
	if err != nil {
		return toolText(fmt.Sprintf("Active project: %s (details unavailable)", name)), nil, nil
	}

	return toolJSON(proj)
}

func (t *ProjectTools) ArchiveProject(_ context.Context, _ *mcp.CallToolRequest, input ArchiveProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	// Close the graph database before the file is moved
	t.Session.Release(input.Name)

	proj, err := t.Session.Meta().ArchiveProject(input.Name)
	if err != nil {
		return toolError("Failed to archive project: %v", err), nil, nil
	}

	return toolJSON(proj)
}

func (t *ProjectTools) DeleteProject(_ context.Context, _ *mcp.CallToolRequest, input DeleteProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	t.Session.Release(input.Name)

	if err := t.Session.Meta().DeleteProject(input.Name); err != nil {
		return toolError("Failed to delete project: %v", err), nil, nil
	}

	return toolText(fmt.Sprintf("Project %q permanently deleted.", input.Name)), nil, nil
}

func (t *ProjectTools) RestoreProject(_ context.Context, _ *mcp.CallToolRequest, input RestoreProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	proj, err := t.Session.Meta().RestoreProject(input.Name)
	if err != nil {
		return toolError("Failed to restore project: %v", err), nil, nil
	}

	return toolJSON(proj)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
