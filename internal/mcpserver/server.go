// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Mailwright editing tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/pipeline"
	"github.com/starford/mailwright/internal/session"
)

const formatURI = "mailwright://design-format"

// Server wraps the MCP server with Mailwright tools.
type Server struct {
	mcp *server.MCPServer
	p   *pipeline.Pipeline
	lib *library.Service
}

// New creates a new MCP server with all Mailwright tools registered.
func New(p *pipeline.Pipeline, lib *library.Service) *Server {
	s := &Server{p: p, lib: lib}

	s.mcp = server.NewMCPServer(
		"Mailwright",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the email templates with their fields and image slots."),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the design being edited: template, field values, images, save target and dirty flag."),
	), s.getSession)

	s.mcp.AddTool(mcp.NewTool("select_template",
		mcp.WithDescription("Switch the session to a template. Values entered under the previous template are dropped. "+
			"Read the mailwright://design-format resource first."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Template key, e.g. webinar-invite")),
	), s.selectTemplate)

	s.mcp.AddTool(mcp.NewTool("set_field",
		mcp.WithDescription("Set one field value. Use project_name and creative_direction for the design's name and brief."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Field id, or project_name / creative_direction")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value; HTML is accepted for richtext fields")),
	), s.setField)

	s.mcp.AddTool(mcp.NewTool("paste_image",
		mcp.WithDescription("Place an image into an image slot from a data URI or an http(s) URL. The image is re-hosted."),
		mcp.WithString("slot", mcp.Required(), mcp.Description("Image slot id, e.g. hero")),
		mcp.WithString("src", mcp.Required(), mcp.Description("data:image/...;base64,... or https://...")),
	), s.pasteImage)

	s.mcp.AddTool(mcp.NewTool("load_design",
		mcp.WithDescription("Load a design into the session, replacing unsaved edits."),
		mcp.WithString("source", mcp.Required(), mcp.Enum("design", "file", "local", "share", "resume"),
			mcp.Description("Where the design lives")),
		mcp.WithString("id", mcp.Description("Design id, file path, local key or share id/link; empty for resume")),
	), s.loadDesign)

	s.mcp.AddTool(mcp.NewTool("save_design",
		mcp.WithDescription("Save the session. A design without a save target needs a destination."),
		mcp.WithString("destination", mcp.Enum("server", "file", "local"),
			mcp.Description("Where to save a design that has no target yet")),
		mcp.WithString("name", mcp.Description("File path or local key for file/local destinations")),
	), s.saveDesign)

	s.mcp.AddTool(mcp.NewTool("list_designs",
		mcp.WithDescription("List saved designs newest first."),
		mcp.WithString("folder", mcp.Description("Folder id, or \"root\" for designs in no folder")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), s.listDesigns)

	s.mcp.AddTool(mcp.NewTool("render_preview",
		mcp.WithDescription("Render the session as email HTML."),
	), s.renderPreview)

	s.mcp.AddTool(mcp.NewTool("create_share",
		mcp.WithDescription("Create a read-only share of the session. All required fields must be filled."),
	), s.createShare)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Design Format",
			mcp.WithResourceDescription("How designs are structured, validated and saved."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type fieldInfo struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Required bool   `json:"required,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

type templateInfo struct {
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Fields      []fieldInfo `json:"fields"`
}

func (s *Server) listTemplates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var out []templateInfo
	for _, t := range s.p.Catalog().List() {
		ti := templateInfo{Key: t.Key, Name: t.Name, Description: t.Description}
		for _, f := range t.Fields {
			ti.Fields = append(ti.Fields, fieldInfo{ID: f.ID, Label: f.Label, Kind: string(f.Kind), Required: f.Required, Hint: hint(f)})
		}
		out = append(out, ti)
	}
	return jsonResult(out)
}

func hint(f catalog.Field) string {
	if v, ok := f.DefaultValue(); ok {
		return "default: " + v
	}
	return f.Hint()
}

type sessionInfo struct {
	TemplateKey       string            `json:"templateKey"`
	ProjectName       string            `json:"projectName"`
	CreativeDirection string            `json:"creativeDirection"`
	Fields            map[string]string `json:"fields"`
	Images            map[string]string `json:"images"`
	Target            string            `json:"target"`
	Dirty             bool              `json:"dirty"`
}

func (s *Server) getSession(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.p.Snapshot()
	return jsonResult(sessionInfo{
		TemplateKey:       snap.TemplateKey,
		ProjectName:       snap.ProjectName,
		CreativeDirection: snap.CreativeDirection,
		Fields:            snap.Fields,
		Images:            snap.Images,
		Target:            snap.Identity.String(),
		Dirty:             snap.Dirty,
	})
}

func (s *Server) selectTemplate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.p.SelectTemplate(key); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("template: " + key), nil
}

func (s *Server) setField(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out session.Outcome
	switch key {
	case "project_name":
		out, err = s.p.SetProjectName(value)
	case "creative_direction":
		out, err = s.p.SetCreativeDirection(value)
	default:
		out, err = s.p.SetField(key, value)
	}
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", key, out)), nil
}

func (s *Server) pasteImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slot, err := req.RequireString("slot")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := req.RequireString("src")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.p.PasteImage(ctx, slot, src)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{"outcome": out.String(), "url": s.p.Snapshot().Images[slot]})
}

func (s *Server) loadDesign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := req.GetString("id", "")
	if id == "" && source != "resume" {
		return mcp.NewToolResultError("id is required"), nil
	}

	switch source {
	case "design":
		err = s.p.LoadDesign(ctx, id)
	case "file":
		err = s.p.LoadFile(ctx, id)
	case "local":
		err = s.p.LoadLocal(ctx, id)
	case "share":
		err = s.p.LoadShare(ctx, id)
	case "resume":
		err = s.p.Resume(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown source %q", source)), nil
	}
	if err != nil {
		return toolError(err), nil
	}
	return s.getSession(ctx, req)
}

func (s *Server) saveDesign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	switch req.GetString("destination", "") {
	case "":
	case "server":
		ctx = pipeline.WithDestination(ctx, models.ServerID(""))
	case "file":
		if name == "" {
			return mcp.NewToolResultError("name is required for file destinations"), nil
		}
		ctx = pipeline.WithDestination(ctx, models.FileHandle(name))
	case "local":
		if name == "" {
			return mcp.NewToolResultError("name is required for local destinations"), nil
		}
		ctx = pipeline.WithDestination(ctx, models.LocalKey(name))
	default:
		return mcp.NewToolResultError("destination must be server, file or local"), nil
	}

	id, err := s.p.Save(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if !id.HasTarget() {
		return mcp.NewToolResultError("design has no save target; pass a destination"), nil
	}
	return mcp.NewToolResultText("saved: " + id.String()), nil
}

func (s *Server) listDesigns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := library.DesignQuery{Limit: req.GetInt("limit", 50)}
	switch folder := req.GetString("folder", ""); folder {
	case "":
	case "root":
		q.Root = true
	default:
		q.FolderID = folder
	}
	designs, err := s.lib.ListDesigns(ctx, q)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(designs)
}

func (s *Server) renderPreview(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := s.p.Preview()
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(html), nil
}

func (s *Server) createShare(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.p.CreateShare(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{"id": id, "url": "/?share=" + id})
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DesignFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a pipeline error into a tool error the model can act on.
func toolError(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError("invalid design: " + verr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrConcurrentLoad):
		return mcp.NewToolResultError("another load replaced this one; retry")
	case errors.Is(err, apperr.ErrStoreUnavailable), errors.Is(err, apperr.ErrLoadTimeout):
		return mcp.NewToolResultError("store unavailable, try again")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
