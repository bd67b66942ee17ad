package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/pipeline"
	"github.com/starford/mailwright/internal/testutil"
)

func testServer(t *testing.T) (*Server, *pipeline.Pipeline) {
	t.Helper()
	st := testutil.SQLiteStore(t)
	_, files := testutil.Designs(t)

	p := pipeline.New(pipeline.Deps{
		Catalog: testutil.Catalog(t),
		Store:   st,
		Files:   files,
		Images:  testutil.Images(t),
	}, pipeline.WithPrompter(pipeline.ContextPrompter{}), pipeline.WithAutoSaveInterval(time.Hour))
	t.Cleanup(p.Close)

	return New(p, library.NewService(st, files, p)), p
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_templates":  srv.listTemplates,
		"get_session":     srv.getSession,
		"select_template": srv.selectTemplate,
		"set_field":       srv.setField,
		"paste_image":     srv.pasteImage,
		"load_design":     srv.loadDesign,
		"save_design":     srv.saveDesign,
		"list_designs":    srv.listDesigns,
		"render_preview":  srv.renderPreview,
		"create_share":    srv.createShare,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func fillWebinar(t *testing.T, srv *Server) {
	t.Helper()
	if r := callTool(t, srv, "select_template", map[string]any{"key": "webinar-invite"}); r.IsError {
		t.Fatalf("select_template: %s", resultText(r))
	}
	for k, v := range map[string]string{
		"headline":     "Scaling Postgres",
		"date":         "Thursday, 10:00 AM PT",
		"cta_url":      "https://example.com/register",
		"project_name": "Spring webinar",
	} {
		if r := callTool(t, srv, "set_field", map[string]any{"key": k, "value": v}); r.IsError {
			t.Fatalf("set_field %s: %s", k, resultText(r))
		}
	}
}

func TestListTemplates(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "list_templates", nil))
	var got []templateInfo
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d templates, want 3", len(got))
	}
}

func TestSetFieldWithoutTemplate(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "set_field", map[string]any{"key": "headline", "value": "x"})
	if got := resultText(r); got != "headline: discarded_no_template" {
		t.Errorf("result = %q", got)
	}
}

func TestSetFieldUnknownKey(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "select_template", map[string]any{"key": "webinar-invite"})
	if r := callTool(t, srv, "set_field", map[string]any{"key": "nope", "value": "x"}); !r.IsError {
		t.Error("expected error for unknown field")
	}
}

func TestSaveNeedsDestination(t *testing.T) {
	srv, p := testServer(t)
	fillWebinar(t, srv)

	if r := callTool(t, srv, "save_design", map[string]any{}); !r.IsError {
		t.Error("expected error without destination")
	}
	if !p.HasUnsavedChanges() {
		t.Error("session should still be dirty")
	}
}

func TestSaveAndReload(t *testing.T) {
	srv, p := testServer(t)
	fillWebinar(t, srv)

	r := callTool(t, srv, "save_design", map[string]any{"destination": "server"})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "saved: server:") {
		t.Fatalf("save = %q", text)
	}
	id := strings.TrimPrefix(text, "saved: server:")

	list := resultText(callTool(t, srv, "list_designs", map[string]any{"folder": "root"}))
	if !strings.Contains(list, id) {
		t.Errorf("list_designs missing %s: %s", id, list)
	}

	p.NewProject()
	r = callTool(t, srv, "load_design", map[string]any{"source": "design", "id": id})
	if r.IsError {
		t.Fatalf("load: %s", resultText(r))
	}
	var s sessionInfo
	if err := json.Unmarshal([]byte(resultText(r)), &s); err != nil {
		t.Fatal(err)
	}
	if s.Fields["headline"] != "Scaling Postgres" || s.Dirty {
		t.Errorf("session = %+v", s)
	}
}

func TestSaveToFile(t *testing.T) {
	srv, _ := testServer(t)
	fillWebinar(t, srv)
	if r := callTool(t, srv, "save_design", map[string]any{"destination": "file"}); !r.IsError {
		t.Error("expected error without name")
	}
	r := callTool(t, srv, "save_design", map[string]any{"destination": "file", "name": "spring"})
	if got := resultText(r); got != "saved: file:spring.json" {
		t.Errorf("save = %q", got)
	}
}

func TestLoadMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "load_design", map[string]any{"source": "design", "id": "nope"})
	if !r.IsError || resultText(r) != "not found" {
		t.Errorf("result = %q, error = %v", resultText(r), r.IsError)
	}
}

func TestPasteImage(t *testing.T) {
	srv, p := testServer(t)
	callTool(t, srv, "select_template", map[string]any{"key": "webinar-invite"})
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	r := callTool(t, srv, "paste_image", map[string]any{"slot": "hero", "src": src})
	if r.IsError {
		t.Fatalf("paste: %s", resultText(r))
	}
	if url := p.Snapshot().Images["hero"]; !strings.HasPrefix(url, "/images/") {
		t.Errorf("hero = %q", url)
	}
}

func TestPreviewAndShare(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "select_template", map[string]any{"key": "webinar-invite"})
	if r := callTool(t, srv, "create_share", nil); !r.IsError || !strings.Contains(resultText(r), "headline") {
		t.Errorf("incomplete share = %q", resultText(r))
	}

	fillWebinar(t, srv)
	if html := resultText(callTool(t, srv, "render_preview", nil)); !strings.Contains(html, "Scaling Postgres") {
		t.Error("preview missing headline")
	}
	r := callTool(t, srv, "create_share", nil)
	if r.IsError || !strings.Contains(resultText(r), "/?share=") {
		t.Errorf("share = %q", resultText(r))
	}
}

func TestFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	got, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := got[0].(mcp.TextResourceContents)
	if !ok || tc.URI != formatURI || !strings.Contains(tc.Text, "select_template") {
		t.Errorf("resource = %+v", got[0])
	}
}
