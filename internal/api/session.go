package api

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mailwright/internal/pipeline"
	"github.com/starford/mailwright/internal/session"
)

const maxImageUpload = 10 << 20

// SessionHandler exposes the editing session.
type SessionHandler struct {
	p *pipeline.Pipeline
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(p *pipeline.Pipeline) *SessionHandler {
	return &SessionHandler{p: p}
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		List the template catalog
//	@Tags			templates
//	@Produce		json
//	@Success		200	{array}	TemplateDTO
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *SessionHandler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	list := h.p.Catalog().List()
	out := make([]TemplateDTO, 0, len(list))
	for _, t := range list {
		out = append(out, templateDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/session.
//
//	@Summary		Current editing session
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *SessionHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse(h.p.Snapshot()))
}

// New handles POST /api/session/new.
//
//	@Summary		Start a new project, discarding the session
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session/new [post]
func (h *SessionHandler) New(w http.ResponseWriter, _ *http.Request) {
	h.p.NewProject()
	writeJSON(w, http.StatusOK, sessionResponse(h.p.Snapshot()))
}

// SelectTemplate handles POST /api/session/template.
//
//	@Summary		Switch template; values entered under the old one are dropped
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectTemplateRequest	true	"Template key"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/template [post]
func (h *SessionHandler) SelectTemplate(w http.ResponseWriter, r *http.Request) {
	var req SelectTemplateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	if err := h.p.SelectTemplate(req.Key); err != nil {
		writeError(w, "select template", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(h.p.Snapshot()))
}

// PatchFields handles PATCH /api/session/fields.
//
//	@Summary		Apply field edits
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FieldsRequest	true	"Edits"
//	@Success		200		{object}	EditResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/fields [patch]
func (h *SessionHandler) PatchFields(w http.ResponseWriter, r *http.Request) {
	var req FieldsRequest
	if !decode(w, r, &req) {
		return
	}

	outcomes := map[string]string{}
	record := func(key string, out session.Outcome, err error) bool {
		if err != nil {
			writeError(w, "patch fields", err)
			return false
		}
		outcomes[key] = out.String()
		return true
	}

	for _, k := range sortedKeys(req.Fields) {
		out, err := h.p.SetField(k, req.Fields[k])
		if !record(k, out, err) {
			return
		}
	}
	for _, k := range sortedKeys(req.RichText) {
		out, err := h.p.SetRichText(k, req.RichText[k])
		if !record(k, out, err) {
			return
		}
	}
	if req.ProjectName != nil {
		out, err := h.p.SetProjectName(*req.ProjectName)
		if !record("projectName", out, err) {
			return
		}
	}
	if req.CreativeDirection != nil {
		out, err := h.p.SetCreativeDirection(*req.CreativeDirection)
		if !record("creativeDirection", out, err) {
			return
		}
	}
	writeJSON(w, http.StatusOK, EditResponse{Outcomes: outcomes, Session: sessionResponse(h.p.Snapshot())})
}

// UploadImage handles POST /api/session/images/{slot} (multipart/form-data,
// field "file").
//
//	@Summary		Upload an image into a slot
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			slot	path		string	true	"Image slot"
//	@Param			file	formData	file	true	"Image"
//	@Success		200		{object}	ImageUploadResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/images/{slot} [post]
func (h *SessionHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload+1<<20)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	slot := chi.URLParam(r, "slot")
	out, err := h.p.DropImage(r.Context(), slot, header.Filename, data)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	h.writeImage(w, slot, out)
}

// PasteImage handles POST /api/session/images/{slot}/paste.
//
//	@Summary		Paste an image from a data URI or URL
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Param			slot	path		string			true	"Image slot"
//	@Param			body	body		PasteRequest	true	"Source"
//	@Success		200		{object}	ImageUploadResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/images/{slot}/paste [post]
func (h *SessionHandler) PasteImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<20)
	var req PasteRequest
	if !decode(w, r, &req) {
		return
	}
	slot := chi.URLParam(r, "slot")
	out, err := h.p.PasteImage(r.Context(), slot, req.Src)
	if err != nil {
		writeError(w, "paste image", err)
		return
	}
	h.writeImage(w, slot, out)
}

// SetImageURL handles PUT /api/session/images/{slot}.
//
//	@Summary		Point a slot at an already hosted image
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Param			slot	path		string			true	"Image slot"
//	@Param			body	body		ImageURLRequest	true	"URL"
//	@Success		200		{object}	ImageUploadResponse
//	@Security		BearerAuth
//	@Router			/session/images/{slot} [put]
func (h *SessionHandler) SetImageURL(w http.ResponseWriter, r *http.Request) {
	var req ImageURLRequest
	if !decode(w, r, &req) {
		return
	}
	slot := chi.URLParam(r, "slot")
	out, err := h.p.SetImageURL(slot, req.URL)
	if err != nil {
		writeError(w, "set image", err)
		return
	}
	h.writeImage(w, slot, out)
}

// RemoveImage handles DELETE /api/session/images/{slot}.
//
//	@Summary		Empty an image slot
//	@Tags			images
//	@Produce		json
//	@Param			slot	path		string	true	"Image slot"
//	@Success		200		{object}	ImageUploadResponse
//	@Security		BearerAuth
//	@Router			/session/images/{slot} [delete]
func (h *SessionHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	out, err := h.p.RemoveImage(slot)
	if err != nil {
		writeError(w, "remove image", err)
		return
	}
	h.writeImage(w, slot, out)
}

func (h *SessionHandler) writeImage(w http.ResponseWriter, slot string, out session.Outcome) {
	resp := ImageUploadResponse{Outcome: out.String()}
	if out == session.Applied {
		resp.URL = h.p.Snapshot().Images[slot]
	}
	writeJSON(w, http.StatusOK, resp)
}

// Load handles POST /api/session/load. It returns once the load committed
// or failed.
//
//	@Summary		Load a design into the session
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoadRequest	true	"Source"
//	@Success		200		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/load [post]
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" && req.Source != "resume" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}

	var err error
	switch req.Source {
	case "design":
		err = h.p.LoadDesign(r.Context(), req.ID)
	case "file":
		err = h.p.LoadFile(r.Context(), req.ID)
	case "local":
		err = h.p.LoadLocal(r.Context(), req.ID)
	case "share":
		err = h.p.LoadShare(r.Context(), req.ID)
	case "resume":
		err = h.p.Resume(r.Context())
	default:
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown source %q", req.Source)))
		return
	}
	if err != nil {
		writeError(w, "load", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(h.p.Snapshot()))
}

// Save handles POST /api/session/save.
//
//	@Summary		Save to the current target (or the given destination)
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	false	"Destination for a design without a target"
//	@Success		200		{object}	SaveResponse
//	@Failure		413		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/save [post]
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	ctx := r.Context()
	if req.Destination != nil {
		ctx = pipeline.WithDestination(ctx, *req.Destination)
	}
	id, err := h.p.Save(ctx)
	if err != nil {
		writeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Saved: id.HasTarget(), Identity: id, Dirty: h.p.HasUnsavedChanges()})
}

// SaveAs handles POST /api/session/save-as.
//
//	@Summary		Save to a new target and repoint the session there
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	true	"Destination"
//	@Success		200		{object}	SaveResponse
//	@Failure		413		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/save-as [post]
func (h *SessionHandler) SaveAs(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Destination == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("destination is required"))
		return
	}
	id, err := h.p.SaveAs(r.Context(), *req.Destination)
	if err != nil {
		writeError(w, "save as", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Saved: id.HasTarget(), Identity: id, Dirty: h.p.HasUnsavedChanges()})
}

// Dirty handles GET /api/session/dirty.
//
//	@Summary		Whether leaving now would lose edits
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	DirtyResponse
//	@Security		BearerAuth
//	@Router			/session/dirty [get]
func (h *SessionHandler) Dirty(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DirtyResponse{Dirty: h.p.HasUnsavedChanges()})
}

// Leave handles POST /api/session/leave.
//
//	@Summary		Resolve navigation away from the editor
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LeaveRequest	true	"Choice"
//	@Success		200		{object}	LeaveResponse
//	@Security		BearerAuth
//	@Router			/session/leave [post]
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if !decode(w, r, &req) {
		return
	}
	choice := pipeline.LeaveChoice(req.Choice)
	switch choice {
	case pipeline.LeaveSave, pipeline.LeaveDiscard, pipeline.LeaveCancel:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown choice %q", req.Choice)))
		return
	}
	ctx := r.Context()
	if req.Destination != nil {
		ctx = pipeline.WithDestination(ctx, *req.Destination)
	}
	left, err := h.p.ConfirmLeave(ctx, choice)
	if err != nil {
		writeError(w, "leave", err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveResponse{Left: left})
}

// Preview handles GET /api/session/preview.
//
//	@Summary		Rendered email HTML for the session
//	@Tags			session
//	@Produce		html
//	@Success		200	{string}	string
//	@Security		BearerAuth
//	@Router			/session/preview [get]
func (h *SessionHandler) Preview(w http.ResponseWriter, _ *http.Request) {
	html, err := h.p.Preview()
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

// Export handles POST /api/session/export.
//
//	@Summary		Render and record an HTML export
//	@Tags			session
//	@Produce		json
//	@Success		201	{object}	models.Export
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/export [post]
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	e, err := h.p.Export(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Share handles POST /api/session/share.
//
//	@Summary		Create a read-only share snapshot
//	@Tags			session
//	@Produce		json
//	@Success		201	{object}	ShareResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/share [post]
func (h *SessionHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, err := h.p.CreateShare(r.Context())
	if err != nil {
		writeError(w, "share", err)
		return
	}
	writeJSON(w, http.StatusCreated, ShareResponse{ID: id, URL: "/?share=" + id})
}

// GetShare handles GET /api/shares/{id}.
//
//	@Summary		Read a share snapshot
//	@Tags			shares
//	@Produce		json
//	@Param			id	path		string	true	"Share id"
//	@Success		200	{object}	models.ShareSnapshot
//	@Failure		404	{object}	errResponse
//	@Router			/shares/{id} [get]
func (h *SessionHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	s, err := h.p.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get share", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

