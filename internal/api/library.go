package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/models"
)

// LibraryHandler exposes saved designs, folders, exports and feedback.
type LibraryHandler struct {
	lib *library.Service
}

// NewLibraryHandler creates a LibraryHandler.
func NewLibraryHandler(lib *library.Service) *LibraryHandler {
	return &LibraryHandler{lib: lib}
}

// ListDesigns handles GET /api/designs.
//
//	@Summary		List saved designs
//	@Tags			designs
//	@Produce		json
//	@Param			folder	query		string	false	"Folder id; \"root\" for designs in no folder"
//	@Param			status	query		string	false	"Status filter"
//	@Param			since	query		string	false	"RFC 3339 lower bound on savedAt"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	DesignListResponse
//	@Security		BearerAuth
//	@Router			/designs [get]
func (h *LibraryHandler) ListDesigns(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	since, err := listSince(qs.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("since must be RFC 3339"))
		return
	}
	q := library.DesignQuery{Status: qs.Get("status"), Since: since, Limit: queryInt(qs.Get("limit"))}
	switch folder := qs.Get("folder"); folder {
	case "":
	case "root":
		q.Root = true
	default:
		q.FolderID = folder
	}

	designs, err := h.lib.ListDesigns(r.Context(), q)
	if err != nil {
		writeError(w, "list designs", err)
		return
	}
	writeJSON(w, http.StatusOK, DesignListResponse{Designs: designs})
}

// GetDesign handles GET /api/designs/{id}.
//
//	@Summary		Read a saved design
//	@Tags			designs
//	@Produce		json
//	@Param			id	path		string	true	"Design id"
//	@Success		200	{object}	models.Design
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id} [get]
func (h *LibraryHandler) GetDesign(w http.ResponseWriter, r *http.Request) {
	d, err := h.lib.GetDesign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get design", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDesign handles DELETE /api/designs/{id}.
//
//	@Summary		Delete a saved design
//	@Tags			designs
//	@Param			id	path	string	true	"Design id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id} [delete]
func (h *LibraryHandler) DeleteDesign(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteDesign(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete design", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveDesign handles POST /api/designs/{id}/folder.
//
//	@Summary		Move a design into a folder (null for the root)
//	@Tags			designs
//	@Accept			json
//	@Param			id		path	string		true	"Design id"
//	@Param			body	body	MoveRequest	true	"Folder"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/designs/{id}/folder [post]
func (h *LibraryHandler) MoveDesign(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.lib.MoveDesign(r.Context(), chi.URLParam(r, "id"), req.FolderID); err != nil {
		writeError(w, "move design", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFolders handles GET /api/folders.
//
//	@Summary		List folders
//	@Tags			folders
//	@Produce		json
//	@Success		200	{array}	models.Folder
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *LibraryHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.lib.ListFolders(r.Context())
	if err != nil {
		writeError(w, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FolderRequest	true	"Folder"
//	@Success		201		{object}	models.Folder
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *LibraryHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.lib.CreateFolder(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// DeleteFolder handles DELETE /api/folders/{id}. Its designs move to the
// root.
//
//	@Summary		Delete a folder
//	@Tags			folders
//	@Param			id	path	string	true	"Folder id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{id} [delete]
func (h *LibraryHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteFolder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExports handles GET /api/exports.
//
//	@Summary		List exports
//	@Tags			exports
//	@Produce		json
//	@Param			design	query		string	false	"Design id"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	ExportListResponse
//	@Security		BearerAuth
//	@Router			/exports [get]
func (h *LibraryHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.lib.ListExports(r.Context(), r.URL.Query().Get("design"), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, "list exports", err)
		return
	}
	if exports == nil {
		exports = []models.Export{}
	}
	writeJSON(w, http.StatusOK, ExportListResponse{Exports: exports})
}

// ListFeedback handles GET /api/feedback.
//
//	@Summary		List feedback
//	@Tags			feedback
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	FeedbackListResponse
//	@Security		BearerAuth
//	@Router			/feedback [get]
func (h *LibraryHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := h.lib.ListFeedback(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, "list feedback", err)
		return
	}
	if fb == nil {
		fb = []models.Feedback{}
	}
	writeJSON(w, http.StatusOK, FeedbackListResponse{Feedback: fb})
}

// SubmitFeedback handles POST /api/feedback.
//
//	@Summary		Submit feedback
//	@Tags			feedback
//	@Accept			json
//	@Produce		json
//	@Param			body	body		library.FeedbackInput	true	"Feedback"
//	@Success		201		{object}	models.Feedback
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/feedback [post]
func (h *LibraryHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var in library.FeedbackInput
	if !decode(w, r, &in) {
		return
	}
	fb, err := h.lib.SubmitFeedback(r.Context(), in)
	if err != nil {
		writeError(w, "submit feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// ListFiles handles GET /api/files.
//
//	@Summary		List design files in the local designs directory
//	@Tags			files
//	@Produce		json
//	@Success		200	{array}	storage.FileInfo
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *LibraryHandler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := h.lib.ListFiles()
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// queryInt parses a non-negative integer query value; anything else is 0.
func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
