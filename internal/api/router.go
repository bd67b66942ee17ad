package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/pipeline"
)

// Deps are the services behind the API.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Library  *library.Service
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	Auth   AuthConfig
}

// NewRouter creates a chi router with all API routes mounted. Share reads
// stay public so a share link works without credentials.
func NewRouter(d Deps) chi.Router {
	sh := NewSessionHandler(d.Pipeline)
	lh := NewLibraryHandler(d.Library)

	r := chi.NewRouter()
	r.Get("/shares/{id}", sh.GetShare)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth))

		r.Get("/templates", sh.ListTemplates)

		// Editing session.
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sh.Get)
			r.Post("/new", sh.New)
			r.Post("/template", sh.SelectTemplate)
			r.Patch("/fields", sh.PatchFields)
			r.Post("/images/{slot}", sh.UploadImage)
			r.Put("/images/{slot}", sh.SetImageURL)
			r.Delete("/images/{slot}", sh.RemoveImage)
			r.Post("/images/{slot}/paste", sh.PasteImage)
			r.Post("/load", sh.Load)
			r.Post("/save", sh.Save)
			r.Post("/save-as", sh.SaveAs)
			r.Get("/dirty", sh.Dirty)
			r.Post("/leave", sh.Leave)
			r.Get("/preview", sh.Preview)
			r.Post("/export", sh.Export)
			r.Post("/share", sh.Share)
		})

		// Library.
		r.Get("/designs", lh.ListDesigns)
		r.Get("/designs/{id}", lh.GetDesign)
		r.Delete("/designs/{id}", lh.DeleteDesign)
		r.Post("/designs/{id}/folder", lh.MoveDesign)
		r.Get("/folders", lh.ListFolders)
		r.Post("/folders", lh.CreateFolder)
		r.Delete("/folders/{id}", lh.DeleteFolder)
		r.Get("/exports", lh.ListExports)
		r.Get("/feedback", lh.ListFeedback)
		r.Post("/feedback", lh.SubmitFeedback)
		r.Get("/files", lh.ListFiles)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
