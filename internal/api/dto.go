package api

import (
	"time"

	"github.com/starford/mailwright/internal/catalog"
	"github.com/starford/mailwright/internal/library"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/session"
)

// FieldDTO describes one template field.
type FieldDTO struct {
	ID          string `json:"id" example:"headline" validate:"required"`
	Label       string `json:"label" example:"Headline"`
	Kind        string `json:"kind" example:"text" validate:"required"`
	MaxLength   int    `json:"maxLength,omitempty" example:"80"`
	Required    bool   `json:"required"`
	Group       string `json:"group,omitempty" example:"header"`
	Default     string `json:"default,omitempty" example:"Webinar"`
	Placeholder string `json:"placeholder,omitempty" example:"Name your webinar"`
}

// TemplateDTO describes a template in the catalog.
type TemplateDTO struct {
	Key         string     `json:"key" example:"webinar-invite" validate:"required"`
	Name        string     `json:"name" example:"Webinar invite"`
	Description string     `json:"description"`
	Fields      []FieldDTO `json:"fields" validate:"required"`
}

func templateDTO(t *catalog.Template) TemplateDTO {
	out := TemplateDTO{Key: t.Key, Name: t.Name, Description: t.Description, Fields: make([]FieldDTO, 0, len(t.Fields))}
	for _, f := range t.Fields {
		fd := FieldDTO{
			ID:        f.ID,
			Label:     f.Label,
			Kind:      string(f.Kind),
			MaxLength: f.MaxLength,
			Required:  f.Required,
			Group:     f.Group,
		}
		if v, ok := f.DefaultValue(); ok {
			fd.Default = v
		} else {
			fd.Placeholder = f.Hint()
		}
		out.Fields = append(out.Fields, fd)
	}
	return out
}

// SessionResponse is the editing session as seen by the browser.
type SessionResponse struct {
	TemplateKey       string            `json:"templateKey"`
	ProjectName       string            `json:"projectName"`
	CreativeDirection string            `json:"creativeDirection"`
	FolderID          *string           `json:"folderId"`
	Fields            map[string]string `json:"fields" validate:"required"`
	Images            map[string]string `json:"images" validate:"required"`
	Identity          models.Identity   `json:"identity"`
	Dirty             bool              `json:"dirty"`
	Loading           bool              `json:"loading"`
	Revision          uint64            `json:"revision"`
}

func sessionResponse(s session.Snapshot) SessionResponse {
	return SessionResponse{
		TemplateKey:       s.TemplateKey,
		ProjectName:       s.ProjectName,
		CreativeDirection: s.CreativeDirection,
		FolderID:          s.FolderID,
		Fields:            nonNilMap(s.Fields),
		Images:            nonNilMap(s.Images),
		Identity:          s.Identity,
		Dirty:             s.Dirty,
		Loading:           s.LoadInFlight,
		Revision:          s.Revision,
	}
}

// SelectTemplateRequest is the body of POST /session/template.
type SelectTemplateRequest struct {
	Key string `json:"key" example:"webinar-invite" validate:"required"`
}

// FieldsRequest is the body of PATCH /session/fields. Each entry is applied
// through the same guarded edit path as a keystroke.
type FieldsRequest struct {
	Fields            map[string]string `json:"fields"`
	RichText          map[string]string `json:"richText"`
	ProjectName       *string           `json:"projectName"`
	CreativeDirection *string           `json:"creativeDirection"`
}

// EditResponse reports what happened to each edit.
type EditResponse struct {
	Outcomes map[string]string `json:"outcomes" validate:"required"`
	Session  SessionResponse   `json:"session"`
}

// ImageURLRequest is the body of PUT /session/images/{slot}.
type ImageURLRequest struct {
	URL string `json:"url" example:"https://cdn.example.com/hero.png" validate:"required"`
}

// PasteRequest is the body of POST /session/images/{slot}/paste.
type PasteRequest struct {
	Src string `json:"src" example:"data:image/png;base64,..." validate:"required"`
}

// LoadRequest is the body of POST /session/load.
type LoadRequest struct {
	Source string `json:"source" example:"design" enums:"design,file,local,share,resume" validate:"required"`
	ID     string `json:"id" example:"design-42"`
}

// SaveRequest is the body of POST /session/save and /session/save-as. The
// destination is used when the design has no target yet (or always, for
// save-as). A server destination with an empty value creates a new design.
type SaveRequest struct {
	Destination *models.Identity `json:"destination"`
}

// SaveResponse reports where the design went. Saved is false when no
// destination was given for a design without a target.
type SaveResponse struct {
	Saved    bool            `json:"saved"`
	Identity models.Identity `json:"identity"`
	Dirty    bool            `json:"dirty"`
}

// LeaveRequest is the body of POST /session/leave.
type LeaveRequest struct {
	Choice      string           `json:"choice" enums:"save,discard,cancel" validate:"required"`
	Destination *models.Identity `json:"destination"`
}

// ShareResponse is returned after creating a share.
type ShareResponse struct {
	ID  string `json:"id" validate:"required"`
	URL string `json:"url" example:"/?share=3f6c..."`
}

// MoveRequest is the body of POST /designs/{id}/folder. A null folder
// moves the design to the root.
type MoveRequest struct {
	FolderID *string `json:"folderId"`
}

// FolderRequest is the body of POST /folders.
type FolderRequest struct {
	Name string `json:"name" example:"Spring campaign" validate:"required"`
}

// DesignListResponse wraps design listings.
type DesignListResponse struct {
	Designs []library.DesignSummary `json:"designs" validate:"required"`
}

// ImageUploadResponse is returned after an image upload.
type ImageUploadResponse struct {
	Outcome string `json:"outcome" example:"applied" validate:"required"`
	URL     string `json:"url,omitempty" example:"/images/3f6c.png"`
}

// DirtyResponse answers GET /session/dirty.
type DirtyResponse struct {
	Dirty bool `json:"dirty"`
}

// LeaveResponse answers POST /session/leave.
type LeaveResponse struct {
	Left bool `json:"left"`
}

// FeedbackListResponse wraps feedback listings.
type FeedbackListResponse struct {
	Feedback []models.Feedback `json:"feedback" validate:"required"`
}

// ExportListResponse wraps export listings.
type ExportListResponse struct {
	Exports []models.Export `json:"exports" validate:"required"`
}

// listSince parses an RFC 3339 "since" parameter.
func listSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
