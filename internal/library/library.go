// Package library manages saved designs outside the editing session:
// listing, deleting and filing designs, folders, exports and feedback.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/designfile"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/storage"
	"github.com/starford/mailwright/internal/store"
)

// DesignSummary is a lightweight item in a design list.
type DesignSummary struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"projectName"`
	TemplateKey string    `json:"templateKey"`
	FolderID    *string   `json:"folderId"`
	Status      string    `json:"status"`
	SavedAt     time.Time `json:"savedAt"`
}

// DesignQuery narrows ListDesigns. Zero values match everything; Root
// selects designs that are in no folder.
type DesignQuery struct {
	FolderID string
	Root     bool
	Status   string
	Since    time.Time
	Limit    int
}

// MoveObserver is the editing session as seen by the library. Folder moves
// rewrite whole design records, so they run inside WithSaveLock and can
// never interleave with a save of the open design.
type MoveObserver interface {
	WithSaveLock(fn func() error) error
	DesignMoved(id string, folderID *string)
}

// Service coordinates the library collections.
type Service struct {
	designs  store.Collection
	folders  store.Collection
	exports  store.Collection
	feedback store.Collection
	files    *designfile.Files
	observer MoveObserver
	now      func() time.Time
}

// NewService creates a library over st. files may be nil when no designs
// directory is configured.
func NewService(st store.Store, files *designfile.Files, observer MoveObserver) *Service {
	return &Service{
		designs:  st.Collection(store.Designs),
		folders:  st.Collection(store.Folders),
		exports:  st.Collection(store.Exports),
		feedback: st.Collection(store.Feedback),
		files:    files,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListDesigns returns designs newest first.
func (s *Service) ListDesigns(ctx context.Context, q DesignQuery) ([]DesignSummary, error) {
	f := store.Filter{Since: q.Since, Limit: q.Limit, Labels: map[string]string{}}
	if q.FolderID != "" {
		f.Labels["folder"] = q.FolderID
	}
	if q.Status != "" {
		f.Labels["status"] = q.Status
	}
	if q.Root {
		f.Limit = 0
	}
	docs, err := s.designs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("library: list designs: %w", apperr.Store(err))
	}

	items := make([]DesignSummary, 0, len(docs))
	for _, doc := range docs {
		var d models.Design
		if err := json.Unmarshal(doc.Data, &d); err != nil {
			return nil, fmt.Errorf("library: decode design %s: %w", doc.ID, err)
		}
		if q.Root && d.FolderID != nil {
			continue
		}
		items = append(items, DesignSummary{
			ID:          doc.ID,
			ProjectName: d.ProjectName,
			TemplateKey: d.TemplateKey,
			FolderID:    d.FolderID,
			Status:      d.Status,
			SavedAt:     d.SavedAt,
		})
		if q.Root && q.Limit > 0 && len(items) == q.Limit {
			break
		}
	}
	return items, nil
}

// GetDesign returns one stored design.
func (s *Service) GetDesign(ctx context.Context, id string) (models.Design, error) {
	var d models.Design
	if err := store.GetJSON(ctx, s.designs, id, &d); err != nil {
		return models.Design{}, fmt.Errorf("library: get design %s: %w", id, apperr.Store(err))
	}
	return d, nil
}

// DeleteDesign removes a stored design. Its exports are kept.
func (s *Service) DeleteDesign(ctx context.Context, id string) error {
	if err := s.designs.Delete(ctx, id); err != nil {
		return fmt.Errorf("library: delete design %s: %w", id, apperr.Store(err))
	}
	return nil
}

// MoveDesign files a design under folderID, or at the root when folderID
// is nil.
func (s *Service) MoveDesign(ctx context.Context, id string, folderID *string) error {
	if folderID != nil {
		if _, err := s.folders.Get(ctx, *folderID); err != nil {
			return fmt.Errorf("library: move design %s: folder %s: %w", id, *folderID, apperr.Store(err))
		}
	}
	return s.move(ctx, id, folderID)
}

// move re-reads the design and rewrites it with only the folder changed.
func (s *Service) move(ctx context.Context, id string, folderID *string) error {
	write := func() error {
		d, err := s.GetDesign(ctx, id)
		if err != nil {
			return err
		}
		d.FolderID = folderID
		if err := store.PutJSON(ctx, s.designs, id, d, d.Labels()); err != nil {
			return fmt.Errorf("library: move design %s: %w", id, apperr.Store(err))
		}
		if s.observer != nil {
			s.observer.DesignMoved(id, folderID)
		}
		return nil
	}
	if s.observer == nil {
		return write()
	}
	return s.observer.WithSaveLock(write)
}

// ListFolders returns folders newest first.
func (s *Service) ListFolders(ctx context.Context) ([]models.Folder, error) {
	docs, err := s.folders.List(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("library: list folders: %w", apperr.Store(err))
	}
	return decodeAll[models.Folder](docs)
}

// CreateFolder adds a folder. Names are unique, ignoring case.
func (s *Service) CreateFolder(ctx context.Context, name string) (models.Folder, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.RuneLength(1, 80)); err != nil {
		return models.Folder{}, &apperr.ValidationError{Malformed: map[string]string{"name": err.Error()}}
	}
	existing, err := s.ListFolders(ctx)
	if err != nil {
		return models.Folder{}, err
	}
	for _, f := range existing {
		if strings.EqualFold(f.Name, name) {
			return models.Folder{}, fmt.Errorf("library: folder %q: %w", name, apperr.ErrAlreadyExists)
		}
	}

	f := models.Folder{ID: uuid.New().String(), Name: name, CreatedAt: s.now()}
	if err := store.PutJSON(ctx, s.folders, f.ID, f, nil); err != nil {
		return models.Folder{}, fmt.Errorf("library: create folder: %w", apperr.Store(err))
	}
	return f, nil
}

// DeleteFolder removes a folder and moves its designs to the root.
func (s *Service) DeleteFolder(ctx context.Context, id string) error {
	if _, err := s.folders.Get(ctx, id); err != nil {
		return fmt.Errorf("library: delete folder %s: %w", id, apperr.Store(err))
	}
	docs, err := s.designs.List(ctx, store.Filter{Labels: map[string]string{"folder": id}})
	if err != nil {
		return fmt.Errorf("library: delete folder %s: %w", id, apperr.Store(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, doc := range docs {
		g.Go(func() error {
			err := s.move(gctx, doc.ID, nil)
			if errors.Is(err, apperr.ErrNotFound) {
				// Deleted since the listing.
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.folders.Delete(ctx, id); err != nil {
		return fmt.Errorf("library: delete folder %s: %w", id, apperr.Store(err))
	}
	return nil
}

// ListExports returns exports newest first, optionally for one design.
func (s *Service) ListExports(ctx context.Context, designID string, limit int) ([]models.Export, error) {
	f := store.Filter{Limit: limit}
	if designID != "" {
		f.Labels = map[string]string{"design": designID}
	}
	docs, err := s.exports.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("library: list exports: %w", apperr.Store(err))
	}
	return decodeAll[models.Export](docs)
}

// FeedbackInput is a feedback submission.
type FeedbackInput struct {
	DesignID string `json:"designId"`
	Message  string `json:"message"`
	Rating   int    `json:"rating"`
}

// Validate checks the submission.
func (in FeedbackInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Message, validation.Required, validation.RuneLength(1, 4000)),
		validation.Field(&in.Rating, validation.Min(0), validation.Max(5)),
	)
}

// SubmitFeedback stores a feedback entry.
func (s *Service) SubmitFeedback(ctx context.Context, in FeedbackInput) (models.Feedback, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := in.Validate(); err != nil {
		return models.Feedback{}, fieldErrors(err)
	}
	fb := models.Feedback{
		ID:        uuid.New().String(),
		DesignID:  in.DesignID,
		Message:   in.Message,
		Rating:    in.Rating,
		Status:    models.StatusNew,
		CreatedAt: s.now(),
	}
	labels := map[string]string{"status": fb.Status}
	if fb.DesignID != "" {
		labels["design"] = fb.DesignID
	}
	if err := store.PutJSON(ctx, s.feedback, fb.ID, fb, labels); err != nil {
		return models.Feedback{}, fmt.Errorf("library: submit feedback: %w", apperr.Store(err))
	}
	return fb, nil
}

// ListFeedback returns feedback newest first.
func (s *Service) ListFeedback(ctx context.Context, limit int) ([]models.Feedback, error) {
	docs, err := s.feedback.List(ctx, store.Filter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("library: list feedback: %w", apperr.Store(err))
	}
	return decodeAll[models.Feedback](docs)
}

// ListFiles returns the design files in the local designs directory.
func (s *Service) ListFiles() ([]storage.FileInfo, error) {
	if s.files == nil {
		return []storage.FileInfo{}, nil
	}
	files, err := s.files.List()
	if err != nil {
		return nil, fmt.Errorf("library: list files: %w", apperr.IO(err))
	}
	return nonNilSlice(files), nil
}

func decodeAll[T any](docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("library: decode %s: %w", doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// fieldErrors turns ozzo field errors into a ValidationError.
func fieldErrors(err error) error {
	errs, ok := err.(validation.Errors)
	if !ok {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	verr := &apperr.ValidationError{Malformed: map[string]string{}}
	for field, fe := range errs {
		verr.Malformed[field] = fe.Error()
	}
	return verr
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
