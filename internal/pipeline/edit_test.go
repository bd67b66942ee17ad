package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/models"
	"github.com/starford/mailwright/internal/session"
	"github.com/starford/mailwright/internal/store"
	"github.com/starford/mailwright/internal/watch"
)

func TestEditsWithoutTemplateAreDiscarded(t *testing.T) {
	e := newEnv(t)
	out, err := e.p.SetField("headline", "x")
	require.NoError(t, err)
	assert.Equal(t, session.DiscardedNoTemplate, out)
	assert.False(t, e.p.HasUnsavedChanges())
}

func TestUnknownKeysAreRejected(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	_, err := e.p.SetField("not_a_field", "x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.p.SetField("hero", "x")
	assert.ErrorIs(t, err, apperr.ErrValidation, "image slots are not fields")
	_, err = e.p.SetImageURL("headline", "https://x/y.png")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, e.p.HasUnsavedChanges())
}

func TestUploadImage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	out, err := e.p.UploadImage(context.Background(), "hero", pngBytes, "Hero.PNG")
	require.NoError(t, err)
	assert.Equal(t, session.Applied, out)
	assert.Equal(t, "https://cdn.example.com/id-1.png", e.p.Snapshot().Images["hero"])
	assert.Equal(t, len(pngBytes), e.blob.uploads["id-1.png"])
	assert.True(t, e.p.HasUnsavedChanges())
}

func TestUploadRejectsNonImage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	_, err := e.p.DropImage(context.Background(), "hero", "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, e.blob.uploads)
	assert.Empty(t, e.p.Snapshot().Images)
}

func TestPasteDataURI(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	out, err := e.p.PasteImage(context.Background(), "speaker_photo", src)
	require.NoError(t, err)
	assert.Equal(t, session.Applied, out)
	assert.True(t, strings.HasSuffix(e.p.Snapshot().Images["speaker_photo"], ".png"))
}

func TestUploadFinishingDuringLoadIsDiscarded(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "d1", completeWebinar())
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	e.blob.started, e.blob.gate = make(chan struct{}), make(chan struct{})

	type result struct {
		out session.Outcome
		err error
	}
	upc := make(chan result, 1)
	go func() {
		out, err := e.p.UploadImage(context.Background(), "hero", pngBytes, "a.png")
		upc <- result{out, err}
	}()
	<-e.blob.started

	release := e.blockGet(t, "d1")
	errc := e.loadAsync(t, "d1")

	close(e.blob.gate)
	r := <-upc
	require.NoError(t, r.err)
	assert.Equal(t, session.DiscardedLoading, r.out)
	assert.Equal(t, []string{"id-1.png"}, e.blob.deleted, "the orphaned upload is removed")

	release()
	require.NoError(t, <-errc)
	assert.Empty(t, e.p.Snapshot().Images["hero"])
}

func TestUploadOutlivingACompletedLoadIsDiscarded(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "d1", completeWebinar())
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	e.blob.started, e.blob.gate = make(chan struct{}), make(chan struct{})

	type result struct {
		out session.Outcome
		err error
	}
	upc := make(chan result, 1)
	go func() {
		out, err := e.p.UploadImage(context.Background(), "hero", pngBytes, "a.png")
		upc <- result{out, err}
	}()
	<-e.blob.started

	require.NoError(t, e.p.LoadDesign(context.Background(), "d1"))
	require.False(t, e.p.Snapshot().LoadInFlight)

	close(e.blob.gate)
	r := <-upc
	require.NoError(t, r.err)
	assert.Equal(t, session.DiscardedLoading, r.out)
	assert.Equal(t, []string{"id-1.png"}, e.blob.deleted)

	s := e.p.Snapshot()
	assert.Empty(t, s.Images["hero"], "loaded design holds only its stored content")
	assert.False(t, s.Dirty)
	assert.Equal(t, models.ServerID("d1"), s.Identity)
}

func TestUploadOutlivingTemplateSwitchIsDiscarded(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	e.blob.started, e.blob.gate = make(chan struct{}), make(chan struct{})

	upc := make(chan session.Outcome, 1)
	go func() {
		out, _ := e.p.UploadImage(context.Background(), "hero", pngBytes, "a.png")
		upc <- out
	}()
	<-e.blob.started

	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	close(e.blob.gate)

	assert.Equal(t, session.DiscardedLoading, <-upc)
	assert.Empty(t, e.p.Snapshot().Images["hero"])
	assert.False(t, e.p.HasUnsavedChanges())
}

func TestPasteFetchFailureIsIO(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out, err := e.p.PasteImage(ctx, "hero", "http://192.0.2.1/banner.png")
	assert.Equal(t, session.DiscardedInvalid, out)
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.NotErrorIs(t, err, apperr.ErrValidation)

	_, err = e.p.PasteImage(context.Background(), "hero", "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("nope")))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRemoveImage(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	_, err := e.p.SetImageURL("hero", "https://cdn.example.com/a.png")
	require.NoError(t, err)

	out, err := e.p.RemoveImage("hero")
	require.NoError(t, err)
	assert.Equal(t, session.Applied, out)
	assert.NotContains(t, e.p.Snapshot().Images, "hero")
}

func TestPreview(t *testing.T) {
	e := newEnv(t)
	html, err := e.p.Preview()
	require.NoError(t, err)
	assert.Equal(t, session.PlaceholderHTML, html)

	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	html, err = e.p.Preview()
	require.NoError(t, err)
	assert.Contains(t, html, "Name your webinar", "empty fields show their hint on screen")

	_, err = e.p.SetField("headline", "Live headline")
	require.NoError(t, err)
	html, err = e.p.Preview()
	require.NoError(t, err)
	assert.Contains(t, html, "Live headline")

	again, err := e.p.Preview()
	require.NoError(t, err)
	assert.Equal(t, html, again)
}

func TestExportRequiresEveryRequiredField(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	_, err := e.p.Export(context.Background())
	require.ErrorIs(t, err, apperr.ErrValidation)
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"headline", "date", "cta_url"}, verr.Missing)
	assert.Equal(t, 1, e.events.count(EventError))
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "d1", completeWebinar())
	require.NoError(t, e.p.LoadDesign(context.Background(), "d1"))

	exp, err := e.p.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id-1", exp.ID)
	assert.Equal(t, "d1", exp.DesignID)
	assert.Equal(t, models.StatusReady, exp.Status)
	assert.Contains(t, exp.HTML, "Scaling Postgres")
	assert.NotContains(t, exp.HTML, "What will attendees learn?", "exports never show hints")

	docs, err := e.store.coll(store.Exports).List(context.Background(), store.Filter{Labels: map[string]string{"design": "d1"}})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, e.events.count(EventDesignExported))
}

func TestCreateShare(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "d1", completeWebinar())
	require.NoError(t, e.p.LoadDesign(context.Background(), "d1"))

	id, err := e.p.CreateShare(context.Background())
	require.NoError(t, err)

	snap, err := e.p.Share(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ShareSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, fixedNow.UnixMilli(), snap.CreatedAt)
	assert.Equal(t, "webinar-invite", snap.TemplateKey)
	assert.Equal(t, completeWebinar(), snap.FieldValues)
	assert.False(t, e.p.HasUnsavedChanges(), "sharing does not save")
}

func TestShareNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.p.Share(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFileChangedNotifiesForOpenFile(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))
	_, err := e.p.SaveAs(context.Background(), models.FileHandle("open.json"))
	require.NoError(t, err)
	known := e.files.Known("open.json")
	require.NotEmpty(t, known)

	e.p.FileChanged(watch.Written, "open.json", known)
	assert.Equal(t, 0, e.events.count(EventFileChanged), "our own write is not external")

	e.p.FileChanged(watch.Written, "other.json", "abc")
	assert.Equal(t, 0, e.events.count(EventFileChanged))

	e.p.FileChanged(watch.Written, "open.json", "abc")
	assert.Equal(t, 1, e.events.count(EventFileChanged))

	e.p.FileChanged(watch.Removed, "open.json", "")
	assert.Equal(t, 2, e.events.count(EventFileChanged))

	_, err = os.Stat(filepath.Join(e.dir, "open.json"))
	require.NoError(t, err, "nothing is reloaded or touched")
}

func TestDesignMovedUpdatesOpenDesign(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "d1", completeWebinar())
	require.NoError(t, e.p.LoadDesign(context.Background(), "d1"))

	folder := "f1"
	e.p.DesignMoved("other", &folder)
	assert.Nil(t, e.p.Snapshot().FolderID)

	e.p.DesignMoved("d1", &folder)
	require.NotNil(t, e.p.Snapshot().FolderID)
	assert.Equal(t, "f1", *e.p.Snapshot().FolderID)
	assert.False(t, e.p.HasUnsavedChanges())
}

func TestContextPrompter(t *testing.T) {
	e := newEnv(t, WithPrompter(ContextPrompter{}))
	require.NoError(t, e.p.SelectTemplate("webinar-invite"))

	id, err := e.p.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Identity{}, id, "no destination is a dismissed prompt")

	ctx := WithDestination(context.Background(), models.LocalKey("from-request"))
	id, err = e.p.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LocalKey("from-request"), id)
}
