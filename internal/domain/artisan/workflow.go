package artisan

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terangacraft/marketplace/internal/domain/product"
)

// BlobStore is the opaque document store collaborator.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ref string, err error)
}

// Notifier dispatches onboarding decisions to the artisan. Best effort:
// failures are logged, never returned.
type Notifier interface {
	ArtisanValidated(ctx context.Context, a *Artisan) error
	ArtisanSuspended(ctx context.Context, a *Artisan) error
}

// Upload is one document in a registration submission.
type Upload struct {
	Type        DocumentType
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// SubmitRequest is a registration submission: the form plus every required
// document.
type SubmitRequest struct {
	IdentityKey  string
	BoutiqueName string
	Uploads      []Upload
}

// Workflow drives artisan records through the approval state machine.
type Workflow struct {
	artisans Repository
	blobs    BlobStore
	catalog  product.Catalog
	notifier Notifier
	now      func() time.Time
}

// NewWorkflow wires the workflow's collaborators. A nil notifier disables
// dispatch.
func NewWorkflow(artisans Repository, blobs BlobStore, catalog product.Catalog, notifier Notifier) *Workflow {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Workflow{
		artisans: artisans,
		blobs:    blobs,
		catalog:  catalog,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit takes a registration in. The document set is checked before
// anything is stored: a missing required type fails with
// IncompleteDocumentsError and no record is created. A complete submission
// lands directly under review; there is no human step between submitted and
// the admin queue.
func (w *Workflow) Submit(ctx context.Context, req SubmitRequest) (*Artisan, error) {
	if missing := missingDocuments(req.Uploads); len(missing) > 0 {
		return nil, &IncompleteDocumentsError{Missing: missing}
	}

	if _, err := w.artisans.GetByIdentity(ctx, req.IdentityKey); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check identity")
	}

	id := uuid.New().String()
	now := w.now()

	docs := make([]Document, 0, len(req.Uploads))
	for _, u := range req.Uploads {
		key := "artisans/" + id + "/" + string(u.Type)
		ref, err := w.blobs.Put(ctx, key, u.Content, u.Size, u.ContentType)
		if err != nil {
			return nil, errors.Wrapf(err, "store document %s", u.Type)
		}
		docs = append(docs, Document{Type: u.Type, BlobRef: ref, PresentAt: now})
	}

	a := &Artisan{
		ID:           id,
		IdentityKey:  req.IdentityKey,
		BoutiqueName: req.BoutiqueName,
		Status:       StatusUnderReview,
		Version:      1,
		Documents:    docs,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	if err := w.artisans.Create(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create artisan")
	}
	return a, nil
}

// Get returns one record.
func (w *Workflow) Get(ctx context.Context, id string) (*Artisan, error) {
	return w.artisans.GetByID(ctx, id)
}

// List returns the admin queue, optionally filtered by status.
func (w *Workflow) List(ctx context.Context, status Status) ([]Artisan, error) {
	return w.artisans.ListByStatus(ctx, status)
}

// Validate approves an artisan and unlocks the seller capability. Calling it
// on an already-validated record is a no-op, not an error. A concurrent
// conflicting transition loses with ErrStaleState.
func (w *Workflow) Validate(ctx context.Context, id, actor string) (*Artisan, error) {
	a, err := w.artisans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case StatusValidated:
		return a, nil // idempotent
	case StatusDeleted:
		return nil, ErrDeleted
	}

	if err := w.transition(ctx, a, StatusValidated, actor); err != nil {
		return nil, err
	}

	// Single point that unlocks product listing for this identity.
	if err := w.catalog.SetActiveForArtisan(ctx, a.ID, true); err != nil {
		return nil, errors.Wrap(err, "activate listings")
	}
	w.notify(ctx, a, w.notifier.ArtisanValidated)
	return w.artisans.GetByID(ctx, id)
}

// Suspend rejects or revokes an artisan. If the artisan was previously
// validated its products are deactivated, never deleted.
func (w *Workflow) Suspend(ctx context.Context, id, actor string) (*Artisan, error) {
	a, err := w.artisans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case StatusSuspended:
		return a, nil
	case StatusDeleted:
		return nil, ErrDeleted
	}
	wasValidated := a.Status == StatusValidated

	if err := w.transition(ctx, a, StatusSuspended, actor); err != nil {
		return nil, err
	}

	if wasValidated {
		if err := w.catalog.SetActiveForArtisan(ctx, a.ID, false); err != nil {
			return nil, errors.Wrap(err, "deactivate listings")
		}
	}
	w.notify(ctx, a, w.notifier.ArtisanSuspended)
	return w.artisans.GetByID(ctx, id)
}

// Delete permanently retires a record. Terminal: the record stays for audit
// and no further transitions apply.
func (w *Workflow) Delete(ctx context.Context, id, actor string) error {
	a, err := w.artisans.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == StatusDeleted {
		return nil
	}
	wasValidated := a.Status == StatusValidated

	if err := w.transition(ctx, a, StatusDeleted, actor); err != nil {
		return err
	}
	if wasValidated {
		if err := w.catalog.SetActiveForArtisan(ctx, a.ID, false); err != nil {
			return errors.Wrap(err, "deactivate listings")
		}
	}
	return nil
}

func (w *Workflow) transition(ctx context.Context, a *Artisan, to Status, actor string) error {
	return w.artisans.TransitionStatus(ctx, a.ID, a.Version, StatusChange{
		ArtisanID: a.ID,
		From:      a.Status,
		To:        to,
		Actor:     actor,
		ChangedAt: w.now(),
	})
}

type noopNotifier struct{}

func (noopNotifier) ArtisanValidated(context.Context, *Artisan) error { return nil }
func (noopNotifier) ArtisanSuspended(context.Context, *Artisan) error { return nil }

func (w *Workflow) notify(ctx context.Context, a *Artisan, send func(context.Context, *Artisan) error) {
	if err := send(ctx, a); err != nil {
		zctx.From(ctx).Warn("onboarding notification failed",
			zap.String("artisan_id", a.ID),
			zap.Error(err),
		)
	}
}

// missingDocuments returns the required types absent from the uploads.
func missingDocuments(uploads []Upload) []DocumentType {
	present := make(map[DocumentType]bool, len(uploads))
	for _, u := range uploads {
		present[u.Type] = true
	}
	var missing []DocumentType
	for _, t := range RequiredDocuments {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	return missing
}
