package artisan

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	byID          map[string]*Artisan
	history       []StatusChange
	transitionErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[string]*Artisan)}
}

func (m *mockRepo) Create(_ context.Context, a *Artisan) error {
	for _, existing := range m.byID {
		if existing.IdentityKey == a.IdentityKey {
			return ErrAlreadyRegistered
		}
	}
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Artisan, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) GetByIdentity(_ context.Context, identityKey string) (*Artisan, error) {
	for _, a := range m.byID {
		if a.IdentityKey == identityKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListByStatus(_ context.Context, status Status) ([]Artisan, error) {
	var out []Artisan
	for _, a := range m.byID {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepo) TransitionStatus(_ context.Context, id string, fromVersion int64, change StatusChange) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.Version != fromVersion {
		return ErrStaleState
	}
	a.Status = change.To
	a.Version++
	now := change.ChangedAt
	a.ReviewedAt = &now
	a.UpdatedAt = now
	m.history = append(m.history, change)
	return nil
}

type mockBlobs struct {
	puts map[string]string // key -> content type
	err  error
}

func (m *mockBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	if m.puts == nil {
		m.puts = make(map[string]string)
	}
	m.puts[key] = contentType
	return "blob://" + key, nil
}

type mockCatalog struct {
	calls []struct {
		artisanID string
		active    bool
	}
}

func (m *mockCatalog) SetActiveForArtisan(_ context.Context, artisanID string, active bool) error {
	m.calls = append(m.calls, struct {
		artisanID string
		active    bool
	}{artisanID, active})
	return nil
}

type mockNotifier struct {
	validated, suspended int
}

func (m *mockNotifier) ArtisanValidated(context.Context, *Artisan) error {
	m.validated++
	return nil
}

func (m *mockNotifier) ArtisanSuspended(context.Context, *Artisan) error {
	m.suspended++
	return nil
}

// --- Helpers ---

func allUploads() []Upload {
	uploads := make([]Upload, len(RequiredDocuments))
	for i, t := range RequiredDocuments {
		uploads[i] = Upload{
			Type:        t,
			Filename:    string(t) + ".pdf",
			ContentType: "application/pdf",
			Size:        4,
			Content:     bytes.NewReader([]byte("doc!")),
		}
	}
	return uploads
}

func newWorkflowFixture() (*Workflow, *mockRepo, *mockCatalog, *mockNotifier) {
	repo := newMockRepo()
	catalog := &mockCatalog{}
	notifier := &mockNotifier{}
	w := NewWorkflow(repo, &mockBlobs{}, catalog, notifier)
	return w, repo, catalog, notifier
}

func submitted(t *testing.T, w *Workflow) *Artisan {
	t.Helper()
	a, err := w.Submit(context.Background(), SubmitRequest{
		IdentityKey:  "id-1",
		BoutiqueName: "Atelier Fatou",
		Uploads:      allUploads(),
	})
	require.NoError(t, err)
	return a
}

// --- Tests ---

func TestSubmit_CompleteLandsUnderReview(t *testing.T) {
	w, repo, _, _ := newWorkflowFixture()

	a := submitted(t, w)
	assert.Equal(t, StatusUnderReview, a.Status)
	assert.Len(t, a.Documents, len(RequiredDocuments))
	for _, d := range a.Documents {
		assert.NotEmpty(t, d.BlobRef)
	}
	_, ok := repo.byID[a.ID]
	assert.True(t, ok)
}

func TestSubmit_MissingDocumentFailsBeforeAnyRecord(t *testing.T) {
	w, repo, _, _ := newWorkflowFixture()

	uploads := allUploads()
	// Drop the identity copy.
	var withoutCNI []Upload
	for _, u := range uploads {
		if u.Type != DocIdentityCopy {
			withoutCNI = append(withoutCNI, u)
		}
	}

	_, err := w.Submit(context.Background(), SubmitRequest{
		IdentityKey: "id-1",
		Uploads:     withoutCNI,
	})

	var icErr *IncompleteDocumentsError
	require.ErrorAs(t, err, &icErr)
	assert.Equal(t, []DocumentType{DocIdentityCopy}, icErr.Missing)
	assert.Empty(t, repo.byID, "no record may exist for an incomplete submission")
}

func TestSubmit_DuplicateIdentity(t *testing.T) {
	w, _, _, _ := newWorkflowFixture()
	submitted(t, w)

	_, err := w.Submit(context.Background(), SubmitRequest{
		IdentityKey: "id-1",
		Uploads:     allUploads(),
	})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestValidate_UnlocksSellerCapabilityOnce(t *testing.T) {
	w, repo, catalog, notifier := newWorkflowFixture()
	a := submitted(t, w)

	got, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, got.Status)
	require.Len(t, catalog.calls, 1)
	assert.True(t, catalog.calls[0].active)
	assert.Equal(t, 1, notifier.validated)
	require.Len(t, repo.history, 1)
	assert.Equal(t, StatusUnderReview, repo.history[0].From)
	assert.Equal(t, "admin-1", repo.history[0].Actor)
}

func TestValidate_Idempotent(t *testing.T) {
	w, repo, catalog, _ := newWorkflowFixture()
	a := submitted(t, w)

	_, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	again, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err, "re-validating a validated record is a no-op")
	assert.Equal(t, StatusValidated, again.Status)
	assert.Len(t, catalog.calls, 1, "capability unlocked exactly once")
	assert.Len(t, repo.history, 1)
}

func TestValidate_StaleVersionLoses(t *testing.T) {
	w, repo, _, _ := newWorkflowFixture()
	a := submitted(t, w)

	// A concurrent admin session already moved the record.
	repo.byID[a.ID].Version = 7

	_, err := w.Validate(context.Background(), a.ID, "admin-2")
	require.ErrorIs(t, err, ErrStaleState)
}

func TestSuspend_FromValidatedDeactivatesProducts(t *testing.T) {
	w, _, catalog, notifier := newWorkflowFixture()
	a := submitted(t, w)

	_, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	got, err := w.Suspend(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, StatusSuspended, got.Status)
	require.Len(t, catalog.calls, 2)
	assert.False(t, catalog.calls[1].active, "products deactivated, not deleted")
	assert.Equal(t, 1, notifier.suspended)
}

func TestSuspend_FromUnderReviewUnlocksNothing(t *testing.T) {
	w, _, catalog, _ := newWorkflowFixture()
	a := submitted(t, w)

	got, err := w.Suspend(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Empty(t, catalog.calls)
}

func TestReinstate_SuspendedToValidated(t *testing.T) {
	w, _, catalog, _ := newWorkflowFixture()
	a := submitted(t, w)

	_, err := w.Suspend(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	got, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, got.Status)
	require.Len(t, catalog.calls, 1)
	assert.True(t, catalog.calls[0].active)
}

func TestDelete_IsTerminal(t *testing.T) {
	w, repo, _, _ := newWorkflowFixture()
	a := submitted(t, w)

	require.NoError(t, w.Delete(context.Background(), a.ID, "admin-1"))
	assert.Equal(t, StatusDeleted, repo.byID[a.ID].Status)

	_, err := w.Validate(context.Background(), a.ID, "admin-1")
	require.ErrorIs(t, err, ErrDeleted)
	_, err = w.Suspend(context.Background(), a.ID, "admin-1")
	require.ErrorIs(t, err, ErrDeleted)

	// Record retained for audit.
	_, err = w.Get(context.Background(), a.ID)
	require.NoError(t, err)
}

func TestList_FiltersByStatus(t *testing.T) {
	w, _, _, _ := newWorkflowFixture()
	a := submitted(t, w)
	b, err := w.Submit(context.Background(), SubmitRequest{
		IdentityKey: "id-2", BoutiqueName: "Chez Moussa", Uploads: allUploads(),
	})
	require.NoError(t, err)

	_, err = w.Validate(context.Background(), a.ID, "admin-1")
	require.NoError(t, err)

	pending, err := w.List(context.Background(), StatusUnderReview)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	all, err := w.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSubmit_SetsTimestamps(t *testing.T) {
	w, _, _, _ := newWorkflowFixture()
	w.now = func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }

	a := submitted(t, w)
	assert.Equal(t, 2026, a.SubmittedAt.Year())
	assert.Nil(t, a.ReviewedAt)
}
