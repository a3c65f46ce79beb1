// Package artisan implements the document-gated onboarding workflow that
// decides who may sell on the marketplace.
//
// The status machine: intake puts a complete submission under review
// automatically; an administrator then validates or suspends it. Validated
// unlocks the seller capability; suspension revokes it; deletion is terminal
// but keeps the record for audit. Administrative transitions on one record
// are serialized through a version compare-and-set.
package artisan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for the approval workflow.
var (
	// ErrStaleState is returned when a concurrent administrative action
	// already moved the record; the caller must re-read and retry.
	ErrStaleState = errors.New("stale artisan state")
	// ErrNotFound is returned when the artisan record does not exist.
	ErrNotFound = errors.New("artisan not found")
	// ErrAlreadyRegistered is returned when the identity already has a record.
	ErrAlreadyRegistered = errors.New("identity already registered")
	// ErrDeleted is returned when acting on a terminally deleted record.
	ErrDeleted = errors.New("artisan record deleted")
)

// Status enumerates the onboarding states.
type Status string

const (
	// StatusUnderReview is the intake state: the submission was complete and
	// sits in the admin queue. Submitted-to-under-review is automatic.
	StatusUnderReview Status = "under_review"
	// StatusValidated means the artisan may list products.
	StatusValidated Status = "validated"
	// StatusSuspended means the artisan may not sell; reinstatement is
	// an administrative action.
	StatusSuspended Status = "suspended"
	// StatusDeleted is terminal; the record is retained for audit.
	StatusDeleted Status = "deleted"
)

// DocumentType names a required onboarding document.
type DocumentType string

const (
	DocIdentityCopy            DocumentType = "copie_cni"
	DocRegistrationAttestation DocumentType = "attestation_immatriculation"
	DocStampedRequest          DocumentType = "demande_timbree"
	DocProductPhotos           DocumentType = "photos_produits"
	DocLocationPlan            DocumentType = "plan_localisation"
)

// RequiredDocuments is the full set a submission must carry to be accepted.
var RequiredDocuments = []DocumentType{
	DocIdentityCopy,
	DocRegistrationAttestation,
	DocStampedRequest,
	DocProductPhotos,
	DocLocationPlan,
}

// Document is a stored onboarding document: its type and the opaque blob
// reference returned by the document store.
type Document struct {
	Type      DocumentType `json:"type"`
	BlobRef   string       `json:"blob_ref"`
	PresentAt time.Time    `json:"present_at"`
}

// IncompleteDocumentsError names the document types a submission is missing.
type IncompleteDocumentsError struct {
	Missing []DocumentType
}

func (e *IncompleteDocumentsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, d := range e.Missing {
		names[i] = string(d)
	}
	return fmt.Sprintf("incomplete documents: missing %s", strings.Join(names, ", "))
}

// Artisan is one prospective or active seller.
type Artisan struct {
	ID           string
	IdentityKey  string
	BoutiqueName string
	Status       Status
	// Version guards administrative transitions: an update carrying a stale
	// version loses with ErrStaleState.
	Version     int64
	Documents   []Document
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	UpdatedAt   time.Time
}

// Document returns the stored document of the given type, or nil.
func (a *Artisan) Document(t DocumentType) *Document {
	for i := range a.Documents {
		if a.Documents[i].Type == t {
			return &a.Documents[i]
		}
	}
	return nil
}

// StatusChange is one entry in the per-record audit trail.
type StatusChange struct {
	ArtisanID string
	From      Status
	To        Status
	Actor     string
	ChangedAt time.Time
}

// Repository defines persistence for artisan records.
type Repository interface {
	// Create inserts a new record; ErrAlreadyRegistered when the identity
	// already has one.
	Create(ctx context.Context, a *Artisan) error
	// GetByID returns a record, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Artisan, error)
	// GetByIdentity returns the record owned by an identity, or ErrNotFound.
	GetByIdentity(ctx context.Context, identityKey string) (*Artisan, error)
	// ListByStatus returns records filtered by status; an empty status means
	// all records.
	ListByStatus(ctx context.Context, status Status) ([]Artisan, error)
	// TransitionStatus applies a compare-and-set status change: the update
	// only lands when the stored version equals fromVersion. ErrStaleState
	// when it does not. The change is appended to the audit trail.
	TransitionStatus(ctx context.Context, id string, fromVersion int64, change StatusChange) error
}
