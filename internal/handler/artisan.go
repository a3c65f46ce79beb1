package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terangacraft/marketplace/internal/domain/artisan"
)

type artisanResponse struct {
	ID           string     `json:"id"`
	BoutiqueName string     `json:"boutique_name"`
	Status       string     `json:"status"`
	Documents    []string   `json:"documents"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
}

// RegisterArtisan takes a multipart registration: the boutique form fields
// plus one file part per required document, named after its document type.
func (h *Handler) RegisterArtisan(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	boutique := c.PostForm("boutique_name")
	if boutique == "" {
		abortError(c, http.StatusBadRequest, "boutique_name is required")
		return
	}

	var uploads []artisan.Upload
	var closers []interface{ Close() error }
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()

	for _, docType := range artisan.RequiredDocuments {
		files := form.File[string(docType)]
		if len(files) == 0 {
			continue
		}
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			abortError(c, http.StatusBadRequest, err.Error())
			return
		}
		closers = append(closers, f)
		uploads = append(uploads, artisan.Upload{
			Type:        docType,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	a, err := h.workflow.Submit(c.Request.Context(), artisan.SubmitRequest{
		IdentityKey:  owner,
		BoutiqueName: boutique,
		Uploads:      uploads,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toArtisanResponse(a))
}

// ListArtisans returns the admin review queue, optionally filtered by status.
func (h *Handler) ListArtisans(c *gin.Context) {
	list, err := h.workflow.List(c.Request.Context(), artisan.Status(c.Query("status")))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	resp := make([]artisanResponse, len(list))
	for i := range list {
		resp[i] = toArtisanResponse(&list[i])
	}
	c.JSON(http.StatusOK, resp)
}

// ValidateArtisan approves a submission and unlocks the seller capability.
func (h *Handler) ValidateArtisan(c *gin.Context) {
	a, err := h.workflow.Validate(c.Request.Context(), c.Param("id"), adminActor(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toArtisanResponse(a))
}

// SuspendArtisan revokes the seller capability.
func (h *Handler) SuspendArtisan(c *gin.Context) {
	a, err := h.workflow.Suspend(c.Request.Context(), c.Param("id"), adminActor(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toArtisanResponse(a))
}

// DeleteArtisan terminally removes an artisan from the marketplace. The
// record stays for audit.
func (h *Handler) DeleteArtisan(c *gin.Context) {
	if err := h.workflow.Delete(c.Request.Context(), c.Param("id"), adminActor(c)); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toArtisanResponse(a *artisan.Artisan) artisanResponse {
	docs := make([]string, len(a.Documents))
	for i, d := range a.Documents {
		docs[i] = string(d.Type)
	}
	return artisanResponse{
		ID:           a.ID,
		BoutiqueName: a.BoutiqueName,
		Status:       string(a.Status),
		Documents:    docs,
		SubmittedAt:  a.SubmittedAt,
		ReviewedAt:   a.ReviewedAt,
	}
}
