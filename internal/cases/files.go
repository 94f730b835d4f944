package cases

import (
	"mime"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/legal-aid-backend/internal/storage"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

const (
	maxFilesPerUpload = 10
	maxFileSize       = 10 * 1024 * 1024
	signedURLTTL      = 60 * time.Second
)

var allowedMime = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Upload Case Documents godoc
// @Summary      Upload case documents (PDF/PNG/JPEG)
// @Description  Anyone allowed to change documents on the case uploads up to 10 files
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string   true  "case id (uuid)"
// @Param        files  formData  []file   true  "PDF/PNG/JPEG (max 10)"
// @Success      201    {object}  map[string]any  "results: id, name, size or error per file"
// @Failure      400    {object}  models.ErrorResponse
// @Failure      403    {object}  models.ErrorResponse
// @Failure      409    {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [post]
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	// Permission first, so nothing reaches storage for a refused caller
	cs, err := h.svc.AuthorizeUpload(ctx, a, caseID)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	// Swagger UI sends "files" even when the field is documented as files[]
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files[])")
	}
	if len(files) > maxFilesPerUpload {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	results := make([]fiber.Map, 0, len(files))
	for _, fh := range files {
		res := fiber.Map{"name": fh.Filename, "size": fh.Size}

		switch {
		case fh.Size <= 0:
			res["error"] = "empty file"
			results = append(results, res)
			continue
		case fh.Size > maxFileSize:
			res["error"] = "max 10MB per file"
			results = append(results, res)
			continue
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		if !allowedMime[ct] {
			res["error"] = "only PDF, PNG or JPEG are allowed"
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		key := storage.ObjectKey(cs.ID.String(), fh.Filename)
		err = h.store.Upload(ctx, key, f, ct, fh.Size)
		_ = f.Close()
		if err != nil {
			h.log.WarnContext(ctx, "document upload failed", "case_id", cs.ID, "error", err)
			res["error"] = "upload failed"
			results = append(results, res)
			continue
		}

		doc := &models.CaseDocument{
			Key:          key,
			Mime:         ct,
			Size:         fh.Size,
			OriginalName: fh.Filename,
		}
		if err := h.svc.AttachDocument(ctx, a, cs.ID, doc); err != nil {
			// Do not leave an orphaned object behind
			if derr := h.store.Delete(ctx, key); derr != nil {
				h.log.WarnContext(ctx, "orphaned document object", "key", key, "error", derr)
			}
			res["error"] = "database error"
			results = append(results, res)
			continue
		}

		res["id"] = doc.ID
		results = append(results, res)
	}

	// 201 even when some files failed; callers check "error" per item
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// Signed Download URL godoc
// @Summary      Get signed URL
// @Description  Anyone who can read the case obtains a short-lived signed URL
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "document id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id}/signed-url [get]
func (h *Handler) SignedDownloadURL(c *fiber.Ctx) error {
	docID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Document(c.UserContext(), a, docID)
	if err != nil {
		return err
	}

	url, err := h.store.SignedURL(c.UserContext(), doc.Key, signedURLTTL)
	if err != nil {
		h.log.ErrorContext(c.UserContext(), "sign document url", "document_id", doc.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": int(signedURLTTL.Seconds()), "now": time.Now().UTC()})
}

// Delete Document godoc
// @Summary      Delete document
// @Description  The uploader or an admin removes a document
// @Tags         documents
// @Security     BearerAuth
// @Param        id  path string true "document id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id} [delete]
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	docID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.RemoveDocument(c.UserContext(), a, docID)
	if err != nil {
		return err
	}
	// The row is gone; a leftover object is only logged
	if err := h.store.Delete(c.UserContext(), doc.Key); err != nil {
		h.log.WarnContext(c.UserContext(), "delete document object", "key", doc.Key, "error", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
