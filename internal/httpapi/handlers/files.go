package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docunest/docunest/internal/docs"
)

// UploadFiles accepts a multipart request with a user_id field and one or
// more files under the "files" field. All files are validated before any is
// stored, so a 400 never leaves partial state behind.
func (h *Handler) UploadFiles(c *gin.Context) {
	userID := strings.TrimSpace(c.PostForm("user_id"))
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid multipart request")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["files[]"]
	}
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, "no files in request")
		return
	}

	// Reject oversized parts before buffering any bytes; the multipart
	// parser has only spooled them to disk at this point.
	maxSize := h.Docs.MaxUploadSize()
	for _, fh := range headers {
		if fh.Size > maxSize {
			fail(c, http.StatusBadRequest,
				fmt.Sprintf("%s exceeds the %d byte upload limit", fh.Filename, maxSize))
			return
		}
	}

	inputs := make([]docs.UploadInput, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			fail(c, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		inputs = append(inputs, docs.UploadInput{
			Name:     fh.Filename,
			Size:     fh.Size,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	files, err := h.Docs.Upload(c.Request.Context(), userID, inputs)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) ListFiles(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	list, err := h.Docs.List(c.Request.Context(), userID)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": list})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	fileID := strings.TrimSpace(c.Query("file_id"))
	if userID == "" || fileID == "" {
		fail(c, http.StatusBadRequest, "user_id and file_id are required")
		return
	}

	if err := h.Docs.Delete(c.Request.Context(), userID, fileID); err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

// FileStatus reports the document's lifecycle status plus the bookkeeping of
// its most recent job, when one exists.
func (h *Handler) FileStatus(c *gin.Context) {
	fileID := strings.TrimSpace(c.Query("file_id"))
	if fileID == "" {
		fail(c, http.StatusBadRequest, "file_id is required")
		return
	}

	doc, err := h.Docs.Status(c.Request.Context(), fileID)
	if err != nil {
		failFrom(c, err)
		return
	}

	resp := gin.H{"file": doc}
	if doc.JobID != nil {
		if job, err := h.Repo.GetJob(c.Request.Context(), *doc.JobID); err == nil {
			resp["job"] = gin.H{
				"id":          job.ID,
				"status":      job.Status,
				"attempts":    job.Attempts,
				"error":       job.Error,
				"chunk_count": job.ChunkCount,
				"updated_at":  job.UpdatedAt,
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RetryFile(c *gin.Context) {
	fileID := strings.TrimSpace(c.Query("file_id"))
	if fileID == "" {
		fail(c, http.StatusBadRequest, "file_id is required")
		return
	}

	doc, err := h.Docs.Retry(c.Request.Context(), fileID)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": doc})
}
