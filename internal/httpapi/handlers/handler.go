// Package handlers holds the gin endpoints for the file and chat APIs.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/retrieval"
)

type Handler struct {
	Docs      *docs.Service
	Repo      *docs.Repo
	Retrieval *retrieval.Service
}

func NewHandler(docsSvc *docs.Service, repo *docs.Repo, retrievalSvc *retrieval.Service) *Handler {
	return &Handler{Docs: docsSvc, Repo: repo, Retrieval: retrievalSvc}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// failFrom maps service errors onto the wire: validation 400, not found 404,
// forbidden 403, everything else 500. Processing failures such as an
// unsupported format happen in the worker and reach clients through the
// status endpoint's stored error message, not through this mapping.
func failFrom(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docs.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, docs.ErrNotFound):
		fail(c, http.StatusNotFound, "file not found")
	case errors.Is(err, docs.ErrForbidden):
		fail(c, http.StatusForbidden, "file belongs to another user")
	default:
		fail(c, http.StatusInternalServerError, "internal error")
	}
}
