package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type chatReq struct {
	UserID    string `json:"userId" binding:"required"`
	UserQuery string `json:"userQuery" binding:"required"`
}

// Chat answers a question against the user's processed documents.
func (h *Handler) Chat(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "userId and userQuery are required")
		return
	}

	answer, err := h.Retrieval.Query(c.Request.Context(), req.UserID, req.UserQuery)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": answer})
}

func (h *Handler) ChatHistory(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		fail(c, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.Retrieval.History(c.Request.Context(), userID, limit)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
