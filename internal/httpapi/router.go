package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docunest/docunest/internal/docs"
	"github.com/docunest/docunest/internal/httpapi/handlers"
	"github.com/docunest/docunest/internal/httpapi/middleware"
	"github.com/docunest/docunest/internal/retrieval"
)

func NewRouter(docsSvc *docs.Service, repo *docs.Repo, retrievalSvc *retrieval.Service) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	// Parts above this spool to temp files instead of RAM during parsing.
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	h := handlers.NewHandler(docsSvc, repo, retrievalSvc)

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.POST("/files", h.UploadFiles)
	api.GET("/files", h.ListFiles)
	api.DELETE("/files", h.DeleteFile)
	api.GET("/files/status", h.FileStatus)
	api.POST("/files/retry", h.RetryFile)

	api.POST("/chat", h.Chat)
	api.GET("/chat", h.ChatHistory)

	return r
}
