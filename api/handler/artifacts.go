package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/models"
)

// Artifact returns a handler for GET /artifacts/runs/:run_id/:filename.
func Artifact(store *artifacts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := store.Open(c.Param("run_id"), c.Param("filename"))
		if err != nil {
			c.JSON(http.StatusNotFound, models.NewErrorResponse(models.ErrCodeNotFound, "artifact not found"))
			return
		}
		c.File(p)
	}
}
