package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListCampPacks exposes the current pack pricing table. The catalog
// reloads at runtime, so clients always see the amounts the server
// will price against.
func (s *Server) ListCampPacks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.catalog.Get().Packs})
}
