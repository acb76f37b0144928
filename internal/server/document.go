package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetQuoteDocument renders the quote PDF and returns a presigned download
// link rather than the bytes.
func (s *Server) GetQuoteDocument(c *gin.Context) {
	resp, err := s.documentSvc.QuotePDF(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
