package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
)

const maxWebhookBody = 1 << 20

func (s *Server) ListContracts(c *gin.Context) {
	var req contractdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.contractSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Contracts,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) CreateContract(c *gin.Context) {
	var req contractdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.contractSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetContract(c *gin.Context) {
	resp, err := s.contractSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateContract(c *gin.Context) {
	var req contractdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.contractSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteContract(c *gin.Context) {
	if err := s.contractSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) CreateSignature(c *gin.Context) {
	var req contractdomain.SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.contractSvc.CreateSignature(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// GetSignature reports Expired for an open request past its expiry even
// before the expiry sweep has persisted it.
func (s *Server) GetSignature(c *gin.Context) {
	resp, err := s.contractSvc.GetSignature(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSignature(c *gin.Context) {
	resp, err := s.contractSvc.CancelSignature(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemindSigner(c *gin.Context) {
	var req contractdomain.RemindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	if err := s.contractSvc.RemindSigner(c.Request.Context(), strings.TrimSpace(c.Param("id")), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) ReplaySignature(c *gin.Context) {
	resp, err := s.contractSvc.ReplaySignature(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSignatureEvents(c *gin.Context) {
	resp, err := s.contractSvc.ListEvents(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ExpireSignatures is driven by a scheduler calling in as a tenant user.
func (s *Server) ExpireSignatures(c *gin.Context) {
	resp, err := s.contractSvc.ExpireSignatures(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// HandleESignWebhook ingests a provider callback. The provider posts the
// event as the "json" form field; a raw JSON body is accepted too. The
// plain-text acknowledgement is what the provider expects on success.
func (s *Server) HandleESignWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)

	payload, err := webhookPayload(c)
	if err != nil || len(payload) == 0 {
		AbortWithError(c, esign.ErrInvalidPayload)
		return
	}

	if err := s.contractSvc.HandleWebhook(c.Request.Context(), payload); err != nil {
		AbortWithError(c, err)
		return
	}

	c.String(http.StatusOK, esign.Acknowledgement)
}

func webhookPayload(c *gin.Context) ([]byte, error) {
	contentType := c.ContentType()
	if contentType == gin.MIMEPOSTForm || contentType == gin.MIMEMultipartPOSTForm {
		return []byte(strings.TrimSpace(c.PostForm("json"))), nil
	}
	return io.ReadAll(c.Request.Body)
}
