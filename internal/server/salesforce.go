package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
)

func (s *Server) GetSalesforceCredentials(c *gin.Context) {
	resp, err := s.salesforceSvc.GetCredentials(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PutSalesforceCredentials(c *gin.Context) {
	var req sfdomain.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.PutCredentials(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSalesforceMappings(c *gin.Context) {
	var req sfdomain.ListMappingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.ListMappings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateSalesforceMapping(c *gin.Context) {
	var req sfdomain.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.CreateMapping(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateSalesforceMapping(c *gin.Context) {
	var req sfdomain.UpdateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.UpdateMapping(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSalesforceMapping(c *gin.Context) {
	if err := s.salesforceSvc.DeleteMapping(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SyncSalesforce runs a sync pass synchronously and returns its log. A run
// already in flight for the tenant yields 409.
func (s *Server) SyncSalesforce(c *gin.Context) {
	var req sfdomain.SyncRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.Sync(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSalesforceSyncLogs(c *gin.Context) {
	var req sfdomain.ListSyncLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.salesforceSvc.ListSyncLogs(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Logs,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetSalesforceSyncLog(c *gin.Context) {
	resp, err := s.salesforceSvc.GetSyncLog(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
