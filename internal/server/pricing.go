package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
)

func (s *Server) ListPricingModels(c *gin.Context) {
	var req pricingdomain.ListModelRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.ListModels(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Models,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) CreatePricingModel(c *gin.Context) {
	var req pricingdomain.ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.CreateModel(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPricingModel(c *gin.Context) {
	resp, err := s.pricingSvc.GetModel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePricingModel(c *gin.Context) {
	var req pricingdomain.ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.UpdateModel(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePricingModel(c *gin.Context) {
	if err := s.pricingSvc.DeleteModel(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListPricingStructures(c *gin.Context) {
	modelID := strings.TrimSpace(c.Query("pricing_model_id"))
	if modelID == "" {
		AbortWithError(c, newValidationError("pricing_model_id", "invalid_pricing_model", "pricing_model_id is required"))
		return
	}

	resp, err := s.pricingSvc.ListStructures(c.Request.Context(), modelID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreatePricingStructure(c *gin.Context) {
	var req pricingdomain.StructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.CreateStructure(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPricingStructure(c *gin.Context) {
	resp, err := s.pricingSvc.GetStructure(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePricingStructure(c *gin.Context) {
	var req pricingdomain.StructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.UpdateStructure(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePricingStructure(c *gin.Context) {
	if err := s.pricingSvc.DeleteStructure(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CalculatePricing prices a selection without persisting it.
func (s *Server) CalculatePricing(c *gin.Context) {
	var req pricingdomain.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.pricingSvc.Calculate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
