package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
)

func (s *Server) createServiceTemplate(c *gin.Context) {
	var req catalogdomain.CreateServiceTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	template, err := s.catalogSvc.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": template})
}

func (s *Server) listServiceTemplates(c *gin.Context) {
	templates, err := s.catalogSvc.ListTemplates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

func (s *Server) getServiceTemplate(c *gin.Context) {
	template, err := s.catalogSvc.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": template})
}

func (s *Server) setCustomerPrice(c *gin.Context) {
	var req catalogdomain.SetCustomerPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	price, err := s.catalogSvc.SetCustomerPrice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": price})
}
