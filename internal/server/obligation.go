package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
)

func (s *Server) createObligation(c *gin.Context) {
	var req obligationdomain.CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	obligation, err := s.obligationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": obligation})
}

func (s *Server) listObligations(c *gin.Context) {
	var query struct {
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := obligationdomain.ListObligationRequest{}
	if query.Status != "" {
		status := obligationdomain.Status(query.Status)
		req.Status = &status
	}
	if query.CustomerID != "" {
		customerID, err := snowflake.ParseString(query.CustomerID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.CustomerID = &customerID
	}

	resp, err := s.obligationSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Obligations})
}

func (s *Server) getObligation(c *gin.Context) {
	obligation, err := s.obligationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": obligation})
}

func (s *Server) listObligationTasks(c *gin.Context) {
	tasks, err := s.obligationSvc.ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (s *Server) backfillObligation(c *gin.Context) {
	created, err := s.periodSvc.Backfill(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods_created": created})
}

func (s *Server) cancelObligation(c *gin.Context) {
	if err := s.obligationSvc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) invoiceObligation(c *gin.Context) {
	result, err := s.billingSvc.GenerateForObligation(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type setTaskStatusRequest struct {
	Status obligationdomain.TaskStatus `json:"status" binding:"required"`
}

func (s *Server) setObligationTaskStatus(c *gin.Context) {
	var req setTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.obligationSvc.SetTaskStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}
