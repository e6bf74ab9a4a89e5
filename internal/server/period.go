package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
)

func (s *Server) listPeriods(c *gin.Context) {
	var query struct {
		ObligationID string `form:"obligation_id"`
		Status       string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := perioddomain.ListPeriodRequest{}
	if query.ObligationID != "" {
		obligationID, err := snowflake.ParseString(query.ObligationID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.ObligationID = &obligationID
	}
	if query.Status != "" {
		status := perioddomain.PeriodStatus(query.Status)
		req.Status = &status
	}

	resp, err := s.periodSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Periods})
}

func (s *Server) listPeriodTasks(c *gin.Context) {
	tasks, err := s.periodSvc.ListTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (s *Server) invoicePeriod(c *gin.Context) {
	result, err := s.billingSvc.GenerateForPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) setPeriodTaskStatus(c *gin.Context) {
	var req setTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.periodSvc.SetTaskStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}
