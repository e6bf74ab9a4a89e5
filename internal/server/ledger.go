package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
)

func (s *Server) listLedgerAccounts(c *gin.Context) {
	accounts, err := s.ledgerSvc.ListAccounts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) postVoucher(c *gin.Context) {
	var req ledgerdomain.PostVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	voucher, err := s.ledgerSvc.PostVoucher(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": voucher})
}
