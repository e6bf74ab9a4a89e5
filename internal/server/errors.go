package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	billingdomain "github.com/cadencehq/cadence/internal/billing/domain"
	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	invoicedomain "github.com/cadencehq/cadence/internal/invoice/domain"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	obligationdomain "github.com/cadencehq/cadence/internal/obligation/domain"
	perioddomain "github.com/cadencehq/cadence/internal/period/domain"
	tenantdomain "github.com/cadencehq/cadence/internal/tenant/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isNotFound(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case isInvalid(err):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	case isConflict(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}

func isNotFound(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		gorm.ErrRecordNotFound,
		tenantdomain.ErrTenantNotFound,
		customerdomain.ErrCustomerNotFound,
		catalogdomain.ErrTemplateNotFound,
		obligationdomain.ErrObligationNotFound,
		obligationdomain.ErrTaskNotFound,
		perioddomain.ErrObligationNotFound,
		perioddomain.ErrPeriodNotFound,
		perioddomain.ErrTaskNotFound,
		invoicedomain.ErrInvoiceNotFound,
		billingdomain.ErrSourceNotFound,
		ledgerdomain.ErrAccountNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isInvalid(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		tenantdomain.ErrInvalidTenantID,
		tenantdomain.ErrInvalidFiscalMonth,
		customerdomain.ErrInvalidCustomerID,
		customerdomain.ErrInvalidOrganization,
		catalogdomain.ErrInvalidOrganization,
		catalogdomain.ErrInvalidTemplateID,
		catalogdomain.ErrInvalidPrice,
		catalogdomain.ErrInvalidAccountID,
		obligationdomain.ErrInvalidOrganization,
		obligationdomain.ErrInvalidObligationID,
		obligationdomain.ErrInvalidTaskStatus,
		obligationdomain.ErrMissingCatalogRecord,
		perioddomain.ErrInvalidOrganization,
		perioddomain.ErrInvalidPeriodID,
		perioddomain.ErrNotRecurring,
		invoicedomain.ErrInvalidOrganization,
		invoicedomain.ErrInvalidInvoiceID,
		invoicedomain.ErrInvalidStatus,
		billingdomain.ErrInvalidOrganization,
		billingdomain.ErrNotCompleted,
		ledgerdomain.ErrInvalidOrganization,
		ledgerdomain.ErrUnbalancedVoucher,
		ledgerdomain.ErrInvalidVoucherLines,
		ledgerdomain.ErrInvalidLineAmount,
		ledgerdomain.ErrInvalidAccount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflict(err error) bool {
	for _, target := range []error{
		ErrConflict,
		tenantdomain.ErrSlugTaken,
		obligationdomain.ErrObligationCancelled,
		invoicedomain.ErrInvalidTransition,
		billingdomain.ErrAlreadyBilled,
		ledgerdomain.ErrDuplicateVoucher,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
