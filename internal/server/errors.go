package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	outboxdomain "github.com/kormohq/kormo/internal/outbox/domain"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	payoutdomain "github.com/kormohq/kormo/internal/payout/domain"
	settlementdomain "github.com/kormohq/kormo/internal/settlement/domain"
	"gorm.io/gorm"
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
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, bookingdomain.ErrInvalidTransition):
		// the wrapped message names the missing step
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_transition",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, bookingdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrGatewayTimeout),
		errors.Is(err, paymentdomain.ErrGatewayDeclined):
		// gateway detail stays in the logs, not the response
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_failure",
			Message: "payment could not be processed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, bookingdomain.ErrInvalidRequest),
		errors.Is(err, bookingdomain.ErrInvalidHours),
		errors.Is(err, bookingdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidPayment),
		errors.Is(err, commissiondomain.ErrInvalidPercent),
		errors.Is(err, commissiondomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrInvalidPeriod),
		errors.Is(err, outboxdomain.ErrUnknownKind):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrRefundNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, settlementdomain.ErrDayNotFound),
		errors.Is(err, settlementdomain.ErrSettlementNotFound),
		errors.Is(err, payoutdomain.ErrPayoutNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrNotCapturable),
		errors.Is(err, paymentdomain.ErrNotRefundable),
		errors.Is(err, settlementdomain.ErrDayProcessed),
		errors.Is(err, settlementdomain.ErrSettlementNotDue),
		errors.Is(err, settlementdomain.ErrBookingNotSettled),
		errors.Is(err, payoutdomain.ErrPayoutNotPending):
		return true
	default:
		return false
	}
}
