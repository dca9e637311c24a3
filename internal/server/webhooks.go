package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderWebhookSignature = "X-Webhook-Signature"

	maxWebhookBody = 1 << 20
)

// HandleGatewayWebhook acknowledges every verified-transport callback with
// 200 so gateways stop retrying; processing problems travel in the body.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.ProcessWebhook(
		c.Request.Context(),
		provider,
		payload,
		c.GetHeader(HeaderWebhookSignature),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
