package server

import (
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/fieldpass/checkout/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

// HandlePaymentWebhook is the processor-driven settlement trigger.
// Deliveries are at-least-once; a duplicate or out-of-order delivery
// still answers 200 so the processor stops retrying.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider != s.cfg.Processor.Provider {
		AbortWithError(c, paymentdomain.ErrInvalidProvider)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if _, err := s.settlementSvc.HandleWebhook(c.Request.Context(), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
