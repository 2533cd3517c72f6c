package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	settlementservice "github.com/fieldpass/checkout/internal/settlement/service"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	session, err := s.checkoutSvc.Begin(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) GetCheckoutSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.checkoutSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

// SaveCheckoutSession passes the raw body through so the service can
// apply strict decoding; binding here would silently drop unknown
// fields.
func (s *Server) SaveCheckoutSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.checkoutSvc.SaveDraft(c.Request.Context(), id, raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) QuoteCheckoutSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.checkoutSvc.Quote(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SubmitCheckoutSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	session, result, err := s.checkoutSvc.Submit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session": session,
		"pricing": result,
	}})
}

type completeCheckoutRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// CompleteCheckoutSession is the client-driven settlement trigger. It
// races the processor webhook; whichever lands first creates the
// order, the other reads it back.
func (s *Server) CompleteCheckoutSession(c *gin.Context) {
	id, err := parseSessionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req completeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		AbortWithError(c, newValidationError("payment_intent_id", "invalid_payment_intent_id", "payment_intent_id is required"))
		return
	}

	outcome, err := s.settlementSvc.Settle(c.Request.Context(), id, intentID, settlementservice.TriggerClient)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"order":   outcome.Order,
		"created": outcome.Created,
	}})
}

func parseSessionID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return id, nil
}
