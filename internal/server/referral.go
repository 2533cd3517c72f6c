package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListReferralCodes(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	codes, err := s.referralSvc.ListCodes(c.Request.Context(), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": codes})
}

type validateReferralRequest struct {
	Code string `json:"code"`
}

// ValidateReferralCode checks a code before checkout applies it, so the
// buyer learns about an inactive or exhausted code while still editing.
// The self-referral rule depends on the billing email and is enforced
// again at submission.
func (s *Server) ValidateReferralCode(c *gin.Context) {
	var req validateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "invalid_code", "code is required"))
		return
	}

	code, err := s.referralSvc.Validate(c.Request.Context(), req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"code":           code.Code,
		"discount_cents": code.DiscountCents,
	}})
}
