package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type upsertCommissionRequest struct {
	CategoryID string `json:"category_id"`
	Percent    string `json:"percent"`
}

// UpsertCommissionSetting writes the override for a category, or the
// platform-wide default when category_id is omitted. Existing bookings keep
// their snapshotted percent.
func (s *Server) UpsertCommissionSetting(c *gin.Context) {
	var req upsertCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	percent, err := decimal.NewFromString(strings.TrimSpace(req.Percent))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var categoryID *snowflake.ID
	if v := strings.TrimSpace(req.CategoryID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		categoryID = &id
	}

	setting, err := s.commissionSvc.Upsert(c.Request.Context(), categoryID, percent)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": setting})
}

func (s *Server) PreviewCommission(c *gin.Context) {
	var query struct {
		Amount     string `form:"amount"`
		CategoryID string `form:"category_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(query.Amount))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var categoryID snowflake.ID
	if v := strings.TrimSpace(query.CategoryID); v != "" {
		categoryID, err = snowflake.ParseString(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	breakdown, err := s.commissionSvc.Calculate(c.Request.Context(), amount, categoryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}
