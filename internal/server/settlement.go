package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) parseDateParam(c *gin.Context) (time.Time, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(c.Param("date")))
	if err != nil {
		return time.Time{}, ErrInvalidRequest
	}
	return date, nil
}

func (s *Server) GetSettlementDay(c *gin.Context) {
	date, err := s.parseDateParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	day, err := s.settlementSvc.GetDay(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": day})
}

func (s *Server) ProcessSettlementDay(c *gin.Context) {
	date, err := s.parseDateParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	day, err := s.settlementSvc.ProcessDay(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": day})
}

func (s *Server) BackfillSettlements(c *gin.Context) {
	report, err := s.settlementSvc.Backfill(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) GetBookingSettlement(c *gin.Context) {
	bookingID, err := parseIDParam(c, "bookingId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settlement, err := s.settlementSvc.GetByBooking(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settlement})
}

func (s *Server) MarkSettlementPaid(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settlement, err := s.settlementSvc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settlement})
}

func (s *Server) GetProfessionalBalance(c *gin.Context) {
	professionalID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.settlementSvc.Balance(c.Request.Context(), professionalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"professional_id": professionalID.String(),
		"balance":         balance,
	}})
}
