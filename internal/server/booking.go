package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	"github.com/kormohq/kormo/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type createBookingRequest struct {
	CustomerID     string  `json:"customer_id"`
	ProfessionalID string  `json:"professional_id"`
	CategoryID     string  `json:"category_id"`
	ScheduledAt    string  `json:"scheduled_at"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Details        string  `json:"details"`
	PricingType    string  `json:"pricing_type"`
	QuotedPrice    string  `json:"quoted_price"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	customerID, err1 := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	professionalID, err2 := snowflake.ParseString(strings.TrimSpace(req.ProfessionalID))
	categoryID, err3 := snowflake.ParseString(strings.TrimSpace(req.CategoryID))
	if err1 != nil || err2 != nil || err3 != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	quotedPrice, err := decimal.NewFromString(strings.TrimSpace(req.QuotedPrice))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	booking, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateRequest{
		CustomerID:     customerID,
		ProfessionalID: professionalID,
		CategoryID:     categoryID,
		ScheduledAt:    scheduledAt,
		Address:        strings.TrimSpace(req.Address),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Details:        strings.TrimSpace(req.Details),
		PricingType:    bookingdomain.PricingType(strings.ToUpper(strings.TrimSpace(req.PricingType))),
		QuotedPrice:    quotedPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": booking})
}

func (s *Server) GetBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) GetBookingEvents(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.bookingSvc.Events(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) ListBookings(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID     string `form:"customer_id"`
		ProfessionalID string `form:"professional_id"`
		Status         string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := bookingdomain.ListRequest{
		Pagination: query.Pagination,
		Status:     bookingdomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
	}
	if v := strings.TrimSpace(query.CustomerID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.CustomerID = id
	}
	if v := strings.TrimSpace(query.ProfessionalID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.ProfessionalID = id
	}

	resp, err := s.bookingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AcceptBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Accept(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	booking, err := s.bookingSvc.Reject(c.Request.Context(), id, actorFrom(c), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CheckInBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.CheckIn(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CheckOutBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		ActualHours string `json:"actual_hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	hours, err := decimal.NewFromString(strings.TrimSpace(req.ActualHours))
	if err != nil {
		AbortWithError(c, bookingdomain.ErrInvalidHours)
		return
	}

	booking, err := s.bookingSvc.CheckOut(c.Request.Context(), id, actorFrom(c), bookingdomain.CheckOutRequest{
		ActualHours: hours,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CompleteBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		FinalAmount string `json:"final_amount"`
	}
	_ = c.ShouldBindJSON(&req)

	var completeReq bookingdomain.CompleteRequest
	if v := strings.TrimSpace(req.FinalAmount); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			AbortWithError(c, bookingdomain.ErrInvalidAmount)
			return
		}
		completeReq.FinalAmount = &amount
	}

	booking, err := s.bookingSvc.Complete(c.Request.Context(), id, actorFrom(c), completeReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) CancelBooking(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	booking, err := s.bookingSvc.Cancel(c.Request.Context(), id, actorFrom(c), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}
