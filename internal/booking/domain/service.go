package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("booking_not_found")
	ErrForbidden         = errors.New("booking_forbidden")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidRequest    = errors.New("invalid_booking_request")
	ErrInvalidHours      = errors.New("invalid_actual_hours")
	ErrInvalidAmount     = errors.New("invalid_final_amount")
)

type ActorRole string

const (
	RoleCustomer     ActorRole = "customer"
	RoleProfessional ActorRole = "professional"
	RoleAdmin        ActorRole = "admin"
)

// Actor identifies who is performing a booking action.
type Actor struct {
	ID   snowflake.ID
	Role ActorRole
}

type CreateRequest struct {
	CustomerID     snowflake.ID
	ProfessionalID snowflake.ID
	CategoryID     snowflake.ID
	ScheduledAt    time.Time
	Address        string
	Latitude       float64
	Longitude      float64
	Details        string
	PricingType    PricingType
	QuotedPrice    decimal.Decimal
}

type CheckOutRequest struct {
	ActualHours decimal.Decimal
}

type CompleteRequest struct {
	// FinalAmount overrides the computed amount. Required for FIXED pricing
	// when the quoted price should not be used as-is; optional for HOURLY.
	FinalAmount *decimal.Decimal
}

type ListRequest struct {
	pagination.Pagination
	CustomerID     snowflake.ID
	ProfessionalID snowflake.ID
	Status         Status

	// BeforeID is the decoded page cursor. The service fills it from
	// PageToken; callers leave it zero.
	BeforeID snowflake.ID
}

type ListResponse struct {
	pagination.PageInfo
	Bookings []Booking `json:"bookings"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Booking, error)
	Get(ctx context.Context, id snowflake.ID) (*Booking, error)
	Events(ctx context.Context, id snowflake.ID) ([]BookingEvent, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)

	Accept(ctx context.Context, id snowflake.ID, actor Actor) (*Booking, error)
	Reject(ctx context.Context, id snowflake.ID, actor Actor, reason string) (*Booking, error)
	CheckIn(ctx context.Context, id snowflake.ID, actor Actor) (*Booking, error)
	CheckOut(ctx context.Context, id snowflake.ID, actor Actor, req CheckOutRequest) (*Booking, error)
	Complete(ctx context.Context, id snowflake.ID, actor Actor, req CompleteRequest) (*Booking, error)
	Cancel(ctx context.Context, id snowflake.ID, actor Actor, reason string) (*Booking, error)
}
