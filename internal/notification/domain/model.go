package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidRequest = errors.New("invalid_notification_request")

// Request is a fire-and-forget notice about a booking lifecycle change.
// Delivery, presence tracking, and user preferences live outside this core;
// only construction and dispatch happen here.
type Request struct {
	Kind           string       `json:"kind"`
	BookingID      snowflake.ID `json:"booking_id"`
	CustomerID     snowflake.ID `json:"customer_id"`
	ProfessionalID snowflake.ID `json:"professional_id"`
	Status         string       `json:"status"`
	Reason         string       `json:"reason,omitempty"`
	Amount         string       `json:"amount,omitempty"`
}

type Service interface {
	Dispatch(ctx context.Context, req Request) error
}
