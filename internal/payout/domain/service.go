package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GenerateForPeriod batches net earnings of COMPLETED bookings in
	// [start, end) into one PENDING payout per professional. Professionals
	// whose period overlaps an existing payout are skipped, not failed.
	GenerateForPeriod(ctx context.Context, start, end time.Time) ([]Payout, error)

	// MarkPaid flips a PENDING payout to PAID and stamps paid_at.
	MarkPaid(ctx context.Context, id snowflake.ID) (*Payout, error)

	Get(ctx context.Context, id snowflake.ID) (*Payout, error)
	ListForProfessional(ctx context.Context, professionalID snowflake.ID) ([]Payout, error)

	// Statement renders the payout's line items as a PDF.
	Statement(ctx context.Context, id snowflake.ID) (io.Reader, error)
}
