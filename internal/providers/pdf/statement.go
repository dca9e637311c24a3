package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is the printable summary of one payout period for one
// professional.
type StatementData struct {
	PlatformName     string
	StatementNumber  string
	ProfessionalName string
	PeriodStart      string
	PeriodEnd        string
	Currency         string

	Items []StatementItem

	GrossTotal      string
	CommissionTotal string
	NetTotal        string
}

type StatementItem struct {
	BookingRef string
	Date       string
	Gross      string
	Commission string
	Net        string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, data.PlatformName+" payout statement", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Statement: "+data.StatementNumber, props.Text{Top: 0}),
			text.New("Professional: "+data.ProfessionalName, props.Text{Top: 4}),
			text.New(fmt.Sprintf("Period: %s to %s", data.PeriodStart, data.PeriodEnd), props.Text{Top: 8}),
			text.New("Currency: "+data.Currency, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(10,
		text.NewCol(3, "Booking", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Gross", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Commission", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Net", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range data.Items {
		m.AddRow(8,
			text.NewCol(3, item.BookingRef, props.Text{Size: 9}),
			text.NewCol(3, item.Date, props.Text{Size: 9}),
			text.NewCol(2, item.Gross, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Commission, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Net, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Gross total", props.Text{Size: 9}),
		text.NewCol(2, data.GrossTotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Commission", props.Text{Size: 9}),
		text.NewCol(2, data.CommissionTotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Net payable", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.NetTotal, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
