package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// Receipt holds preformatted values; money is already rendered as text.
type Receipt struct {
	StoreName    string
	StoreAddress string
	StorePhone   string
	BillNumber   string
	IssuedAt     string
	Cashier      string
	Items        []ReceiptItem
	ItemCount    int64
	Total        string
	Footer       string
}

type ReceiptItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt Receipt) ([]byte, error) {
	if receipt.BillNumber == "" {
		return nil, errors.New("receipt bill number is required")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, receipt.StoreName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	if receipt.StoreAddress != "" || receipt.StorePhone != "" {
		m.AddRow(10,
			col.New(12).Add(
				text.New(receipt.StoreAddress, props.Text{Size: 9, Align: align.Center}),
				text.New(receipt.StorePhone, props.Text{Size: 9, Align: align.Center, Top: 4}),
			),
		)
	}

	m.AddRow(16,
		col.New(6).Add(
			text.New("Bill: "+receipt.BillNumber, props.Text{Size: 9}),
			text.New("Date: "+receipt.IssuedAt, props.Text{Size: 9, Top: 4}),
		),
		col.New(6).Add(
			text.New("Cashier: "+receipt.Cashier, props.Text{Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(8,
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range receipt.Items {
		m.AddRow(7,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(8,
		col.New(6),
		text.NewCol(2, fmt.Sprintf("%d items", receipt.ItemCount), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
		text.NewCol(2, receipt.Total, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	if receipt.Footer != "" {
		m.AddRow(14,
			text.NewCol(12, receipt.Footer, props.Text{Size: 9, Align: align.Center, Top: 6}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
