package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GenerateQuote(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, doc.TenantName, props.Text{Size: 14, Style: fontstyle.Bold}),
		text.NewCol(4, "Quote", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Quote number: "+doc.QuoteNumber, props.Text{Top: 0}),
			text.New("Issued: "+doc.IssuedAt, props.Text{Top: 5}),
			text.New("Status: "+doc.Status, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Prepared for", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(doc.AccountName, props.Text{Top: 5, Align: align.Right}),
			text.New(doc.QuoteName, props.Text{Top: 10, Align: align.Right}),
		),
	)

	for _, section := range doc.Sections {
		m.AddRow(10, text.NewCol(12, section.Title, props.Text{Size: 11, Style: fontstyle.Bold, Top: 3}))
		m.AddRow(2, line.NewCol(12))
		for _, row := range section.Rows {
			label := row.Label
			if row.Addon {
				label = "Add-on: " + label
			}
			m.AddRow(7,
				text.NewCol(8, label, props.Text{Size: 9}),
				text.NewCol(4, row.Value, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	m.AddRow(4, line.NewCol(12))
	if doc.Discount != "" {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, "Discount", props.Text{Size: 10}),
			text.NewCol(3, doc.Discount+"%", props.Text{Size: 10, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Size: 11, Style: fontstyle.Bold}),
		text.NewCol(3, doc.Currency+" "+doc.Total, props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right}),
	)

	if len(doc.DealTerms) > 0 {
		m.AddRow(10, text.NewCol(12, "Deal terms", props.Text{Size: 11, Style: fontstyle.Bold, Top: 3}))
		for _, term := range doc.DealTerms {
			m.AddRow(6,
				text.NewCol(4, term.Name, props.Text{Size: 9}),
				text.NewCol(8, term.Value, props.Text{Size: 9}),
			)
		}
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}
