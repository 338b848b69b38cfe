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

const dateLayout = "Jan 2, 2006"

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateTaskReport(ctx context.Context, report TaskReport) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, report.OrgName+" tasks", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, fmt.Sprintf("Generated %s by %s", report.GeneratedAt.Format(dateLayout), report.GeneratedBy), props.Text{
			Size: 9,
		}),
	)

	m.AddRow(10,
		text.NewCol(5, "Title", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Priority", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Done", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Center}),
		text.NewCol(2, "Author", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(1, col.New(12))

	if len(report.Rows) == 0 {
		m.AddRow(10, text.NewCol(12, "No tasks yet.", props.Text{Size: 9}))
	}
	for _, row := range report.Rows {
		due := "-"
		if row.DueDate != nil {
			due = row.DueDate.Format(dateLayout)
		}
		done := ""
		if row.Completed {
			done = "x"
		}
		m.AddRow(8,
			text.NewCol(5, row.Title, props.Text{Size: 9}),
			text.NewCol(2, row.Priority, props.Text{Size: 9}),
			text.NewCol(2, due, props.Text{Size: 9}),
			text.NewCol(1, done, props.Text{Size: 9, Align: align.Center}),
			text.NewCol(2, row.Author, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
