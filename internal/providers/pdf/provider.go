package pdf

import (
	"context"
	"io"
	"time"
)

type Provider interface {
	GenerateTaskReport(ctx context.Context, report TaskReport) (io.Reader, error)
}

// TaskReport is a printable snapshot of one organization's task list.
type TaskReport struct {
	OrgName     string
	GeneratedAt time.Time
	GeneratedBy string
	Rows        []TaskReportRow
}

type TaskReportRow struct {
	Title     string
	Priority  string
	DueDate   *time.Time
	Completed bool
	Author    string
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateTaskReport(ctx context.Context, report TaskReport) (io.Reader, error) {
	return nil, nil
}
