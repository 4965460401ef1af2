package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportService produces XLSX workbooks of an owner's extraction-job history.
type ExportService struct {
	store *JobStore
}

func NewExportService(store *JobStore) *ExportService {
	return &ExportService{store: store}
}

const exportSheetName = "Extraction Jobs"

var exportHeaders = []string{
	"Job Token",
	"File Name",
	"Content Type",
	"Status",
	"Successful Sections",
	"Total Sections",
	"Success Rate",
	"Created At",
	"Started At",
	"Completed At",
	"Error",
}

// ExportJobsXLSX returns a workbook with one row per job, newest first.
func (s *ExportService) ExportJobsXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	jobs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheetName); err != nil {
		return nil, err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for row, job := range jobs {
		values := []any{
			job.JobToken,
			job.FileName,
			job.ContentType,
			string(job.Status),
			job.SuccessfulSections(),
			len(job.SectionResults),
			job.SuccessRate(),
			job.CreatedAt.Format(time.RFC3339),
			formatOptionalTime(job.StartedAt),
			formatOptionalTime(job.CompletedAt),
			stringOrEmpty(job.ErrorMessage),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(exportSheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
