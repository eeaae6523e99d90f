package xlsx

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

const sheet = "Items"

var headers = []string{
	"Item",
	"Category",
	"Quantity",
	"Notes",
	"Explanation",
	"Status",
	"Source",
	"Extracted At",
}

// Exporter writes one list as an XLSX workbook.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(w io.Writer, list domain.ListWithItems) error {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	for i, item := range list.Items {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			item.ItemName,
			item.Category,
			deref(item.Quantity),
			truncate(deref(item.Notes), 500),
			deref(item.Explanation),
			string(item.Status),
			string(item.SourceType),
			formatTime(item.ExtractedAt),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 32)
	_ = f.SetColWidth(sheet, "B", "C", 14)
	_ = f.SetColWidth(sheet, "D", "E", 48)
	_ = f.SetColWidth(sheet, "F", "G", 12)
	_ = f.SetColWidth(sheet, "H", "H", 22)

	if list.List.Name != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: list.List.Name, Description: list.List.Description})
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("export.xlsx.ok",
		"list_id", list.List.ID,
		"rows", len(list.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
