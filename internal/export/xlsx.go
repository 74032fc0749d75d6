// Package export writes the catalogue to spreadsheet files.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
)

// SheetName is the worksheet holding one row per image.
const SheetName = "Images"

// Columns is the header row.
var Columns = []string{
	"UUID", "Filename", "Title", "Description", "Tags", "File Type", "File Size",
	"Width", "Height", "Created At", "Updated At", "Filepath", "Metadata",
}

var columnWidths = []float64{38, 24, 32, 48, 24, 12, 12, 8, 8, 22, 22, 48, 40}

// ImageSource yields every catalogued image.
type ImageSource interface {
	IterateImages(ctx context.Context, batchSize int, fn func(*models.Image) error) error
}

// WriteXLSX streams every image from src into an XLSX workbook written to w and
// returns the number of rows.
func WriteXLSX(ctx context.Context, w io.Writer, src ImageSource) (int, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, fmt.Errorf("stream writer: %w", err)
	}
	for i, width := range columnWidths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return 0, fmt.Errorf("column width: %w", err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("header style: %w", err)
	}
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: bold}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = src.IterateImages(ctx, 500, func(img *models.Image) error {
		cell, err := excelize.CoordinatesToCellName(1, rows+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, imageRow(img)); err != nil {
			return fmt.Errorf("write row %d: %w", rows+2, err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}
	if err := sw.Flush(); err != nil {
		return rows, fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}

func imageRow(img *models.Image) []interface{} {
	meta := ""
	if len(img.Metadata) > 0 {
		if b, err := json.Marshal(img.Metadata); err == nil {
			meta = string(b)
		}
	}
	return []interface{}{
		img.UUID,
		img.Filename,
		img.Title,
		img.Description,
		strings.Join(img.Tags, ", "),
		img.FileType,
		img.FileSize,
		img.Width,
		img.Height,
		formatTime(img.CreatedAt),
		formatTime(img.UpdatedAt),
		img.Filepath,
		meta,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
