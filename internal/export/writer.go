// Package export writes consolidated ground truth to files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/labelpizza/backend/internal/services"
	"github.com/xuri/excelize/v2"
)

const (
	FormatJSON  = "json"
	FormatExcel = "excel"

	// SheetName is the worksheet holding exported rows.
	SheetName = "Ground Truth"
)

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []services.ExportRow) error {
	if rows == nil {
		rows = []services.ExportRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteExcel writes one row per video with a video_uid column followed by one
// column per question. Missing answers are left blank.
func WriteExcel(w io.Writer, rows []services.ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	columns := services.QuestionColumns(rows)
	header := make([]interface{}, 0, len(columns)+1)
	header = append(header, "video_uid")
	for _, c := range columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, r := range rows {
		values := make([]interface{}, 0, len(header))
		values = append(values, r.VideoUID)
		for _, c := range columns {
			values = append(values, r.Answers[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return FormatExcel
	default:
		return FormatJSON
	}
}

func checkFormat(format string) error {
	if format != FormatJSON && format != FormatExcel {
		return fmt.Errorf("unsupported export format %q (use %s or %s)", format, FormatJSON, FormatExcel)
	}
	return nil
}

// Write dispatches to the writer for format.
func Write(w io.Writer, format string, rows []services.ExportRow) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == FormatExcel {
		return WriteExcel(w, rows)
	}
	return WriteJSON(w, rows)
}

// WriteFile writes rows to path. An empty format is inferred from the path.
func WriteFile(path, format string, rows []services.ExportRow) error {
	if format == "" {
		format = FormatFromPath(path)
	}
	if err := checkFormat(format); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, format, rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
