package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	readings "home-monitor/internal/readings/domain"
)

func (h *Handler) respondExport(w http.ResponseWriter, parameterID int64, format string, rows []readings.BucketRow) {
	var (
		body        []byte
		contentType string
		extension   string
		err         error
	)
	switch format {
	case "xlsx":
		body, err = BuildBucketXLSX(parameterID, rows)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		extension = "xlsx"
	case "pdf":
		body, err = BuildBucketPDF(parameterID, rows)
		contentType = "application/pdf"
		extension = "pdf"
	default:
		writeErrors(w, http.StatusUnprocessableEntity, map[string][]string{
			"format": {"The format field must be one of: xlsx, pdf"},
		})
		return
	}
	if err != nil {
		h.logger.Error("readings handler: export failed", zap.Error(err))
		writeErrors(w, http.StatusInternalServerError, map[string][]string{
			"server": {"Export generation failed"},
		})
		return
	}

	filename := "parameter-" + strconv.FormatInt(parameterID, 10) + "-buckets." + extension
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// BuildBucketXLSX renders bucket aggregates as a spreadsheet.
func BuildBucketXLSX(parameterID int64, rows []readings.BucketRow) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "buckets"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Parameter %d", parameterID))
	_ = f.SetCellValue(sheet, "A2", "Bucket Start")
	_ = f.SetCellValue(sheet, "B2", "Count")
	_ = f.SetCellValue(sheet, "C2", "Min")
	_ = f.SetCellValue(sheet, "D2", "Max")
	_ = f.SetCellValue(sheet, "E2", "Avg")
	for i, row := range rows {
		line := i + 3
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row.BucketStart.Format(readings.TimeFormat))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), row.Count)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", line), row.MinValue)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", line), row.MaxValue)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", line), row.AvgValue)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBucketPDF renders bucket aggregates as a minimal PDF table.
func BuildBucketPDF(parameterID int64, rows []readings.BucketRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Parameter %d Bucket Aggregates", parameterID))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Bucket Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Min", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Max", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Avg", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(50, 6, row.BucketStart.Format(readings.TimeFormat), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, strconv.FormatInt(row.Count, 10), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", row.MinValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", row.MaxValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", row.AvgValue), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
