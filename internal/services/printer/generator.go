// Package printer renders business codes as printable QR label sheets.
package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/xelth-com/riveredgego/internal/apperr"
)

// MaxLabels bounds one sheet request.
const MaxLabels = 500

// LabelConfig holds the sheet layout. Lengths are millimetres on A4.
type LabelConfig struct {
	Title      string  `json:"title"`
	Count      int     `json:"count"`
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"margin_top"`
	MarginLeft float64 `json:"margin_left"`
	GapX       float64 `json:"gap_x"`
	GapY       float64 `json:"gap_y"`
}

// Normalize fills the default 3x7 layout and checks the bounds.
func (c *LabelConfig) Normalize() error {
	if c.Cols == 0 {
		c.Cols = 3
	}
	if c.Rows == 0 {
		c.Rows = 7
	}
	if c.Count == 0 {
		c.Count = c.Cols * c.Rows
	}
	switch {
	case c.Count < 1 || c.Count > MaxLabels:
		return apperr.Validation("count: must be between 1 and %d", MaxLabels)
	case c.Cols < 1 || c.Cols > 10 || c.Rows < 1 || c.Rows > 20:
		return apperr.Validation("layout: cols must be 1-10 and rows 1-20")
	case c.MarginTop < 0 || c.MarginLeft < 0 || c.GapX < 0 || c.GapY < 0:
		return apperr.Validation("layout: margins and gaps cannot be negative")
	case c.MarginLeft*2+c.GapX*float64(c.Cols-1) >= pageWidth || c.MarginTop*2+c.GapY*float64(c.Rows-1) >= pageHeight:
		return apperr.Validation("layout: margins and gaps leave no room for labels")
	}
	return nil
}

// A4 dimensions
const pageWidth, pageHeight = 210.0, 297.0

// GenerateLabelsPDF creates a PDF with one QR label per code
func GenerateLabelsPDF(cfg LabelConfig, codes []string) ([]byte, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	labelW := (pageWidth - cfg.MarginLeft*2 - totalGapX) / float64(cfg.Cols)
	labelH := (pageHeight - cfg.MarginTop*2 - totalGapY) / float64(cfg.Rows)
	labelsPerPage := cfg.Cols * cfg.Rows

	for i, code := range codes {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		// Top-left of label
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(code, qrcode.Medium, 256)
		if err != nil {
			return nil, err
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR centred, 70% of the label height
		qrSize := labelH * 0.7
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + (labelH-qrSize)/2 - 2
		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+labelH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 5, code, "", 0, "C", false, 0, "")

		if cfg.Title != "" {
			pdf.SetXY(x, y+1)
			pdf.SetFontSize(6)
			pdf.CellFormat(labelW, 3, cfg.Title, "", 0, "R", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
