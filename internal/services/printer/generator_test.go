package printer

import (
	"bytes"
	"testing"

	"github.com/xelth-com/riveredgego/internal/apperr"
)

func TestGenerateLabelsPDF(t *testing.T) {
	codes := []string{"SO202603010001", "SO202603010002", "SO202603010003", "SO202603010004"}
	pdf, err := GenerateLabelsPDF(LabelConfig{Title: "SO", Count: len(codes), Cols: 2, Rows: 1}, codes)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", pdf[:8])
	}

	if _, err := GenerateLabelsPDF(LabelConfig{Count: MaxLabels + 1}, codes); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected VALIDATION for oversized sheet, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	cfg := LabelConfig{}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Cols != 3 || cfg.Rows != 7 || cfg.Count != 21 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	bad := []LabelConfig{
		{Count: MaxLabels + 1},
		{Count: -1},
		{Cols: 11},
		{Rows: 21},
		{MarginTop: -1},
		{MarginLeft: 105},
		{Cols: 3, GapX: 200},
	}
	for _, c := range bad {
		c := c
		if err := c.Normalize(); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%+v: expected VALIDATION, got %v", c, err)
		}
	}
}
