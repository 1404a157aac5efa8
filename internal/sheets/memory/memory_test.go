package memory

import (
	"context"
	"testing"

	ports "finboard/internal/sheets"
)

func TestExporter(t *testing.T) {
	e := New()
	ctx := context.Background()

	ref1, err := e.ExportAnalysis(ctx, ports.AnalysisRow{RecordID: "a", Income: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ref2, _ := e.ExportAnalysis(ctx, ports.AnalysisRow{RecordID: "b"})
	again, _ := e.ExportAnalysis(ctx, ports.AnalysisRow{RecordID: "a", Income: 999})

	if ref1 != "mem:1" || ref2 != "mem:2" {
		t.Errorf("unexpected refs %q %q", ref1, ref2)
	}
	if again != ref1 {
		t.Errorf("duplicate export should return %q, got %q", ref1, again)
	}
	rows := e.Rows()
	if len(rows) != 2 || rows[0].Income != 100 {
		t.Errorf("unexpected rows %+v", rows)
	}

	if _, err := e.ExportAnalysis(ctx, ports.AnalysisRow{}); err == nil {
		t.Error("expected error for missing record id")
	}
}
