package router

import (
	"errors"
	"reflect"
	"testing"

	"legal-doc-intelligence/internal/pipelineerr"
)

func TestGetPageCountRejectsEmptyFile(t *testing.T) {
	r := New(50, 20, 500)
	_, err := r.GetPageCount(nil)
	if err == nil {
		t.Fatal("expected error for empty file")
	}
	pe, ok := pipelineerr.As(err)
	if !ok || pe.Code != pipelineerr.CodeEmptyDocument {
		t.Errorf("expected CodeEmptyDocument, got %v", err)
	}
}

func TestGetPageCountRejectsNonPDF(t *testing.T) {
	r := New(50, 20, 500)
	_, err := r.GetPageCount([]byte("not a pdf at all"))
	if err == nil {
		t.Fatal("expected error for non-PDF content")
	}
	pe, ok := pipelineerr.As(err)
	if !ok || pe.Code != pipelineerr.CodeInvalidPDFFormat {
		t.Errorf("expected CodeInvalidPDFFormat, got %v", err)
	}
}

func TestShouldChunk(t *testing.T) {
	r := New(50, 20, 500)
	if r.ShouldChunk(50) {
		t.Error("page count equal to threshold should not chunk")
	}
	if !r.ShouldChunk(51) {
		t.Error("page count over threshold should chunk")
	}
}

func TestCalculateChunkSpecsEvenSplit(t *testing.T) {
	r := New(50, 20, 500)
	got := r.CalculateChunkSpecs(60)
	want := []ChunkSpec{
		{ChunkIndex: 0, PageStart: 1, PageEnd: 20},
		{ChunkIndex: 1, PageStart: 21, PageEnd: 40},
		{ChunkIndex: 2, PageStart: 41, PageEnd: 60},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CalculateChunkSpecs(60) = %+v, want %+v", got, want)
	}
}

func TestCalculateChunkSpecsRemainder(t *testing.T) {
	r := New(50, 20, 500)
	got := r.CalculateChunkSpecs(45)
	want := []ChunkSpec{
		{ChunkIndex: 0, PageStart: 1, PageEnd: 20},
		{ChunkIndex: 1, PageStart: 21, PageEnd: 40},
		{ChunkIndex: 2, PageStart: 41, PageEnd: 45},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CalculateChunkSpecs(45) = %+v, want %+v", got, want)
	}

	for i, spec := range got {
		if spec.ChunkIndex != i {
			t.Errorf("chunk %d: ChunkIndex = %d, want contiguous from zero", i, spec.ChunkIndex)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].PageStart != got[i-1].PageEnd+1 {
			t.Errorf("chunk %d page range is not contiguous with chunk %d", i, i-1)
		}
	}
}

func TestCalculateChunkSpecsZeroPages(t *testing.T) {
	r := New(50, 20, 500)
	got := r.CalculateChunkSpecs(0)
	if len(got) != 0 {
		t.Errorf("expected no chunks for zero pages, got %+v", got)
	}
}

func TestExtractPageTextRejectsNonPDF(t *testing.T) {
	r := New(50, 20, 500)
	_, err := r.ExtractPageText([]byte("garbage"), 1, 2)
	if err == nil {
		t.Fatal("expected error for garbage PDF bytes")
	}
	var pe *pipelineerr.Error
	if !errors.As(err, &pe) || pe.Code != pipelineerr.CodeInvalidPDFFormat {
		t.Errorf("expected CodeInvalidPDFFormat, got %v", err)
	}
}
