package loader

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tmc/langchaingo/documentloaders"
)

// TextLoader emits the whole file as a single segment. Also serves markdown:
// chunking downstream does not care about markup.
type TextLoader struct{}

func (l *TextLoader) Load(ctx context.Context, data []byte) ([]Segment, error) {
	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load text: %w", err)
	}
	segs := make([]Segment, 0, len(docs))
	for _, d := range docs {
		segs = append(segs, Segment{Text: d.PageContent})
	}
	return segs, nil
}

// CSVLoader emits one segment per data row.
type CSVLoader struct{}

func (l *CSVLoader) Load(ctx context.Context, data []byte) ([]Segment, error) {
	docs, err := documentloaders.NewCSV(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load csv: %w", err)
	}
	segs := make([]Segment, 0, len(docs))
	for i, d := range docs {
		segs = append(segs, Segment{
			Text:   d.PageContent,
			Source: fmt.Sprintf("row %d", i+1),
		})
	}
	return segs, nil
}

// PDFLoader emits one segment per page.
type PDFLoader struct{}

func (l *PDFLoader) Load(ctx context.Context, data []byte) ([]Segment, error) {
	docs, err := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	segs := make([]Segment, 0, len(docs))
	for _, d := range docs {
		seg := Segment{Text: d.PageContent}
		if page, ok := d.Metadata["page"]; ok {
			seg.Source = fmt.Sprintf("page %v", page)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}
