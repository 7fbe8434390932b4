package service

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

// PDFProcessor turns an invoice PDF into something the OCR pipeline can read.
type PDFProcessor interface {
	ExtractText(pdfData []byte) (string, error)
	FirstPageImage(pdfData []byte) (image.Image, error)
}

type pdfProcessor struct{}

func NewPDFProcessor() PDFProcessor {
	return &pdfProcessor{}
}

// ExtractText reads the text layer of a born-digital PDF, row by row.
func (p *pdfProcessor) ExtractText(pdfData []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		return "", eris.Wrap(err, "pdf: open reader")
	}

	var text strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			text.WriteString(strings.Join(words, " "))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// FirstPageImage returns the largest image embedded in page 1, which for a
// scanned invoice is the page itself.
func (p *pdfProcessor) FirstPageImage(pdfData []byte) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "invoice-pdf-images")
	if err != nil {
		return nil, eris.Wrap(err, "pdf: create temp dir")
	}
	defer os.RemoveAll(tempDir)

	in := filepath.Join(tempDir, "invoice.pdf")
	if err := os.WriteFile(in, pdfData, 0o600); err != nil {
		return nil, eris.Wrap(err, "pdf: write temp file")
	}
	outDir := filepath.Join(tempDir, "images")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, eris.Wrap(err, "pdf: create image dir")
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(in, outDir, []string{"1"}, conf); err != nil {
		return nil, eris.Wrap(err, "pdf: extract images")
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: read image dir")
	}

	var best image.Image
	bestArea := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		img, err := imaging.Open(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		if area := img.Bounds().Dx() * img.Bounds().Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	if best == nil {
		return nil, eris.New("pdf: no raster image on first page")
	}
	return best, nil
}
