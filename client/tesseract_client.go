package client

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// TesseractClient recognizes text with a local Tesseract installation.
type TesseractClient struct {
	dataPath  string
	languages []string
	logger    *zap.Logger
}

func NewTesseractClient(dataPath string, languages []string, logger *zap.Logger) *TesseractClient {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TesseractClient{
		dataPath:  dataPath,
		languages: languages,
		logger:    logger,
	}
}

// Recognize runs Tesseract on img in single-block mode and returns the text
// with one confidence per recognized word.
func (tc *TesseractClient) Recognize(ctx context.Context, img image.Image) (dto.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return dto.Recognition{}, err
	}

	data, err := encodePNG(img)
	if err != nil {
		return dto.Recognition{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if tc.dataPath != "" {
		client.SetTessdataPrefix(tc.dataPath)
	}
	if err := client.SetLanguage(tc.languages...); err != nil {
		return dto.Recognition{}, eris.Wrap(err, "tesseract: set language")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return dto.Recognition{}, eris.Wrap(err, "tesseract: set page segmentation mode")
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return dto.Recognition{}, eris.Wrap(err, "tesseract: set image")
	}

	text, err := client.Text()
	if err != nil {
		return dto.Recognition{}, eris.Wrap(err, "tesseract: extract text")
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text without confidences still counts; the average will be 0.
		tc.logger.Warn("tesseract: word boxes unavailable", zap.Error(err))
		return dto.Recognition{Text: text}, nil
	}

	confidences := make([]float64, 0, len(boxes))
	for _, box := range boxes {
		confidences = append(confidences, box.Confidence)
	}
	return dto.Recognition{Text: text, TokenConfidences: confidences}, nil
}

// Close performs cleanup
func (tc *TesseractClient) Close() {
	tc.logger.Debug("tesseract client closed")
}

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, eris.New("client: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, eris.Wrap(err, "client: encode png")
	}
	return buf.Bytes(), nil
}
