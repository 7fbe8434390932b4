package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// PaddleClient recognizes text through a PaddleOCR serving endpoint.
type PaddleClient struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPaddleClient(apiURL string, timeout time.Duration, logger *zap.Logger) *PaddleClient {
	if apiURL == "" {
		apiURL = "http://paddleocr:8866/predict/ocr_system"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaddleClient{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type paddleResponse struct {
	Results [][]struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
}

// Recognize posts img as base64 PNG. Each returned line counts as one token;
// Paddle reports confidences in [0,1] so they are rescaled to 0-100.
func (p *PaddleClient) Recognize(ctx context.Context, img image.Image) (dto.Recognition, error) {
	data, err := encodePNG(img)
	if err != nil {
		return dto.Recognition{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"images": []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return dto.Recognition{}, eris.Wrap(err, "paddle: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return dto.Recognition{}, eris.Wrap(err, "paddle: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return dto.Recognition{}, eris.Wrap(err, "paddle: call api")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return dto.Recognition{}, eris.Errorf("paddle: api returned status %d: %s", resp.StatusCode, string(body))
	}

	var result paddleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return dto.Recognition{}, eris.Wrap(err, "paddle: decode response")
	}

	var text strings.Builder
	var confidences []float64
	if len(result.Results) > 0 {
		for _, line := range result.Results[0] {
			text.WriteString(line.Text)
			text.WriteString("\n")
			confidences = append(confidences, line.Confidence*100)
		}
	}

	p.logger.Debug("paddle: recognized text", zap.Int("chars", text.Len()), zap.Int("lines", len(confidences)))
	return dto.Recognition{Text: text.String(), TokenConfidences: confidences}, nil
}
