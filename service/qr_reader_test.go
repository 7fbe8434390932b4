package service

import (
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qrImage(t *testing.T, text string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)

	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if !matrix.Get(x, y) {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

func TestQRReaderReadPayment(t *testing.T) {
	payload := "BCD\n002\n1\nSCT\nBFSWDE33BER\nNorthwind GmbH\nDE89370400440532013000\nEUR250.00\n\n\nInvoice 2025-17"

	p, err := NewQRReader().ReadPayment(qrImage(t, payload))

	require.NoError(t, err)
	assert.Equal(t, "Northwind GmbH", p.Beneficiary)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "250", p.Amount.String())
	assert.Equal(t, "Invoice 2025-17", p.RemittanceInfo())
}

func TestQRReaderNonPaymentCode(t *testing.T) {
	text, err := NewQRReader().ReadText(qrImage(t, "https://example.com/invoice/17"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/invoice/17", text)

	_, err = NewQRReader().ReadPayment(qrImage(t, "https://example.com/invoice/17"))
	assert.Error(t, err)
}

func TestQRReaderBlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 50, 50))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	_, err := NewQRReader().ReadText(img)
	assert.Error(t, err)
}
