package service

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/rotisserie/eris"

	"github.com/Aashish23092/invoice-flow/utils/epcqr"
)

// QRReader finds a payment QR code on an invoice image.
type QRReader struct{}

func NewQRReader() *QRReader {
	return &QRReader{}
}

// ReadText decodes the first QR code found in img.
func (r *QRReader) ReadText(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", eris.Wrap(err, "qr: create bitmap")
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", eris.Wrap(err, "qr: decode")
	}
	return result.GetText(), nil
}

// ReadPayment decodes an EPC payment QR code from img.
func (r *QRReader) ReadPayment(img image.Image) (*epcqr.Payment, error) {
	text, err := r.ReadText(img)
	if err != nil {
		return nil, err
	}
	return epcqr.Parse(text)
}
