package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/liyue201/goqr"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode is returned when no decoding strategy finds a QR code in
// the image. Check-in treats it the same as an empty scanned code.
var ErrNoCode = errors.New("no QR code recognized")

// Decoder extracts a QR payload from a photo. Two independent
// strategies run in sequence: the zxing port first, then the quirc
// port as fallback.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(imageBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	if text, err := decodeZxing(img); err == nil {
		return text, nil
	}
	if text, err := decodeGoqr(img); err == nil {
		return text, nil
	}
	return "", ErrNoCode
}

func decodeZxing(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

func decodeGoqr(img image.Image) (string, error) {
	codes, err := goqr.Recognize(img)
	if err != nil {
		return "", err
	}
	if len(codes) == 0 {
		return "", ErrNoCode
	}
	return string(codes[0].Payload), nil
}
