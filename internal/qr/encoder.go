package qr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	qrSize     = 512
	labelBand  = 48
	labelScale = 3
)

// Encoder renders ticket QR images: the ticket identifier as the QR
// payload with the human-readable key printed on a label strip below.
// Rendered files are a cache, not a source of truth; any image can be
// regenerated from the stored identifier and key.
type Encoder struct {
	DataDir string
}

func NewEncoder(dataDir string) *Encoder {
	return &Encoder{DataDir: dataDir}
}

// Encode returns a PNG with the payload QR and the visible label.
// The highest error-correction level keeps the code readable on phone
// screens and cheap prints.
func (e *Encoder) Encode(payload, label string) ([]byte, error) {
	code, err := qrcode.New(payload, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR code: %w", err)
	}
	qrImg := code.Image(qrSize)

	bounds := qrImg.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+labelBand))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, qrImg, bounds.Min, draw.Src)

	if label != "" {
		drawLabel(canvas, label, bounds.Dy()+labelBand/2)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Render writes the encoded image to the data directory, named by the
// ticket identifier.
func (e *Encoder) Render(payload, label string) (string, error) {
	data, err := e.Encode(payload, label)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	path := e.ImagePath(payload)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write QR image: %w", err)
	}
	return path, nil
}

// Image returns the cached ticket image, regenerating it when the file
// is missing. A lost data directory is therefore not a lost ticket.
func (e *Encoder) Image(payload, label string) ([]byte, error) {
	data, err := os.ReadFile(e.ImagePath(payload))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read QR image: %w", err)
	}
	if _, err := e.Render(payload, label); err != nil {
		return nil, err
	}
	return os.ReadFile(e.ImagePath(payload))
}

func (e *Encoder) ImagePath(payload string) string {
	return filepath.Join(e.DataDir, payload+".png")
}

// drawLabel centers the label text in the strip below the QR code,
// drawing the bitmap face at native size and scaling it up.
func drawLabel(canvas *image.RGBA, label string, centerY int) {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, label).Ceil() * labelScale
	textH := face.Height * labelScale

	small := image.NewRGBA(image.Rect(0, 0, font.MeasureString(face, label).Ceil(), face.Height))
	draw.Draw(small, small.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(label)

	x0 := (canvas.Bounds().Dx() - textW) / 2
	y0 := centerY - textH/2
	for y := 0; y < textH; y++ {
		for x := 0; x < textW; x++ {
			canvas.Set(x0+x, y0+y, small.At(x/labelScale, y/labelScale))
		}
	}
}
