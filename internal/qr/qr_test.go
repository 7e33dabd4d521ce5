package qr_test

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fest-ticketing/internal/qr"
)

func blankPNG(t *testing.T) []byte {
	canvas := image.NewRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, canvas))
	return buf.Bytes()
}

const testPayload = "aabbccddeeff00112233445566778899"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoder := qr.NewEncoder(t.TempDir())
	decoder := qr.NewDecoder()

	data, err := encoder.Encode(testPayload, "FEST011")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	code, err := decoder.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, testPayload, code)
}

func TestEncodeWithoutLabel(t *testing.T) {
	encoder := qr.NewEncoder(t.TempDir())
	decoder := qr.NewDecoder()

	data, err := encoder.Encode(testPayload, "")
	require.NoError(t, err)

	code, err := decoder.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, testPayload, code)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	decoder := qr.NewDecoder()

	_, err := decoder.Decode([]byte("not an image at all"))
	assert.Error(t, err)
}

func TestDecodePlainImageHasNoCode(t *testing.T) {
	decoder := qr.NewDecoder()

	// A valid PNG with nothing in it.
	blank := blankPNG(t)
	_, err := decoder.Decode(blank)
	assert.ErrorIs(t, err, qr.ErrNoCode)
}

func TestRenderAndLazyRegeneration(t *testing.T) {
	dir := t.TempDir()
	encoder := qr.NewEncoder(dir)

	path, err := encoder.Render(testPayload, "FEST011")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, testPayload+".png"), path)

	cached, err := encoder.Image(testPayload, "FEST011")
	require.NoError(t, err)
	assert.NotEmpty(t, cached)

	// Losing the file is not losing the ticket.
	require.NoError(t, os.Remove(path))
	regenerated, err := encoder.Image(testPayload, "FEST011")
	require.NoError(t, err)
	assert.NotEmpty(t, regenerated)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	code, err := qr.NewDecoder().Decode(regenerated)
	require.NoError(t, err)
	assert.Equal(t, testPayload, code)
}
