package imageio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(30 * x), G: uint8(40 * y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestFromImageRGB(t *testing.T) {
	r, err := FromImage(testImage(), 3)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Height())
	assert.Equal(t, 7, r.Width())
	assert.Equal(t, 3, r.Channels())

	v, err := r.Get(4, 6, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(180), v)
	v, _ = r.Get(4, 6, 1)
	assert.Equal(t, uint8(160), v)
	v, _ = r.Get(4, 6, 2)
	assert.Equal(t, uint8(10), v)
}

func TestFromImageOffsetBounds(t *testing.T) {
	img := testImage().SubImage(image.Rect(2, 1, 6, 4))
	r, err := FromImage(img, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Height())
	assert.Equal(t, 4, r.Width())
	v, _ := r.Get(0, 0, 0)
	assert.Equal(t, uint8(60), v)
	v, _ = r.Get(0, 0, 3)
	assert.Equal(t, uint8(255), v)
}

func TestFromImageGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(2, 1, color.Gray{Y: 99})
	r, err := FromImage(img, 1)
	require.NoError(t, err)
	v, _ := r.Get(1, 2, 0)
	assert.Equal(t, uint8(99), v)

	_, err = FromImage(img, 2)
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
}

func TestToImageRoundTrip(t *testing.T) {
	src := testImage()
	r, err := FromImage(src, 4)
	require.NoError(t, err)
	img, err := ToImage(r)
	require.NoError(t, err)
	back, ok := img.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, src.Pix, back.Pix)
}

func TestToImageReplicatesChannelZero(t *testing.T) {
	r, err := raster.New[uint8](1, 1, 2)
	require.NoError(t, err)
	require.NoError(t, r.Set(0, 0, 0, 10))
	require.NoError(t, r.Set(0, 0, 1, 20))
	img, err := ToImage(r)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 10, A: 255}, img.(*image.NRGBA).NRGBAAt(0, 0))

	gray, err := raster.New[uint8](2, 2, 1)
	require.NoError(t, err)
	img, err = ToImage(gray)
	require.NoError(t, err)
	_, ok := img.(*image.Gray)
	assert.True(t, ok)
}

func TestExpandBinary(t *testing.T) {
	r, err := raster.FromValues(1, 4, 1, []uint8{0, 1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 0, 255}, ExpandBinary(r).Values())
}

func TestSaveLoadLossless(t *testing.T) {
	r, err := FromImage(testImage(), 3)
	require.NoError(t, err)
	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.bmp", "out.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, r), name)
		back, err := Load(path, 3)
		require.NoError(t, err, name)
		assert.Equal(t, r.Values(), back.Values(), name)
	}
}

func TestSaveJPEG(t *testing.T) {
	r, err := FromImage(testImage(), 1)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, Save(path, r))
	back, err := Load(path, 1)
	require.NoError(t, err)
	assert.True(t, raster.SameDims(r, back))
}

func TestSaveUnsupported(t *testing.T) {
	r, err := raster.New[uint8](2, 2, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, Save(filepath.Join(t.TempDir(), "out.xyz"), r), config.ErrInvalidConfiguration)
	_, err = Load(filepath.Join(t.TempDir(), "missing.png"), 1)
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("a/b/c.PNG"))
	assert.True(t, IsImage("x.webp"))
	assert.False(t, IsImage("notes.txt"))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "cat_canny.png"), OutputPath("out", "in/cat.jpg", "canny"))
}

func TestFindImages(t *testing.T) {
	dir := t.TempDir()
	r, err := raster.New[uint8](2, 2, 1)
	require.NoError(t, err)
	for _, name := range []string{"b.png", "a.bmp", "a_canny.png"} {
		require.NoError(t, Save(filepath.Join(dir, name), r))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	got, err := FindImages(dir, "_canny")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.bmp"), filepath.Join(dir, "b.png")}, got)

	_, err = FindImages(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}
