// Package imageio converts between image.Image and byte rasters and reads
// and writes image files.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

// FromImage copies img into a raster with the given number of channels:
// 1 is luminance, 3 is RGB and 4 is non-premultiplied RGBA.
func FromImage(img image.Image, channels int) (*raster.Raster[uint8], error) {
	b := img.Bounds()
	r, err := raster.New[uint8](b.Dy(), b.Dx(), channels)
	if err != nil {
		return nil, err
	}
	switch channels {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		for row := 0; row < b.Dy(); row++ {
			for col := 0; col < b.Dx(); col++ {
				if err := r.Set(row, col, 0, gray.GrayAt(col, row).Y); err != nil {
					return nil, err
				}
			}
		}
	case 3, 4:
		nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
		for row := 0; row < b.Dy(); row++ {
			for col := 0; col < b.Dx(); col++ {
				px := nrgba.NRGBAAt(col, row)
				vals := [4]uint8{px.R, px.G, px.B, px.A}
				for ch := 0; ch < channels; ch++ {
					if err := r.Set(row, col, ch, vals[ch]); err != nil {
						return nil, err
					}
				}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported channel count %d: %w", channels, config.ErrInvalidConfiguration)
	}
	return r, nil
}

// ToImage converts r to a *image.Gray for one channel and to a
// *image.NRGBA otherwise. Missing colour channels repeat channel 0 and a
// missing alpha channel is opaque.
func ToImage(r *raster.Raster[uint8]) (image.Image, error) {
	rect := image.Rect(0, 0, r.Width(), r.Height())
	if r.Channels() == 1 {
		gray := image.NewGray(rect)
		for row := 0; row < r.Height(); row++ {
			for col := 0; col < r.Width(); col++ {
				v, err := r.Get(row, col, 0)
				if err != nil {
					return nil, err
				}
				gray.SetGray(col, row, color.Gray{Y: v})
			}
		}
		return gray, nil
	}

	nrgba := image.NewNRGBA(rect)
	for row := 0; row < r.Height(); row++ {
		for col := 0; col < r.Width(); col++ {
			px := [4]uint8{0, 0, 0, 255}
			for ch := 0; ch < 4; ch++ {
				src := ch
				if ch >= r.Channels() {
					if ch == 3 {
						continue
					}
					src = 0
				}
				v, err := r.Get(row, col, src)
				if err != nil {
					return nil, err
				}
				px[ch] = v
			}
			nrgba.SetNRGBA(col, row, color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]})
		}
	}
	return nrgba, nil
}

// ExpandBinary maps a 0/1 edge map to 0/255.
func ExpandBinary(r *raster.Raster[uint8]) *raster.Raster[uint8] {
	out := raster.SameShape[uint8](r)
	for ch := 0; ch < r.Channels(); ch++ {
		for row := 0; row < r.Height(); row++ {
			for col := 0; col < r.Width(); col++ {
				if v, _ := r.Get(row, col, ch); v != 0 {
					_ = out.Set(row, col, ch, 255)
				}
			}
		}
	}
	return out
}

// Load decodes the image at path into a raster with the given channels.
func Load(path string, channels int) (*raster.Raster[uint8], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return FromImage(img, channels)
}

// Save encodes r to path. The format follows the file extension: png,
// jpg/jpeg, bmp or tif/tiff.
func Save(path string, r *raster.Raster[uint8]) error {
	img, err := ToImage(r)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(file, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		err = bmp.Encode(file, img)
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("unsupported output format %q: %w", ext, config.ErrInvalidConfiguration)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// IsImage reports whether path has an extension Load can decode.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// OutputPath names the output for input inside dir: the input base name with
// suffix appended, saved as png.
func OutputPath(dir, input, suffix string) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, name+"_"+suffix+".png")
}

// FindImages lists the decodable images directly inside dir, skipping
// files whose name contains exclude when it is not empty.
func FindImages(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		if exclude != "" && strings.Contains(e.Name(), exclude) {
			continue
		}
		images = append(images, filepath.Join(dir, e.Name()))
	}
	return images, nil
}
