// Package texture resolves and decodes the image files referenced by
// OpenGEX materials.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported texture format")

// extensions are tried, in order, when a referenced path does not exist
// as written.
var extensions = []string{".tga", ".png", ".jpg", ".jpeg", ".bmp"}

// Resolve finds the file for a texture path as written in a scene. Exporters
// write paths like "//textures/stone.tga"; the leading slashes are dropped
// and the path is tried under each root in order. When the exact file is
// missing, the other known image extensions are tried.
func Resolve(ref string, roots []string) (string, bool) {
	rel := filepath.FromSlash(strings.TrimLeft(ref, "/\\"))
	if rel == "" {
		return "", false
	}

	if filepath.IsAbs(ref) && exists(ref) {
		return ref, true
	}

	ext := filepath.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	for _, root := range roots {
		candidate := filepath.Join(root, rel)
		if exists(candidate) {
			return candidate, true
		}
		for _, alt := range extensions {
			if strings.EqualFold(alt, ext) {
				continue
			}
			candidate = filepath.Join(root, base+alt)
			if exists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open decodes the image file at path, choosing the decoder by extension.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an image whose format is given by its file extension.
// Decoders are called directly: the tga package registers an empty magic
// string, so image.Decode would hand every format to it.
func Decode(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(ext) {
	case ".tga":
		return tga.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ToRGBA converts any image.Image to *image.RGBA for upload.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			rgba.SetRGBA(x, y, color.RGBA{R: uint8(r16 >> 8), G: uint8(g16 >> 8), B: uint8(b16 >> 8), A: uint8(a16 >> 8)})
		}
	}
	return rgba
}
