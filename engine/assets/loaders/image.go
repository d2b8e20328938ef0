package loaders

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded picture in tightly packed RGBA8.
type Image struct {
	Name          string
	Width, Height uint32
	Pixels        []byte
}

type ImageLoader struct {
	// FlipY stores the rows bottom-up.
	FlipY bool
}

func (il *ImageLoader) Load(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	img := ToRGBA(src, il.FlipY)
	img.Name = path
	return img, nil
}

// ToRGBA converts any image to RGBA8, reusing the pixels when they already are.
func ToRGBA(src image.Image, flipY bool) *Image {
	bounds := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
	}

	pixels := rgba.Pix
	if flipY {
		stride := rgba.Stride
		rows := bounds.Dy()
		pixels = make([]byte, len(rgba.Pix))
		for y := 0; y < rows; y++ {
			copy(pixels[y*stride:(y+1)*stride], rgba.Pix[(rows-1-y)*stride:(rows-y)*stride])
		}
	}
	return &Image{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: pixels,
	}
}
