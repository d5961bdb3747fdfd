package preprocess

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

// ErrInvalidImage is returned when a payload cannot be turned into a raster image.
var ErrInvalidImage = errors.New("invalid image data")

// Tensor is a single image in HWC layout with RGB channel order and values in [0,1].
type Tensor struct {
	Height int
	Width  int
	Data   []float32
}

// Channels is fixed: every decoded image is expanded or reduced to RGB.
const Channels = 3

func NewTensor(height, width int) Tensor {
	return Tensor{Height: height, Width: width, Data: make([]float32, height*width*Channels)}
}

func (t Tensor) Shape() [3]int {
	return [3]int{t.Height, t.Width, Channels}
}

func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*Channels+c]
}

func (t Tensor) Set(y, x, c int, v float32) {
	t.Data[(y*t.Width+x)*Channels+c] = v
}

// CHW writes the tensor in channel-major order into dst, which must hold
// Height*Width*3 values.
func (t Tensor) CHW(dst []float32) {
	plane := t.Height * t.Width
	for i := 0; i < plane; i++ {
		dst[i] = t.Data[i*Channels]
		dst[plane+i] = t.Data[i*Channels+1]
		dst[2*plane+i] = t.Data[i*Channels+2]
	}
}

// Decode reads any registered image format (JPEG, PNG, WebP).
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", xerrors.Errorf("decode: %v: %w", err, ErrInvalidImage)
	}
	return img, format, nil
}

// DecodeBase64 accepts plain base64 or a data URL ("data:image/png;base64,...").
func DecodeBase64(encoded string) (image.Image, error) {
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, xerrors.Errorf("empty payload: %w", ErrInvalidImage)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some clients drop the padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, xerrors.Errorf("base64: %v: %w", err, ErrInvalidImage)
		}
	}

	img, _, err := Decode(bytes.NewReader(raw))
	return img, err
}

// FromImage resizes img to size×size with bilinear interpolation and converts it to a
// [0,1] RGB tensor. Alpha is ignored and grayscale is replicated across channels.
func FromImage(img image.Image, size int) Tensor {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	return fromRaster(resized)
}

func fromRaster(img image.Image) Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := NewTensor(height, width)

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[off : off+width*4]
			for x := 0; x < width; x++ {
				i := (y*width + x) * Channels
				t.Data[i] = float32(row[x*4]) / 255
				t.Data[i+1] = float32(row[x*4+1]) / 255
				t.Data[i+2] = float32(row[x*4+2]) / 255
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				i := (y*width + x) * Channels
				t.Data[i] = float32(r) / 65535.0
				t.Data[i+1] = float32(g) / 65535.0
				t.Data[i+2] = float32(b) / 65535.0
			}
		}
	}
	return t
}
