package preprocess

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
)

// AugmentOptions mirror the random transforms applied to training batches.
// Zero values disable the corresponding transform.
type AugmentOptions struct {
	HorizontalFlip bool    `yaml:"horizontalFlip"`
	RotationRange  float64 `yaml:"rotationRange"` // degrees, uniform in [-r, r]
	WidthShift     float64 `yaml:"widthShift"`    // fraction of the width
	HeightShift    float64 `yaml:"heightShift"`   // fraction of the height
	Zoom           float64 `yaml:"zoom"`          // scale uniform in [1-z, 1+z]
	BrightnessMin  float64 `yaml:"brightnessMin"`
	BrightnessMax  float64 `yaml:"brightnessMax"`
}

func (o AugmentOptions) enabled() bool {
	return o.HorizontalFlip || o.RotationRange > 0 || o.WidthShift > 0 || o.HeightShift > 0 ||
		o.Zoom > 0 || o.BrightnessMax > 0
}

// Augmenter draws random transforms from its own seeded source, so a training
// run is reproducible. Not safe for concurrent use.
type Augmenter struct {
	opts AugmentOptions
	rng  *rand.Rand
}

func NewAugmenter(opts AugmentOptions, seed int64) *Augmenter {
	return &Augmenter{opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// Apply returns an augmented copy of t; t itself is left untouched.
func (a *Augmenter) Apply(t Tensor) Tensor {
	if a == nil || !a.opts.enabled() {
		return t
	}

	img := t.ToImage()
	w, h := t.Width, t.Height

	if a.opts.HorizontalFlip && a.rng.Intn(2) == 1 {
		img = imaging.FlipH(img)
	}

	if r := a.opts.RotationRange; r > 0 {
		angle := a.uniform(-r, r)
		if angle != 0 {
			img = imaging.CropCenter(imaging.Rotate(img, angle, color.Black), w, h)
		}
	}

	if z := a.opts.Zoom; z > 0 {
		scale := a.uniform(1-z, 1+z)
		zw := int(math.Round(float64(w) * scale))
		zh := int(math.Round(float64(h) * scale))
		if zw > 0 && zh > 0 && (zw != w || zh != h) {
			zoomed := imaging.Resize(img, zw, zh, imaging.Linear)
			if scale > 1 {
				img = imaging.CropCenter(zoomed, w, h)
			} else {
				img = imaging.PasteCenter(imaging.New(w, h, color.Black), zoomed)
			}
		}
	}

	if a.opts.WidthShift > 0 || a.opts.HeightShift > 0 {
		dx := int(math.Round(a.uniform(-a.opts.WidthShift, a.opts.WidthShift) * float64(w)))
		dy := int(math.Round(a.uniform(-a.opts.HeightShift, a.opts.HeightShift) * float64(h)))
		if dx != 0 || dy != 0 {
			img = imaging.Paste(imaging.New(w, h, color.Black), img, image.Pt(dx, dy))
		}
	}

	if a.opts.BrightnessMax > 0 {
		factor := a.uniform(a.opts.BrightnessMin, a.opts.BrightnessMax)
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: scaleChannel(c.R, factor), G: scaleChannel(c.G, factor), B: scaleChannel(c.B, factor), A: c.A}
		})
	}

	return fromRaster(img)
}

func (a *Augmenter) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + a.rng.Float64()*(hi-lo)
}

func scaleChannel(v uint8, factor float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(float64(v)*factor))))
}

// ToImage converts the tensor back into an 8-bit raster.
func (t Tensor) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			i := (y*t.Width + x) * Channels
			o := img.PixOffset(x, y)
			img.Pix[o] = toByte(t.Data[i])
			img.Pix[o+1] = toByte(t.Data[i+1])
			img.Pix[o+2] = toByte(t.Data[i+2])
			img.Pix[o+3] = 255
		}
	}
	return img
}

func toByte(v float32) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(float64(v)*255))))
}
