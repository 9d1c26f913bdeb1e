// Package preprocess turns an image file into the normalized, batched tensor
// the breed network expects.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrWrongFormat is returned when a file cannot be decoded as an image.
var ErrWrongFormat = errors.New("wrong file format")

const (
	DefaultResizeShort = 256
	DefaultCropSize    = 227
	Channels           = 3

	// MaxPixels caps width*height before decoding, the same limit PIL applies.
	MaxPixels = 89_478_485

	// MaxAspect bounds the resized long edge at MaxAspect*ResizeShort.
	MaxAspect = 4
)

// ImageNet channel statistics, R/G/B order.
var (
	DefaultMean = [Channels]float32{0.485, 0.456, 0.406}
	DefaultStd  = [Channels]float32{0.229, 0.224, 0.225}
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Size returns the number of elements the shape describes.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Pipeline holds the fixed preprocessing parameters.
type Pipeline struct {
	ResizeShort uint
	Crop        int
	Mean        [Channels]float32
	Std         [Channels]float32
}

// Default returns the pipeline used by the MobileNet-V3 breed model.
func Default() Pipeline {
	return Pipeline{
		ResizeShort: DefaultResizeShort,
		Crop:        DefaultCropSize,
		Mean:        DefaultMean,
		Std:         DefaultStd,
	}
}

// OutputShape is the shape Run produces: 1 x 3 x Crop x Crop.
func (p Pipeline) OutputShape() []int64 {
	return []int64{1, Channels, int64(p.Crop), int64(p.Crop)}
}

// Run decodes the image at path and returns the batched input tensor.
func (p Pipeline) Run(path string) (*Tensor, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	img = p.Resize(img)
	img = CenterCrop(img, p.Crop)

	t := ToTensor(img)
	p.Normalize(t)

	return Batch(t), nil
}

// DecodeFile opens path and decodes it with the registered image formats.
// Missing files are reported as they are; undecodable content as ErrWrongFormat.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrWrongFormat)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrWrongFormat, cfg.Width, cfg.Height, MaxPixels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongFormat, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrWrongFormat)
	}

	return img, nil
}

// Resize scales img so its shorter edge equals ResizeShort, keeping the aspect ratio.
// Images longer than MaxAspect times their short edge are first trimmed to
// their center MaxAspect:1 span; the later center crop never reaches past it.
func (p Pipeline) Resize(img image.Image) image.Image {
	img = trimLongEdge(img)

	b := img.Bounds()
	if b.Dx() <= b.Dy() {
		return resize.Resize(p.ResizeShort, 0, img, resize.Bilinear)
	}
	return resize.Resize(0, p.ResizeShort, img, resize.Bilinear)
}

func trimLongEdge(img image.Image) image.Image {
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch {
	case h > w*MaxAspect:
		top := b.Min.Y + (h-w*MaxAspect)/2
		return sub.SubImage(image.Rect(b.Min.X, top, b.Max.X, top+w*MaxAspect))
	case w > h*MaxAspect:
		left := b.Min.X + (w-h*MaxAspect)/2
		return sub.SubImage(image.Rect(left, b.Min.Y, left+h*MaxAspect, b.Max.Y))
	}
	return img
}

// CenterCrop cuts a size x size square from the middle of img.
func CenterCrop(img image.Image, size int) image.Image {
	b := img.Bounds()
	left := b.Min.X + int(math.RoundToEven(float64(b.Dx()-size)/2))
	top := b.Min.Y + int(math.RoundToEven(float64(b.Dy()-size)/2))
	rect := image.Rect(left, top, left+size, top+size)

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok && rect.In(b) {
		return sub.SubImage(rect)
	}

	// Smaller than the crop: pad with black like a zero-filled crop would.
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// ToTensor converts img into a 3 x H x W tensor with values in [0, 1].
func ToTensor(img image.Image) *Tensor {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height
	data := make([]float32, Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()

			idx := y*width + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(bl) / 65535.0
		}
	}

	return &Tensor{
		Shape: []int64{Channels, int64(height), int64(width)},
		Data:  data,
	}
}

// Normalize applies (x - mean) / std per channel in place. t must be C x H x W.
func (p Pipeline) Normalize(t *Tensor) {
	plane := len(t.Data) / Channels
	for c := 0; c < Channels; c++ {
		mean, std := p.Mean[c], p.Std[c]
		ch := t.Data[c*plane : (c+1)*plane]
		for i := range ch {
			ch[i] = (ch[i] - mean) / std
		}
	}
}

// Batch prepends a batch dimension of one.
func Batch(t *Tensor) *Tensor {
	shape := make([]int64, 0, len(t.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, t.Shape...)
	return &Tensor{Shape: shape, Data: t.Data}
}
