// Package imageprep normalizes uploaded photos into the tensor shape the
// classifier model expects.
package imageprep

import (
	"bytes"
	"image"

	// Register decoders for the accepted upload formats. Decoding a GIF
	// through image.Decode flattens it to its first frame.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"github.com/SayHoang/plantidentify/internal/errors"
)

const (
	// InputSize is the edge length of the square model input.
	InputSize = 224
	// Channels is the number of color channels the model consumes.
	Channels = 3
)

// Mean pixel values of the training set, caffe convention, BGR order.
// The model was trained on inputs preprocessed this way; changing these
// silently breaks every prediction.
var channelMeans = [Channels]float32{103.939, 116.779, 123.68}

// Tensor is a single-image model input with a leading batch dimension of 1.
// Data is laid out HWC with channels in BGR order, mean-subtracted.
type Tensor struct {
	Data     []float32
	Batch    int
	Height   int
	Width    int
	Channels int
}

// Len returns the number of float values in the tensor.
func (t *Tensor) Len() int {
	return t.Batch * t.Height * t.Width * t.Channels
}

// Preprocess decodes arbitrary JPEG, PNG or GIF bytes and produces the fixed
// 1x224x224x3 input tensor. Any decode or conversion failure is recoverable:
// the caller reports it and the user may retry with another file.
func Preprocess(data []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Newf("cannot decode image: %w", err).
			Category(errors.CategoryImageProcess).
			Component("imageprep").
			Context("image_size", len(data)).
			Build()
	}

	resized := imaging.Resize(img, InputSize, InputSize, imaging.Lanczos)

	t := &Tensor{
		Data:     make([]float32, InputSize*InputSize*Channels),
		Batch:    1,
		Height:   InputSize,
		Width:    InputSize,
		Channels: Channels,
	}

	i := 0
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			// NRGBA pixel access avoids the generic At() allocation path.
			off := resized.PixOffset(x, y)
			r := resized.Pix[off]
			g := resized.Pix[off+1]
			b := resized.Pix[off+2]
			t.Data[i] = float32(b) - channelMeans[0]
			t.Data[i+1] = float32(g) - channelMeans[1]
			t.Data[i+2] = float32(r) - channelMeans[2]
			i += Channels
		}
	}

	return t, nil
}
