package classifier

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jdeng/goheif"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// HEIF major brands that need the dedicated decoder.
var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true,
}

// decodeFile opens path and decodes it. Files whose ftyp box carries a HEIF
// brand go through goheif; everything else goes through the registered image
// decoders, with goheif as a second try for .heic/.heif files those reject.
func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	head, _ := r.Peek(12)
	if hasFtyp(head) && isHEIF(head, path) {
		return decodeHEIF(r)
	}

	img, format, err := image.Decode(r)
	if err == nil {
		return img, format, nil
	}
	if !errors.Is(err, image.ErrFormat) || !isHEIF(head, path) {
		return nil, format, err
	}
	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return nil, "", serr
	}
	return decodeHEIF(bufio.NewReader(f))
}

// decodeHEIF runs goheif on untrusted input; a panic in the parser is
// reported as a decode error.
func decodeHEIF(r io.Reader) (img image.Image, format string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, format, err = nil, "heif", fmt.Errorf("heif: malformed file: %v", rec)
		}
	}()
	img, err = goheif.Decode(r)
	if err != nil {
		return nil, "heif", fmt.Errorf("heif: %w", err)
	}
	return img, "heif", nil
}

func hasFtyp(head []byte) bool {
	return len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp"))
}

// isHEIF sniffs the ISO-BMFF ftyp box and falls back to the file extension.
func isHEIF(head []byte, path string) bool {
	if hasFtyp(head) {
		return heifBrands[string(head[8:12])]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// Preprocessor turns a decoded image into the normalised NCHW tensor the
// model was trained on.
type Preprocessor struct {
	Width  int
	Height int
	Mean   [3]float32
	Std    [3]float32
}

func newPreprocessor(spec ModelSpec) Preprocessor {
	return Preprocessor{Width: spec.Width, Height: spec.Height, Mean: spec.Mean, Std: spec.Std}
}

// Tensor resizes img to the target size and returns channel-major float32
// data with per-channel (x-mean)/std applied.
func (p Preprocessor) Tensor(img image.Image) []float32 {
	resized := resize.Resize(uint(p.Width), uint(p.Height), img, resize.Bilinear)
	bounds := resized.Bounds()

	plane := p.Width * p.Height
	out := make([]float32, 3*plane)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := color.NRGBA64Model.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			idx := y*p.Width + x
			out[idx] = (float32(c.R)/65535.0 - p.Mean[0]) / p.Std[0]
			out[plane+idx] = (float32(c.G)/65535.0 - p.Mean[1]) / p.Std[1]
			out[2*plane+idx] = (float32(c.B)/65535.0 - p.Mean[2]) / p.Std[2]
		}
	}
	return out
}

// LoadTensor decodes the file at path and preprocesses it.
func (p Preprocessor) LoadTensor(path string) ([]float32, error) {
	img, _, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return p.Tensor(img), nil
}
