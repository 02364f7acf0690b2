package filters

import (
	"context"
	"image"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"go.viam.com/rsnode/device"
)

// DecimationName is the registry name of the decimation stage.
const DecimationName = "decimation"

// NewDecimation downsamples every video stream by magnitude. Depth blocks collapse to the median
// of their valid samples; image planes use nearest neighbor sampling.
func NewDecimation(magnitude int) (Filter, error) {
	if magnitude < 1 || magnitude > 8 {
		return nil, errors.Errorf("decimation magnitude must be within [1, 8], got %d", magnitude)
	}
	return &perFrame{name: DecimationName, fn: func(ctx context.Context, f *device.Frame) (*device.Frame, error) {
		return decimate(f, magnitude)
	}}, nil
}

func decimate(f *device.Frame, mag int) (*device.Frame, error) {
	if mag == 1 || !f.Profile.IsVideo() {
		return nil, nil
	}
	w, h := f.Width(), f.Height()
	dw, dh := w/mag, h/mag
	if dw == 0 || dh == 0 {
		return nil, errors.Errorf("cannot decimate %dx%d by %d", w, h, mag)
	}
	p := f.Profile
	p.Width, p.Height = dw, dh
	if p.Intrinsics != nil {
		scaled := p.Intrinsics.Scaled(mag)
		p.Intrinsics = &scaled
	}
	out := f.Derive(p)

	switch {
	case f.Depth != nil:
		out.Depth = make([]uint16, dw*dh)
		block := make([]uint16, 0, mag*mag)
		for y := 0; y < dh; y++ {
			for x := 0; x < dw; x++ {
				block = block[:0]
				for by := 0; by < mag; by++ {
					row := (y*mag + by) * w
					for bx := 0; bx < mag; bx++ {
						if v := f.Depth[row+x*mag+bx]; v != 0 {
							block = append(block, v)
						}
					}
				}
				out.Depth[y*dw+x] = median(block)
			}
		}
	case f.Data != nil && f.Profile.Format == device.FormatY8:
		src := &image.Gray{Pix: f.Data, Stride: w, Rect: image.Rect(0, 0, w, h)}
		dst := image.NewGray(image.Rect(0, 0, dw, dh))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out.Data = dst.Pix
	case f.Data != nil && f.Profile.Format == device.FormatRGB8:
		src := rgbToImage(f.Data, w, h)
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out.Data = imageToRGB(dst)
	default:
		return nil, nil
	}
	return out, nil
}

func median(vals []uint16) uint16 {
	if len(vals) == 0 {
		return 0
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	return vals[len(vals)/2]
}

func rgbToImage(data []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		copy(img.Pix[i*4:i*4+3], data[i*3:i*3+3])
		img.Pix[i*4+3] = 0xff
	}
	return img
}

func imageToRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4:x*4+3]...)
		}
	}
	return out
}
