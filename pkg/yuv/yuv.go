package yuv

import (
	"errors"
	"image"
	"image/color"
)

// Align rounds v up to a multiple of a
func Align(v, a int) int {
	return (v + a - 1) / a * a
}

// Size of planar 4:2:0 frame: Y plane then U and V planes of a quarter each
func Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// Planes splits I420 frame, nil if b is too short
func Planes(b []byte, width, height int) (y, u, v []byte) {
	if len(b) < Size(width, height) {
		return nil, nil, nil
	}
	i1 := width * height
	i2 := i1 + (width+1)/2*((height+1)/2)
	i3 := i2 + (i2 - i1)
	return b[:i1], b[i1:i2], b[i2:i3]
}

// NewImage wraps I420 frame without copy
func NewImage(b []byte, width, height int) *image.YCbCr {
	y, u, v := Planes(b, width, height)
	if y == nil {
		return nil
	}
	return &image.YCbCr{
		Y:              y,
		Cb:             u,
		Cr:             v,
		YStride:        width,
		CStride:        (width + 1) / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}
}

var ErrShort = errors.New("yuv: buffer too short")

// FromImage writes img as I420 of width x height into dst.
// Geometry bigger than the image is padded with edge pixels.
func FromImage(dst []byte, img image.Image, width, height int) (int, error) {
	y, u, v := Planes(dst, width, height)
	if y == nil {
		return 0, ErrShort
	}

	b := img.Bounds()
	clampX := func(x int) int { return b.Min.X + min(x, b.Dx()-1) }
	clampY := func(y int) int { return b.Min.Y + min(y, b.Dy()-1) }

	cw := (width + 1) / 2

	switch img := img.(type) {
	case *image.YCbCr:
		for row := 0; row < height; row++ {
			iy := clampY(row)
			if width == b.Dx() {
				i := img.YOffset(b.Min.X, iy)
				copy(y[row*width:(row+1)*width], img.Y[i:i+width])
				continue
			}
			for col := 0; col < width; col++ {
				y[row*width+col] = img.Y[img.YOffset(clampX(col), iy)]
			}
		}
		for row := 0; row < (height+1)/2; row++ {
			iy := clampY(row * 2)
			for col := 0; col < cw; col++ {
				i := img.COffset(clampX(col*2), iy)
				u[row*cw+col] = img.Cb[i]
				v[row*cw+col] = img.Cr[i]
			}
		}

	case *image.Gray:
		for row := 0; row < height; row++ {
			iy := clampY(row)
			for col := 0; col < width; col++ {
				y[row*width+col] = img.Pix[img.PixOffset(clampX(col), iy)]
			}
		}
		for i := range u {
			u[i] = 128
			v[i] = 128
		}

	default:
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				c := color.YCbCrModel.Convert(img.At(clampX(col), clampY(row))).(color.YCbCr)
				y[row*width+col] = c.Y
				if row%2 == 0 && col%2 == 0 {
					u[row/2*cw+col/2] = c.Cb
					v[row/2*cw+col/2] = c.Cr
				}
			}
		}
	}

	return Size(width, height), nil
}

// FromYUYV converts packed 4:2:2 to I420, chroma from even rows
func FromYUYV(dst, src []byte, width, height int) (int, error) {
	y, u, v := Planes(dst, width, height)
	if y == nil || len(src) < width*height*2 || width%2 != 0 {
		return 0, ErrShort
	}

	cw := width / 2
	for row := 0; row < height; row++ {
		line := src[row*width*2 : (row+1)*width*2]
		for i := 0; i < cw; i++ {
			y[row*width+i*2] = line[i*4]
			y[row*width+i*2+1] = line[i*4+2]
			if row%2 == 0 {
				u[row/2*cw+i] = line[i*4+1]
				v[row/2*cw+i] = line[i*4+3]
			}
		}
	}

	return Size(width, height), nil
}
