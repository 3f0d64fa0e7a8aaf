package preprocess

import (
	"image"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// parallelRows splits [0,height) into one strip per CPU and runs fn on each.
func parallelRows(height int, fn func(startY, endY int)) {
	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	if numWorkers <= 1 {
		fn(0, height)
		return
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for startY := 0; startY < height; startY += rowsPerWorker {
		endY := min(startY+rowsPerWorker, height)
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}

// orient turns portrait frames 90 degrees clockwise so display rows run
// horizontally.
func orient(img *image.NRGBA) *image.NRGBA {
	if img.Rect.Dy() > img.Rect.Dx() {
		return imaging.Rotate270(img)
	}
	return img
}

// cropBand keeps a full-width band of fraction*height centered vertically.
func cropBand(img *image.NRGBA, fraction float64) *image.NRGBA {
	b := img.Bounds()
	h := b.Dy()
	bandH := int(math.Round(float64(h) * fraction))
	bandH = max(1, min(bandH, h))
	y0 := b.Min.Y + (h-bandH)/2
	return imaging.Crop(img, image.Rect(b.Min.X, y0, b.Max.X, y0+bandH))
}

// scale resizes by multiplier, capped so the width never exceeds maxWidth.
func scale(img *image.NRGBA, multiplier float64, maxWidth int) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	factor := multiplier
	if maxWidth > 0 && float64(w)*factor > float64(maxWidth) {
		factor = float64(maxWidth) / float64(w)
	}
	nw := max(1, int(math.Round(float64(w)*factor)))
	nh := max(1, int(math.Round(float64(h)*factor)))
	if nw == w && nh == h {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// isDisplayText applies the LCD segment test to the strongest channel c
// against the two others.
func isDisplayText(c, o1, o2 float64, opts Options) bool {
	if c > opts.BrightnessFloor && c > opts.ChannelDominance*o1 && c > opts.ChannelDominance*o2 {
		return true
	}
	return c > opts.SecondaryFloor && o1 < opts.SecondaryCeiling && o2 < opts.SecondaryCeiling
}

// segment maps lit display segments to white and everything else to black.
func segment(img *image.NRGBA, opts Options) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			src := img.Pix[y*img.Stride:]
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				r, g, b := float64(src[4*x]), float64(src[4*x+1]), float64(src[4*x+2])
				var text bool
				switch {
				case g >= r && g >= b:
					text = isDisplayText(g, r, b, opts)
				case r >= b:
					text = isDisplayText(r, g, b, opts)
				default:
					text = isDisplayText(b, r, g, opts)
				}
				if text {
					row[x] = 255
				}
			}
		}
	})
	return dst
}

// toGray converts with the same Rec. 601 weights the quality assessor uses.
func toGray(img *image.NRGBA) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			src := img.Pix[y*img.Stride:]
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				l := 0.299*float64(src[4*x]) + 0.587*float64(src[4*x+1]) + 0.114*float64(src[4*x+2])
				row[x] = uint8(math.Min(255, math.Round(l)))
			}
		}
	})
	return dst
}

func mapGray(g *image.Gray, fn func(v uint8) uint8) *image.Gray {
	dst := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		dst.Pix[i] = fn(v)
	}
	return dst
}

// contrast stretches around mid-gray: (v-128)*factor+128, clamped.
func contrast(g *image.Gray, factor float64) *image.Gray {
	var lut [256]uint8
	for v := range lut {
		lut[v] = uint8(math.Max(0, math.Min(255, (float64(v)-128)*factor+128)))
	}
	return mapGray(g, func(v uint8) uint8 { return lut[v] })
}

// dilate whitens the 8-neighbourhood of every pixel brighter than 128,
// clipped to the image bounds. Reads the source and writes a new buffer.
func dilate(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dst := image.NewGray(g.Rect)
	copy(dst.Pix, g.Pix)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*g.Stride+x] <= 128 {
				continue
			}
			x0, x1 := max(0, x-1), min(w-1, x+1)
			for ny := max(0, y-1); ny <= min(h-1, y+1); ny++ {
				row := ny * dst.Stride
				for nx := x0; nx <= x1; nx++ {
					dst.Pix[row+nx] = 255
				}
			}
		}
	}
	return dst
}

// median3 replaces every interior pixel by the median of its 3x3 window.
// Border pixels are copied unchanged.
func median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dst := image.NewGray(g.Rect)
	copy(dst.Pix, g.Pix)
	if w < 3 || h < 3 {
		return dst
	}
	parallelRows(h-2, func(startY, endY int) {
		var window [9]uint8
		for y := startY + 1; y < endY+1; y++ {
			for x := 1; x < w-1; x++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					row := (y + dy) * g.Stride
					for dx := -1; dx <= 1; dx++ {
						window[n] = g.Pix[row+x+dx]
						n++
					}
				}
				slices.Sort(window[:])
				dst.Pix[y*dst.Stride+x] = window[4]
			}
		}
	})
	return dst
}

// threshold binarizes at level*255: strictly greater is white.
func threshold(g *image.Gray, level float64) *image.Gray {
	cut := level * 255
	return mapGray(g, func(v uint8) uint8 {
		if float64(v) > cut {
			return 255
		}
		return 0
	})
}

func invert(g *image.Gray) *image.Gray {
	return mapGray(g, func(v uint8) uint8 { return 255 - v })
}
