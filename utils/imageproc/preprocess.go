// Package imageproc prepares invoice scans for text recognition.
package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Options tunes the preprocessing chain.
type Options struct {
	// DenoiseSigma is the Gaussian blur applied before thresholding. 0 disables it.
	DenoiseSigma float64
	// Contrast is an imaging.AdjustContrast percentage. 0 disables it.
	Contrast float64
	// BlockSize is the side of the neighbourhood used for the local mean, in pixels.
	BlockSize int
	// Offset is subtracted from the local mean before comparing.
	Offset float64
	// Cleanup removes isolated dark specks after thresholding.
	Cleanup bool
}

// DefaultOptions mirrors a Gaussian adaptive threshold with an 11px block and C=2.
func DefaultOptions() Options {
	return Options{
		DenoiseSigma: 0.6,
		BlockSize:    11,
		Offset:       2,
		Cleanup:      true,
	}
}

// blockSigma derives the Gaussian sigma that matches a kernel of the given size.
func blockSigma(blockSize int) float64 {
	if blockSize < 3 {
		blockSize = 3
	}
	return 0.3*(float64(blockSize-1)*0.5-1) + 0.8
}

// Preprocess converts img to a binarized grayscale image:
// grayscale, denoise, optional contrast, adaptive threshold, cleanup.
func Preprocess(img image.Image, opts Options) *image.Gray {
	work := imaging.Grayscale(img)
	if opts.DenoiseSigma > 0 {
		work = imaging.Blur(work, opts.DenoiseSigma)
	}
	if opts.Contrast != 0 {
		work = imaging.AdjustContrast(work, opts.Contrast)
	}

	mean := imaging.Blur(work, blockSigma(opts.BlockSize))
	out := AdaptiveThreshold(work, mean, opts.Offset)
	if opts.Cleanup {
		Despeckle(out)
	}
	return out
}

// AdaptiveThreshold sets a pixel white when it is brighter than its local mean
// minus offset. src and mean must share bounds; both are read through their red channel.
func AdaptiveThreshold(src, mean *image.NRGBA, offset float64) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[y*src.Stride:]
		meanRow := mean.Pix[y*mean.Stride:]
		outRow := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if float64(srcRow[x*4]) > float64(meanRow[x*4])-offset {
				outRow[x] = 255
			}
		}
	}
	return out
}

// Despeckle whitens black pixels whose eight neighbours are all white.
func Despeckle(img *image.Gray) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 3 || h < 3 {
		return
	}
	var speckles []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*img.Stride + x
			if img.Pix[i] != 0 {
				continue
			}
			isolated := true
			for dy := -1; dy <= 1 && isolated; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if (dx != 0 || dy != 0) && img.Pix[i+dy*img.Stride+dx] == 0 {
						isolated = false
						break
					}
				}
			}
			if isolated {
				speckles = append(speckles, i)
			}
		}
	}
	for _, i := range speckles {
		img.Pix[i] = 255
	}
}

// CropRegion cuts a percentage-based region out of img.
func CropRegion(img image.Image, r dto.Region) (image.Image, error) {
	b := img.Bounds()
	x := int(r.X * float64(b.Dx()))
	y := int(r.Y * float64(b.Dy()))
	w := int(r.W * float64(b.Dx()))
	h := int(r.H * float64(b.Dy()))
	if w <= 0 || h <= 0 {
		return nil, eris.Errorf("imageproc: empty region %+v", r)
	}
	rect := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+w, b.Min.Y+y+h).Intersect(b)
	if rect.Empty() {
		return nil, eris.Errorf("imageproc: region %+v outside image %v", r, b)
	}
	return imaging.Crop(img, rect), nil
}
