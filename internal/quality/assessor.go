package quality

import (
	"math"
	"runtime"
	"sync"

	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/pkg/models"

	"gonum.org/v1/gonum/floats"
)

// GlareLuma is the luma above which a pixel counts as washed out (~0.94 of max).
const GlareLuma = 240.0

// Assessor scores a frame for brightness, sharpness and glare.
type Assessor interface {
	Assess(f *frame.Frame) models.QualityScore
}

type assessor struct {
	workers int
}

// NewAssessor creates an assessor that splits frames into one strip per CPU.
func NewAssessor() Assessor {
	return &assessor{workers: runtime.NumCPU()}
}

// stripResult holds the partial sums for one horizontal strip.
type stripResult struct {
	luma     float64
	gradient float64
	glare    float64
}

// Luma returns the Rec. 601 weighted intensity in [0,255].
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Assess is pure: bit-identical frames always yield bit-identical scores.
// Strips are computed in parallel but summed in strip order.
func (a *assessor) Assess(f *frame.Frame) models.QualityScore {
	if f == nil || f.Width() == 0 || f.Height() == 0 {
		return models.QualityScore{}
	}
	width, height := f.Width(), f.Height()

	numWorkers := a.workers
	if height < numWorkers {
		numWorkers = height
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers // ceil division

	results := make([]stripResult, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(i, startY, endY int) {
			defer wg.Done()
			results[i] = assessStrip(f, width, startY, endY)
		}(i, startY, endY)
	}
	wg.Wait()

	lumas := make([]float64, numWorkers)
	gradients := make([]float64, numWorkers)
	glares := make([]float64, numWorkers)
	for i, r := range results {
		lumas[i], gradients[i], glares[i] = r.luma, r.gradient, r.glare
	}

	n := float64(width * height)
	brightness := floats.Sum(lumas) / (n * 255)
	sharpness := floats.Sum(gradients) / (n * 255)
	glare := floats.Sum(glares) / n

	score, _ := BlendScore(brightness, sharpness, glare)
	return models.QualityScore{
		Brightness: clamp(brightness, 0, 1),
		Sharpness:  clamp(sharpness, 0, 1),
		Glare:      clamp(glare, 0, 1),
		Score:      score,
	}
}

func assessStrip(f *frame.Frame, width, startY, endY int) stripResult {
	var res stripResult
	for y := startY; y < endY; y++ {
		prev := 0.0
		for x := 0; x < width; x++ {
			l := Luma(f.RGB(x, y))
			res.luma += l
			if l > GlareLuma {
				res.glare++
			}
			if x > 0 {
				res.gradient += math.Abs(l - prev)
			}
			prev = l
		}
	}
	return res
}

// BlendScore combines the three normalized measurements into a 0-100 score.
// Each term contributes a third: closeness of mean luma to mid-gray, mean
// horizontal gradient in 8-bit units, and a glare penalty.
func BlendScore(brightness, sharpness, glare float64) (float64, models.ComponentScores) {
	c := models.ComponentScores{
		Brightness: math.Max(0, 100-math.Abs(brightness*255-128)*2),
		Sharpness:  math.Min(100, sharpness*255*2),
		Glare:      math.Max(0, 100-glare*500),
	}
	score := (c.Brightness + c.Sharpness + c.Glare) / 3
	if math.IsNaN(score) {
		return 0, c
	}
	return clamp(score, 0, 100), c
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
