package service

import (
	"context"
	"math"
	"sort"
)

// StrategyStatistical is the name of the handcrafted color/texture strategy.
const StrategyStatistical = "statistical"

// StatisticalConfig holds configuration for the statistical extractor.
type StatisticalConfig struct {
	Size      int // resampled square side
	Bins      int // histogram bins per channel
	AuxLength int // auxiliary block length, zero padded
}

// StatisticalExtractor builds a color histogram plus aux statistics vector.
// It has no external state and is safe for concurrent use.
type StatisticalExtractor struct {
	size      int
	bins      int
	auxLength int
	fetcher   *ImageFetcher
}

// NewStatisticalExtractor creates a new statistical extractor.
// Zero config fields fall back to 64×64, 32 bins and a 32 element aux block.
func NewStatisticalExtractor(cfg *StatisticalConfig, fetcher *ImageFetcher) *StatisticalExtractor {
	e := &StatisticalExtractor{size: 64, bins: 32, auxLength: 32, fetcher: fetcher}
	if cfg != nil {
		if cfg.Size > 1 {
			e.size = cfg.Size
		}
		if cfg.Bins > 0 {
			e.bins = cfg.Bins
		}
		if cfg.AuxLength > 0 {
			e.auxLength = cfg.AuxLength
		}
	}
	return e
}

func (e *StatisticalExtractor) Name() string { return StrategyStatistical }

func (e *StatisticalExtractor) Dimensions() int { return e.bins*3 + e.auxLength }

// Extract computes the embedding of an encoded image.
func (e *StatisticalExtractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	img, err := decodeImage(data)
	if err != nil {
		embeddingExtractTotal.WithLabelValues(StrategyStatistical, statusFailure).Inc()
		return nil, err
	}
	canvas := fitSquare(img, e.size)

	vec := make([]float32, 0, e.Dimensions())
	vec = append(vec, e.histogram(canvas.Pix)...)
	vec = append(vec, e.auxFeatures(canvas.Pix, e.size, e.size)...)

	embeddingExtractTotal.WithLabelValues(StrategyStatistical, statusSuccess).Inc()
	return vec, nil
}

// ExtractFromURL fetches rawURL and extracts it.
func (e *StatisticalExtractor) ExtractFromURL(ctx context.Context, rawURL string) ([]float32, error) {
	return fetchAndExtract(ctx, e.fetcher, e, rawURL)
}

// histogram returns bins values per RGB channel, each channel summing to 1.
// pix is NRGBA, 4 bytes per pixel.
func (e *StatisticalExtractor) histogram(pix []uint8) []float32 {
	counts := make([]int, e.bins*3)
	for i := 0; i+3 < len(pix); i += 4 {
		for c := 0; c < 3; c++ {
			bin := int(pix[i+c]) * e.bins / 256
			if bin >= e.bins {
				bin = e.bins - 1
			}
			counts[c*e.bins+bin]++
		}
	}

	total := float64(len(pix) / 4)
	out := make([]float32, len(counts))
	for i, n := range counts {
		out[i] = float32(float64(n) / total)
	}
	return out
}

// auxFeatures returns channel means, channel std-devs, brightness quartiles,
// edge density, color range and mean saturation, zero padded to auxLength.
func (e *StatisticalExtractor) auxFeatures(pix []uint8, width, height int) []float32 {
	pixels := width * height
	n := float64(pixels)

	var sum [3]float64
	for i := 0; i < pixels; i++ {
		for c := 0; c < 3; c++ {
			sum[c] += float64(pix[i*4+c])
		}
	}
	var mean [3]float64
	for c := range mean {
		mean[c] = sum[c] / n
	}

	var sq [3]float64
	brightness := make([]float64, pixels)
	satSum := 0.0
	for i := 0; i < pixels; i++ {
		r, g, b := pix[i*4], pix[i*4+1], pix[i*4+2]
		for c, v := range [3]uint8{r, g, b} {
			d := float64(v) - mean[c]
			sq[c] += d * d
		}
		brightness[i] = (float64(r) + float64(g) + float64(b)) / 3

		hi := max(r, g, b)
		lo := min(r, g, b)
		if hi > 0 {
			satSum += float64(hi-lo) / float64(hi)
		}
	}
	sort.Float64s(brightness)

	edgeSum := 0.0
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			idx := (y*width + x) * 4
			right := idx + 4
			down := idx + width*4
			var gx, gy float64
			for c := 0; c < 3; c++ {
				gx += math.Abs(float64(pix[right+c]) - float64(pix[idx+c]))
				gy += math.Abs(float64(pix[down+c]) - float64(pix[idx+c]))
			}
			edgeSum += math.Sqrt(gx*gx + gy*gy)
		}
	}

	features := make([]float64, 0, 12)
	for c := 0; c < 3; c++ {
		features = append(features, mean[c]/255)
	}
	for c := 0; c < 3; c++ {
		features = append(features, math.Sqrt(sq[c]/n)/255)
	}
	for _, q := range []float64{0.25, 0.50, 0.75} {
		features = append(features, brightness[int(math.Floor(n*q))]/255)
	}
	features = append(features, edgeSum/n/255)
	features = append(features, (max(mean[0], mean[1], mean[2])-min(mean[0], mean[1], mean[2]))/255)
	features = append(features, satSum/n)

	out := make([]float32, e.auxLength)
	for i := 0; i < len(features) && i < len(out); i++ {
		out[i] = float32(features[i])
	}
	return out
}

var _ Extractor = (*StatisticalExtractor)(nil)
