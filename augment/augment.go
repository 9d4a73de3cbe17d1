// MODUL: augment
// ZWECK: Foto-metrische Bild-Augmentierung fuer den Trainings-Iterator
// INPUT: *image.RGBA Samples und eine Zufallsquelle
// OUTPUT: augmentierte Kopien der Bilder
// NEBENEFFEKTE: keine (Eingabebilder werden nicht veraendert)
// ABHAENGIGKEITEN: gonum.org/v1/gonum/mat fuer Hue- und Lighting-Matrizen
// HINWEISE: Pixelwerte werden in [0,255] geklemmt; Kette nur fuer Training
package augment

import (
	"image"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Graukoeffizienten (ITU-R BT.601)
var grayCoef = [3]float64{0.299, 0.587, 0.114}

// Augmenter transformiert ein Sample vor der Batch-Bildung
type Augmenter interface {
	Name() string
	Apply(src *image.RGBA, rng *rand.Rand) *image.RGBA
}

// Config parametrisiert die Standard-Kette
// Nullwerte schalten den jeweiligen Jitter ab
type Config struct {
	Brightness float64
	Contrast   float64
	Saturation float64
	Hue        float64
	PCANoise   float64
}

// DefaultConfig sind die Trainingswerte des chinesischen OCR-Modells
func DefaultConfig() Config {
	return Config{
		Brightness: 0.001,
		Contrast:   0.001,
		Saturation: 0.001,
		Hue:        0.05,
		PCANoise:   0.1,
	}
}

// CreateAugmenters baut die Augmenter-Kette aus der Config
func CreateAugmenters(cfg Config) []Augmenter {
	var augs []Augmenter

	if cfg.Brightness > 0 || cfg.Contrast > 0 || cfg.Saturation > 0 {
		augs = append(augs, &ColorJitterAug{
			Brightness: cfg.Brightness,
			Contrast:   cfg.Contrast,
			Saturation: cfg.Saturation,
		})
	}
	if cfg.Hue > 0 {
		augs = append(augs, &HueJitterAug{Hue: cfg.Hue})
	}
	if cfg.PCANoise > 0 {
		augs = append(augs, &LightingAug{AlphaStd: cfg.PCANoise})
	}

	return augs
}

// ColorJitterAug wendet Helligkeits-, Kontrast- und Saettigungs-Jitter
// in zufaelliger Reihenfolge an
type ColorJitterAug struct {
	Brightness float64
	Contrast   float64
	Saturation float64
}

func (a *ColorJitterAug) Name() string { return "color_jitter" }

func (a *ColorJitterAug) Apply(src *image.RGBA, rng *rand.Rand) *image.RGBA {
	dst := clone(src)

	type jitter struct {
		scale float64
		apply func(*image.RGBA, *rand.Rand, float64)
	}
	js := []jitter{
		{a.Brightness, brightnessJitter},
		{a.Contrast, contrastJitter},
		{a.Saturation, saturationJitter},
	}

	for _, i := range rng.Perm(len(js)) {
		if js[i].scale > 0 {
			js[i].apply(dst, rng, js[i].scale)
		}
	}

	return dst
}

func brightnessJitter(img *image.RGBA, rng *rand.Rand, scale float64) {
	alpha := 1.0 + uniform(rng, scale)
	eachPixel(img, func(r, g, b float64) (float64, float64, float64) {
		return r * alpha, g * alpha, b * alpha
	})
}

func contrastJitter(img *image.RGBA, rng *rand.Rand, scale float64) {
	alpha := 1.0 + uniform(rng, scale)

	// Mittlerer Grauwert des Bildes
	var sum float64
	var n int
	eachPixel(img, func(r, g, b float64) (float64, float64, float64) {
		sum += grayCoef[0]*r + grayCoef[1]*g + grayCoef[2]*b
		n++
		return r, g, b
	})
	offset := (1.0 - alpha) * sum / float64(n)

	eachPixel(img, func(r, g, b float64) (float64, float64, float64) {
		return r*alpha + offset, g*alpha + offset, b*alpha + offset
	})
}

func saturationJitter(img *image.RGBA, rng *rand.Rand, scale float64) {
	alpha := 1.0 + uniform(rng, scale)
	eachPixel(img, func(r, g, b float64) (float64, float64, float64) {
		gray := (grayCoef[0]*r + grayCoef[1]*g + grayCoef[2]*b) * (1.0 - alpha)
		return r*alpha + gray, g*alpha + gray, b*alpha + gray
	})
}

// HueJitterAug dreht den Farbton ueber die YIQ-Rotationsmatrix
type HueJitterAug struct {
	Hue float64
}

var (
	tyiq = mat.NewDense(3, 3, []float64{
		0.299, 0.587, 0.114,
		0.596, -0.274, -0.321,
		0.211, -0.523, 0.311,
	})
	ityiq = mat.NewDense(3, 3, []float64{
		1.0, 0.9563, 0.6210,
		1.0, -0.2721, -0.6474,
		1.0, -1.107, 1.7046,
	})
)

func (a *HueJitterAug) Name() string { return "hue" }

func (a *HueJitterAug) Apply(src *image.RGBA, rng *rand.Rand) *image.RGBA {
	alpha := uniform(rng, a.Hue)
	u := math.Cos(alpha * math.Pi)
	w := math.Sin(alpha * math.Pi)

	bt := mat.NewDense(3, 3, []float64{
		1.0, 0.0, 0.0,
		0.0, u, -w,
		0.0, w, u,
	})

	var t mat.Dense
	t.Mul(ityiq, bt)
	t.Mul(&t, tyiq)

	dst := clone(src)
	var px, out mat.VecDense
	px.ReuseAsVec(3)
	eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
		px.SetVec(0, r)
		px.SetVec(1, g)
		px.SetVec(2, b)
		out.MulVec(&t, &px)
		return out.AtVec(0), out.AtVec(1), out.AtVec(2)
	})

	return dst
}

// LightingAug addiert PCA-Rauschen in der ImageNet-Eigenbasis
type LightingAug struct {
	AlphaStd float64
}

var (
	eigval = mat.NewVecDense(3, []float64{55.46, 4.794, 1.148})
	eigvec = mat.NewDense(3, 3, []float64{
		-0.5675, 0.7192, 0.4009,
		-0.5808, -0.0045, -0.8140,
		-0.5836, -0.6948, 0.4203,
	})
)

func (a *LightingAug) Name() string { return "lighting" }

func (a *LightingAug) Apply(src *image.RGBA, rng *rand.Rand) *image.RGBA {
	scaled := mat.NewVecDense(3, []float64{
		rng.NormFloat64() * a.AlphaStd * eigval.AtVec(0),
		rng.NormFloat64() * a.AlphaStd * eigval.AtVec(1),
		rng.NormFloat64() * a.AlphaStd * eigval.AtVec(2),
	})

	var rgb mat.VecDense
	rgb.MulVec(eigvec, scaled)

	dst := clone(src)
	eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
		return r + rgb.AtVec(0), g + rgb.AtVec(1), b + rgb.AtVec(2)
	})

	return dst
}

// FgBgFlipAug invertiert Vorder- und Hintergrund mit Wahrscheinlichkeit P
// Gedruckter Text ist mal dunkel auf hell, mal hell auf dunkel
type FgBgFlipAug struct {
	P float64
}

func (a *FgBgFlipAug) Name() string { return "fg_bg_flip" }

func (a *FgBgFlipAug) Apply(src *image.RGBA, rng *rand.Rand) *image.RGBA {
	if rng.Float64() >= a.P {
		return src
	}

	dst := clone(src)
	eachPixel(dst, func(r, g, b float64) (float64, float64, float64) {
		return 255 - r, 255 - g, 255 - b
	})

	return dst
}

// uniform zieht aus [-scale, scale)
func uniform(rng *rand.Rand, scale float64) float64 {
	return (rng.Float64()*2 - 1) * scale
}

func clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// eachPixel wendet fn auf jeden RGB-Pixel an und klemmt auf [0,255]
// Der Alpha-Kanal bleibt unveraendert
func eachPixel(img *image.RGBA, fn func(r, g, b float64) (float64, float64, float64)) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b := fn(float64(pix[i]), float64(pix[i+1]), float64(pix[i+2]))
		pix[i] = clamp(r)
		pix[i+1] = clamp(g)
		pix[i+2] = clamp(b)
	}
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
