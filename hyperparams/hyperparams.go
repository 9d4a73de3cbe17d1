// hyperparams.go - Hyperparameter fuer das CRNN-Training
//
// Dieses Modul enthaelt:
// - Hyperparams: vollstaendig aufgeloester, unveraenderlicher Parametersatz
// - Options: die per CLI setzbare Teilmenge, Defaults via DefaultOptions
// - New: baut aus Options einen validierten Hyperparams-Wert in einem Schritt
//
// Die Aufloesung passiert genau einmal vor der Iterator-Konstruktion;
// danach wird der Wert nur noch gelesen.
package hyperparams

import (
	"errors"
	"fmt"
)

// Defaults fuer das chinesische OCR-Modell (Graubild 32x280, 20 Labels)
const (
	DefaultImgHeight    = 32
	DefaultImgWidth     = 280
	DefaultNumLabel     = 20
	DefaultNumClasses   = 6426
	DefaultBatchSize    = 128
	DefaultNumEpoch     = 20
	DefaultLearningRate = 0.001
	DefaultDropout      = 0.5
	DefaultOptimizer    = "Adam"
)

var (
	ErrBadBatchSize = errors.New("batch size must be positive")
	ErrBadEpoch     = errors.New("epoch count must be positive")
	ErrBadLR        = errors.New("learning rate must be positive")
	ErrBadDropout   = errors.New("dropout must be in [0, 1)")
	ErrBadOptimizer = errors.New("optimizer must not be empty")
)

// Hyperparams ist der aufgeloeste Parametersatz eines Trainingslaufs.
// Wird als Wert (nicht Pointer) gereicht und nach New nicht mehr veraendert.
type Hyperparams struct {
	SeqModelType string

	// SeqLength wird von der Netzwerk-Konstruktion anhand des
	// Embedding-Modells gesetzt (siehe crnn.GenNetwork)
	SeqLength int

	ImgHeight  int
	ImgWidth   int
	NumLabel   int
	NumClasses int

	BatchSize    int
	NumEpoch     int
	LoadEpoch    int // 0 = kein Resume
	LearningRate float64
	Dropout      float64
	WeightDecay  float64
	ClipGradient float64 // <= 0 = kein Gradient-Clipping
	Optimizer    string
	Devices      int // Anzahl GPUs, 0 = CPU
}

// Options ist die per Kommandozeile setzbare Teilmenge der Hyperparameter.
// Die Werte gehen unveraendert in New ein; Defaults setzt DefaultOptions
// bzw. die Flag-Definitionen der CLI. Eine explizite 0 (etwa Dropout 0)
// bleibt damit eine 0.
type Options struct {
	SeqModelType string
	BatchSize    int
	NumEpoch     int
	LoadEpoch    int
	LearningRate float64
	Dropout      float64
	WeightDecay  float64
	ClipGradient float64
	Optimizer    string
	Devices      int
}

// DefaultOptions sind die Trainings-Defaults als Options-Wert
func DefaultOptions() Options {
	return Options{
		BatchSize:    DefaultBatchSize,
		NumEpoch:     DefaultNumEpoch,
		LearningRate: DefaultLearningRate,
		Dropout:      DefaultDropout,
		Optimizer:    DefaultOptimizer,
	}
}

// New baut einen vollstaendig aufgeloesten Hyperparams-Wert.
// Es findet keine Default-Substitution statt; ungueltige Werte
// (auch unbefuellte Felder) schlagen in der Validierung fehl.
func New(o Options) (Hyperparams, error) {
	hp := Hyperparams{
		SeqModelType: o.SeqModelType,
		ImgHeight:    DefaultImgHeight,
		ImgWidth:     DefaultImgWidth,
		NumLabel:     DefaultNumLabel,
		NumClasses:   DefaultNumClasses,
		BatchSize:    o.BatchSize,
		NumEpoch:     o.NumEpoch,
		LoadEpoch:    o.LoadEpoch,
		LearningRate: o.LearningRate,
		Dropout:      o.Dropout,
		WeightDecay:  o.WeightDecay,
		ClipGradient: o.ClipGradient,
		Optimizer:    o.Optimizer,
		Devices:      o.Devices,
	}

	if err := hp.validate(); err != nil {
		return Hyperparams{}, err
	}
	return hp, nil
}

func (hp Hyperparams) validate() error {
	if hp.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrBadBatchSize, hp.BatchSize)
	}
	if hp.NumEpoch <= 0 {
		return fmt.Errorf("%w: %d", ErrBadEpoch, hp.NumEpoch)
	}
	if hp.LearningRate <= 0 {
		return fmt.Errorf("%w: %g", ErrBadLR, hp.LearningRate)
	}
	if hp.Dropout < 0 || hp.Dropout >= 1 {
		return fmt.Errorf("%w: %g", ErrBadDropout, hp.Dropout)
	}
	if hp.Optimizer == "" {
		return ErrBadOptimizer
	}
	return nil
}

// WithSeqLength gibt eine Kopie mit gesetzter Sequenzlaenge zurueck
func (hp Hyperparams) WithSeqLength(n int) Hyperparams {
	hp.SeqLength = n
	return hp
}
