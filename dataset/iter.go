// MODUL: iter
// ZWECK: Streaming Batch-Iterator ueber ein .rec/.idx Paar (Graubilder + Labels)
// INPUT: RecordIO-Dateipaar, Batch-Konfiguration, optionale Augmenter-Kette
// OUTPUT: Batches aus float32 Graubildern [n,1,h,w] und int32 Labels [n,label width]
// NEBENEFFEKTE: Datei-Lesezugriff ueber recordio.IndexedReader
// ABHAENGIGKEITEN: recordio, augment
// HINWEISE: Der letzte unvollstaendige Batch wird verworfen; Shuffle mischt
//           die Index-Reihenfolge bei Konstruktion und jedem Reset neu
package dataset

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/memegle/cnocr/augment"
	"github.com/memegle/cnocr/recordio"
)

var ErrBadConfig = errors.New("dataset: invalid iterator config")

// Batch ist ein Trainings- oder Validierungs-Batch
type Batch struct {
	Data   []float32 // [Size * 1 * Height * Width]
	Label  []int32   // [Size * LabelWidth]
	Size   int
	Height int
	Width  int
}

// Config parametrisiert einen ImageIter
type Config struct {
	BatchSize  int
	Height     int
	Width      int
	LabelWidth int
	Shuffle    bool
	Augmenters []augment.Augmenter
	Seed       int64
}

// ImageIter liefert Batches aus einem RecordIO-Paar
type ImageIter struct {
	ir    *recordio.IndexedReader
	cfg   Config
	rng   *rand.Rand
	order []int
	pos   int
}

// NewImageIter oeffnet ein .rec/.idx Paar als Batch-Quelle
func NewImageIter(recPath, idxPath string, cfg Config) (*ImageIter, error) {
	if cfg.BatchSize <= 0 || cfg.Height <= 0 || cfg.Width <= 0 || cfg.LabelWidth <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrBadConfig, cfg)
	}

	ir, err := recordio.OpenIndexed(recPath, idxPath)
	if err != nil {
		return nil, err
	}

	it := &ImageIter{
		ir:    ir,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		order: make([]int, ir.Len()),
	}
	for i := range it.order {
		it.order[i] = i
	}
	if cfg.Shuffle {
		it.shuffle()
	}

	return it, nil
}

// NumSamples gibt die Anzahl der Samples im Datensatz zurueck
func (it *ImageIter) NumSamples() int {
	return it.ir.Len()
}

// BatchesPerEpoch gibt die Anzahl vollstaendiger Batches pro Epoche zurueck
func (it *ImageIter) BatchesPerEpoch() int {
	return it.ir.Len() / it.cfg.BatchSize
}

// Augmenters gibt die konfigurierte Augmenter-Kette zurueck
func (it *ImageIter) Augmenters() []augment.Augmenter {
	return it.cfg.Augmenters
}

// Next liest den naechsten Batch
// Gibt io.EOF am Epochenende zurueck; danach Reset aufrufen
func (it *ImageIter) Next() (*Batch, error) {
	n := it.cfg.BatchSize
	if it.pos+n > len(it.order) {
		return nil, io.EOF
	}

	imgSize := it.cfg.Height * it.cfg.Width
	batch := &Batch{
		Data:   make([]float32, n*imgSize),
		Label:  make([]int32, n*it.cfg.LabelWidth),
		Size:   n,
		Height: it.cfg.Height,
		Width:  it.cfg.Width,
	}

	for i := 0; i < n; i++ {
		payload, err := it.ir.At(it.order[it.pos+i])
		if err != nil {
			return nil, err
		}

		_, labels, encoded, err := recordio.Unpack(payload)
		if err != nil {
			return nil, err
		}

		img, err := DecodeRGBA(encoded)
		if err != nil {
			return nil, err
		}

		for _, aug := range it.cfg.Augmenters {
			img = aug.Apply(img, it.rng)
		}

		img, err = Resize(img, it.cfg.Width, it.cfg.Height)
		if err != nil {
			return nil, err
		}

		GrayValues(img, batch.Data[i*imgSize:(i+1)*imgSize])

		// Labels auf feste Breite bringen; 0 ist das Blank-Label
		dst := batch.Label[i*it.cfg.LabelWidth : (i+1)*it.cfg.LabelWidth]
		for j := range dst {
			if j < len(labels) {
				dst[j] = int32(labels[j])
			} else {
				dst[j] = 0
			}
		}
	}

	it.pos += n
	return batch, nil
}

// Reset beginnt eine neue Epoche
func (it *ImageIter) Reset() {
	it.pos = 0
	if it.cfg.Shuffle {
		it.shuffle()
	}
}

// Close schliesst die zugrundeliegenden Dateien
func (it *ImageIter) Close() error {
	return it.ir.Close()
}

func (it *ImageIter) shuffle() {
	it.rng.Shuffle(len(it.order), func(i, j int) {
		it.order[i], it.order[j] = it.order[j], it.order[i]
	})
}
