// MODUL: metrics
// ZWECK: CTC-Dekodierung (Best-Path) und Genauigkeits-Metriken
// INPUT: Label-Batches und Frame-Wahrscheinlichkeiten des Netzes
// OUTPUT: Sequenz- und Zeichen-Genauigkeit
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/agnivade/levenshtein fuer die Zeichen-Metrik
// HINWEISE: Klasse 0 ist das Blank-Label; Wiederholungen werden kollabiert
package ctc

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agnivade/levenshtein"
)

var ErrBadShape = errors.New("ctc: prediction shape mismatch")

// Metrics sammelt Genauigkeiten ueber Batches hinweg
// Entspricht CtcMetrics(seq_length) des Python-Trainers
type Metrics struct {
	seqLen int

	seqCorrect int
	seqTotal   int

	editDistance int
	charTotal    int
}

// NewMetrics erstellt Metriken fuer die gegebene Sequenzlaenge
func NewMetrics(seqLen int) *Metrics {
	return &Metrics{seqLen: seqLen}
}

// BestPath dekodiert Frame-Wahrscheinlichkeiten eines Samples
// probs hat Layout [seqLen * numClasses]; Ergebnis ist die kollabierte
// Label-Folge ohne Blanks
func BestPath(probs []float32, seqLen, numClasses int) ([]int32, error) {
	if len(probs) != seqLen*numClasses {
		return nil, fmt.Errorf("%w: %d Werte fuer %dx%d", ErrBadShape, len(probs), seqLen, numClasses)
	}

	raw := make([]int32, seqLen)
	for t := 0; t < seqLen; t++ {
		frame := probs[t*numClasses : (t+1)*numClasses]
		best := 0
		for c := 1; c < numClasses; c++ {
			if frame[c] > frame[best] {
				best = c
			}
		}
		raw[t] = int32(best)
	}

	return Collapse(raw), nil
}

// Collapse entfernt Wiederholungen und Blanks aus einer rohen Frame-Folge
func Collapse(raw []int32) []int32 {
	out := make([]int32, 0, len(raw))
	var prev int32
	for _, c := range raw {
		if c != 0 && c != prev {
			out = append(out, c)
		}
		prev = c
	}
	return out
}

// Update verrechnet einen Batch
// labels hat Layout [n * labelWidth] (mit Blank 0 gepolstert), probs
// [n * seqLen * numClasses]
func (m *Metrics) Update(labels []int32, labelWidth int, probs []float32, numClasses int) error {
	if labelWidth <= 0 || len(labels)%labelWidth != 0 {
		return fmt.Errorf("%w: %d Labels bei Breite %d", ErrBadShape, len(labels), labelWidth)
	}
	n := len(labels) / labelWidth
	if len(probs) != n*m.seqLen*numClasses {
		return fmt.Errorf("%w: %d Werte fuer %d Samples", ErrBadShape, len(probs), n)
	}

	frameSize := m.seqLen * numClasses
	for i := 0; i < n; i++ {
		want := trimBlanks(labels[i*labelWidth : (i+1)*labelWidth])
		got, err := BestPath(probs[i*frameSize:(i+1)*frameSize], m.seqLen, numClasses)
		if err != nil {
			return err
		}

		m.seqTotal++
		if slices.Equal(want, got) {
			m.seqCorrect++
		}

		m.editDistance += levenshtein.ComputeDistance(labelString(want), labelString(got))
		m.charTotal += len(want)
	}

	return nil
}

// Reset setzt alle Zaehler zurueck (Epochenwechsel)
func (m *Metrics) Reset() {
	m.seqCorrect = 0
	m.seqTotal = 0
	m.editDistance = 0
	m.charTotal = 0
}

// Accuracy ist der Anteil exakt getroffener Sequenzen
func (m *Metrics) Accuracy() float64 {
	if m.seqTotal == 0 {
		return 0
	}
	return float64(m.seqCorrect) / float64(m.seqTotal)
}

// CharAccuracy ist 1 - normalisierte Levenshtein-Distanz
func (m *Metrics) CharAccuracy() float64 {
	if m.charTotal == 0 {
		return 0
	}
	acc := 1 - float64(m.editDistance)/float64(m.charTotal)
	if acc < 0 {
		return 0
	}
	return acc
}

// Values gibt beide Metriken fuer das Logging zurueck
func (m *Metrics) Values() map[string]float64 {
	return map[string]float64{
		"accuracy":      m.Accuracy(),
		"char_accuracy": m.CharAccuracy(),
	}
}

// trimBlanks schneidet das Blank-Padding am Ende ab
func trimBlanks(labels []int32) []int32 {
	end := len(labels)
	for end > 0 && labels[end-1] == 0 {
		end--
	}
	return labels[:end]
}

// labelString kodiert eine Label-Folge als String fuer die Distanzrechnung
// Offset haelt den Wertebereich ausserhalb der Surrogate
func labelString(labels []int32) string {
	runes := make([]rune, len(labels))
	for i, l := range labels {
		runes[i] = rune(l + 1)
	}
	return string(runes)
}
