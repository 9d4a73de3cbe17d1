// MODUL: iter_test
// ZWECK: Tests fuer den Batch-Iterator
// INPUT: synthetisch gepackte .rec/.idx Paare in Temp-Verzeichnissen
// OUTPUT: Testresultate
// NEBENEFFEKTE: Temp-Dateien via t.TempDir
// ABHAENGIGKEITEN: testing, image/png, recordio, augment
// HINWEISE: Bilder sind einfarbige PNGs, Grauwerte damit exakt pruefbar
package dataset

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/memegle/cnocr/augment"
	"github.com/memegle/cnocr/recordio"
)

// writeRecPair packt n einfarbige Bilder mit Labels [i, i+1, i+2]
func writeRecPair(t *testing.T, dir string, n int, gray uint8) (string, string) {
	t.Helper()

	recPath := filepath.Join(dir, "data.rec")
	idxPath := filepath.Join(dir, "data.idx")

	f, err := os.Create(recPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := recordio.NewWriter(f)
	var entries []recordio.IndexEntry
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 8, 4))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = gray
			img.Pix[p+1] = gray
			img.Pix[p+2] = gray
			img.Pix[p+3] = 255
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}

		labels := []float32{float32(i), float32(i + 1), float32(i + 2)}
		payload, err := recordio.Pack(uint64(i), labels, buf.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		off, err := w.Write(payload)
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, recordio.IndexEntry{ID: uint64(i), Offset: off})
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := recordio.WriteIndex(idxPath, entries); err != nil {
		t.Fatal(err)
	}

	return recPath, idxPath
}

func TestImageIterBatches(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 7, 255)

	it, err := NewImageIter(rec, idx, Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: 5,
	})
	if err != nil {
		t.Fatalf("NewImageIter() error = %v", err)
	}
	defer it.Close()

	if it.NumSamples() != 7 {
		t.Errorf("NumSamples() = %d, erwartet 7", it.NumSamples())
	}
	if it.BatchesPerEpoch() != 3 {
		t.Errorf("BatchesPerEpoch() = %d, erwartet 3 (Rest verworfen)", it.BatchesPerEpoch())
	}

	var batches int
	for {
		b, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		batches++

		if b.Size != 2 || b.Height != 4 || b.Width != 8 {
			t.Fatalf("Batch-Form = %d x %dx%d, erwartet 2 x 4x8", b.Size, b.Height, b.Width)
		}
		if len(b.Data) != 2*4*8 {
			t.Fatalf("len(Data) = %d, erwartet %d", len(b.Data), 2*4*8)
		}
		if len(b.Label) != 2*5 {
			t.Fatalf("len(Label) = %d, erwartet %d", len(b.Label), 2*5)
		}

		// Weisses Bild: alle Grauwerte 1.0
		for i, v := range b.Data {
			if v < 0.99 || v > 1.01 {
				t.Fatalf("Data[%d] = %g, erwartet ~1.0", i, v)
			}
		}
	}

	if batches != 3 {
		t.Errorf("Batches = %d, erwartet 3", batches)
	}
}

func TestImageIterLabelPadding(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 2, 0)

	it, err := NewImageIter(rec, idx, Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	b, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}

	// Sample 0 hat Labels [0,1,2], auf Breite 5 mit Blank (0) gepolstert
	want := []int32{0, 1, 2, 0, 0}
	for j, w := range want {
		if b.Label[j] != w {
			t.Errorf("Label[%d] = %d, erwartet %d", j, b.Label[j], w)
		}
	}
}

func TestImageIterLabelTruncation(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 2, 0)

	it, err := NewImageIter(rec, idx, Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	b, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Label) != 4 {
		t.Fatalf("len(Label) = %d, erwartet 4", len(b.Label))
	}
	// Sample 1 hat Labels [1,2,3] -> abgeschnitten auf [1,2]
	if b.Label[2] != 1 || b.Label[3] != 2 {
		t.Errorf("Labels Sample 1 = %v, erwartet [1 2]", b.Label[2:4])
	}
}

func TestImageIterResetAndEOF(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 4, 128)

	it, err := NewImageIter(rec, idx, Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	for i := 0; i < 2; i++ {
		if _, err := it.Next(); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
	}
	if _, err := it.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next() am Epochenende error = %v, erwartet io.EOF", err)
	}

	it.Reset()
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next() nach Reset error = %v", err)
	}
}

func TestImageIterShuffleDeterministic(t *testing.T) {
	dir := t.TempDir()
	rec, idx := writeRecPair(t, dir, 6, 200)

	labelsOf := func(seed int64, shuffle bool) []int32 {
		it, err := NewImageIter(rec, idx, Config{
			BatchSize:  6,
			Height:     4,
			Width:      8,
			LabelWidth: 1,
			Shuffle:    shuffle,
			Seed:       seed,
		})
		if err != nil {
			t.Fatal(err)
		}
		defer it.Close()

		b, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		return append([]int32(nil), b.Label...)
	}

	a := labelsOf(5, true)
	b := labelsOf(5, true)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("gleiche Seed, verschiedene Reihenfolge: %v vs %v", a, b)
		}
	}

	plain := labelsOf(0, false)
	for i := range plain {
		if plain[i] != int32(i) {
			t.Fatalf("ohne Shuffle erwartet Index-Reihenfolge, got %v", plain)
		}
	}
}

func TestImageIterAugmenters(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 2, 100)

	augs := append(augment.CreateAugmenters(augment.DefaultConfig()), &augment.FgBgFlipAug{P: 0.2})
	it, err := NewImageIter(rec, idx, Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: 3,
		Augmenters: augs,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	if len(it.Augmenters()) != 4 {
		t.Errorf("Augmenters() = %d Eintraege, erwartet 4", len(it.Augmenters()))
	}
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next() mit Augmentern error = %v", err)
	}
}

func TestNewImageIterBadConfig(t *testing.T) {
	rec, idx := writeRecPair(t, t.TempDir(), 1, 0)

	if _, err := NewImageIter(rec, idx, Config{}); !errors.Is(err, ErrBadConfig) {
		t.Errorf("NewImageIter() error = %v, erwartet ErrBadConfig", err)
	}
}
