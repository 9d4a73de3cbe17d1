// fit_test.go - Tests fuer Trainingsschleife, Checkpoints und Executor-Registry
package fit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/ctc"
	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/hyperparams"
	"github.com/memegle/cnocr/recordio"
)

// stubExecutor sagt immer die Label des letzten Batches korrekt vorher
type stubExecutor struct {
	bound    *crnn.Network
	hp       hyperparams.Hyperparams
	forwards int
	steps    int
	params   map[string][]float32
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{params: map[string][]float32{
		"conv1_weight": {0.5, -0.5, 1.25},
		"pred_bias":    {0.125},
	}}
}

func (e *stubExecutor) Bind(net *crnn.Network, hp hyperparams.Hyperparams) error {
	e.bound = net
	e.hp = hp
	return nil
}

func (e *stubExecutor) Forward(batch *dataset.Batch) ([]float32, error) {
	e.forwards++

	// Perfekte Vorhersage: Frame t traegt Label t, Rest Blanks
	probs := make([]float32, batch.Size*e.hp.SeqLength*e.hp.NumClasses)
	for i := 0; i < batch.Size; i++ {
		labels := batch.Label[i*e.hp.NumLabel : (i+1)*e.hp.NumLabel]
		for t, c := range labels {
			base := (i*e.hp.SeqLength + t) * e.hp.NumClasses
			probs[base+int(c)] = 1.0
		}
		for t := len(labels); t < e.hp.SeqLength; t++ {
			probs[(i*e.hp.SeqLength+t)*e.hp.NumClasses] = 1.0
		}
	}
	return probs, nil
}

func (e *stubExecutor) Backward() error { return nil }

func (e *stubExecutor) Step() error {
	e.steps++
	return nil
}

func (e *stubExecutor) Params() map[string][]float32 { return e.params }

func (e *stubExecutor) SetParams(params map[string][]float32) error {
	e.params = params
	return nil
}

// writeIterPair packt n weisse 8x4 Bilder mit Label [1 2]
func writeIterPair(t *testing.T, dir, name string, n int) *dataset.ImageIter {
	t.Helper()

	recPath := filepath.Join(dir, name+".rec")
	idxPath := filepath.Join(dir, name+".idx")

	f, err := os.Create(recPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for p := 0; p < len(img.Pix); p++ {
		img.Pix[p] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	w := recordio.NewWriter(f)
	var entries []recordio.IndexEntry
	for i := 0; i < n; i++ {
		payload, err := recordio.Pack(uint64(i), []float32{1, 2}, buf.Bytes())
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

	it, err := dataset.NewImageIter(recPath, idxPath, dataset.Config{
		BatchSize:  2,
		Height:     4,
		Width:      8,
		LabelWidth: hyperparams.DefaultNumLabel,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { it.Close() })

	return it
}

func testParams(t *testing.T, dir string, hp hyperparams.Hyperparams, exec Executor) Params {
	t.Helper()

	net, hp, err := crnn.GenNetwork("conv-fc", hp)
	if err != nil {
		t.Fatal(err)
	}

	return Params{
		Network:  net,
		Hyper:    hp,
		Train:    writeIterPair(t, dir, "train", 4),
		Val:      writeIterPair(t, dir, "val", 2),
		Metrics:  ctc.NewMetrics(hp.SeqLength),
		Executor: exec,
		Prefix:   filepath.Join(dir, "cnocr-v1.2.0-conv-fc"),
	}
}

func testHyperparams(t *testing.T, epochs int) hyperparams.Hyperparams {
	t.Helper()

	opts := hyperparams.DefaultOptions()
	opts.SeqModelType = "fc"
	opts.BatchSize = 2
	opts.NumEpoch = epochs

	hp, err := hyperparams.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return hp
}

func TestFitRunsEpochs(t *testing.T) {
	dir := t.TempDir()
	exec := newStubExecutor()
	hp := testHyperparams(t, 2)

	p := testParams(t, dir, hp, exec)
	if err := Fit(context.Background(), p); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// 2 Epochen x (2 Train-Batches + 1 Val-Batch)
	if exec.forwards != 6 {
		t.Errorf("Forward-Aufrufe = %d, erwartet 6", exec.forwards)
	}
	// Optimizer-Schritte nur fuer Train-Batches
	if exec.steps != 4 {
		t.Errorf("Step-Aufrufe = %d, erwartet 4", exec.steps)
	}

	for epoch := 1; epoch <= 2; epoch++ {
		if _, err := os.Stat(CheckpointPath(p.Prefix, epoch)); err != nil {
			t.Errorf("Checkpoint Epoche %d fehlt: %v", epoch, err)
		}
	}
	if _, err := os.Stat(SymbolPath(p.Prefix)); err != nil {
		t.Errorf("Symbol-Datei fehlt: %v", err)
	}
}

func TestFitResume(t *testing.T) {
	dir := t.TempDir()
	exec := newStubExecutor()
	hp := testHyperparams(t, 1)

	p := testParams(t, dir, hp, exec)
	if err := Fit(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	// Zweiter Lauf setzt bei Epoche 1 auf und trainiert bis 3
	exec2 := newStubExecutor()
	exec2.params = map[string][]float32{}
	hp2 := p.Hyper
	hp2.NumEpoch = 3
	hp2.LoadEpoch = 1

	p2 := p
	p2.Hyper = hp2
	p2.Executor = exec2
	if err := Fit(context.Background(), p2); err != nil {
		t.Fatalf("Fit() mit Resume error = %v", err)
	}

	// Parameter aus dem Checkpoint von Lauf 1 uebernommen
	if got := exec2.params["pred_bias"]; len(got) != 1 || got[0] != 0.125 {
		t.Errorf("geladene Parameter = %v, erwartet [0.125]", got)
	}

	for epoch := 2; epoch <= 3; epoch++ {
		if _, err := os.Stat(CheckpointPath(p.Prefix, epoch)); err != nil {
			t.Errorf("Checkpoint Epoche %d fehlt: %v", epoch, err)
		}
	}
}

func TestFitResumeMissingCheckpoint(t *testing.T) {
	dir := t.TempDir()
	hp := testHyperparams(t, 2)
	hp.LoadEpoch = 7

	p := testParams(t, dir, hp, newStubExecutor())
	if err := Fit(context.Background(), p); err == nil {
		t.Error("Fit() mit fehlendem Resume-Checkpoint erwartet Fehler")
	}
}

func TestFitCancelled(t *testing.T) {
	dir := t.TempDir()
	hp := testHyperparams(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testParams(t, dir, hp, newStubExecutor())
	if err := Fit(ctx, p); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() error = %v, erwartet context.Canceled", err)
	}
}

func TestFitValidate(t *testing.T) {
	if err := Fit(context.Background(), Params{}); !errors.Is(err, ErrMissingParam) {
		t.Errorf("Fit() ohne Params error = %v, erwartet ErrMissingParam", err)
	}
}

func TestCheckpointRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.params")

	want := &Checkpoint{
		Meta:   map[string]string{"model": "conv-fc", "epoch": "3"},
		Params: map[string][]float32{"w": {1.5, -2.25, 0}, "b": {0.0625}},
	}

	if err := SaveCheckpoint(path, want, false); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}

	if got.Meta["model"] != "conv-fc" || got.Meta["epoch"] != "3" {
		t.Errorf("Meta = %v", got.Meta)
	}
	for name, values := range want.Params {
		gv := got.Params[name]
		if len(gv) != len(values) {
			t.Fatalf("Tensor %s: Laenge %d, erwartet %d", name, len(gv), len(values))
		}
		for i := range values {
			if gv[i] != values[i] {
				t.Errorf("Tensor %s[%d] = %g, erwartet %g", name, i, gv[i], values[i])
			}
		}
	}
}

func TestCheckpointHalfPrecision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "half.params")

	want := &Checkpoint{
		Meta:   map[string]string{},
		Params: map[string][]float32{"w": {1.0, -0.5, 3.14159}},
	}

	if err := SaveCheckpoint(path, want, true); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range want.Params["w"] {
		if diff := math.Abs(float64(got.Params["w"][i] - v)); diff > 0.01 {
			t.Errorf("float16 Tensor w[%d] = %g, erwartet ~%g", i, got.Params["w"][i], v)
		}
	}

	// float16-Datei ist kleiner als die float32-Variante
	full := filepath.Join(dir, "full.params")
	if err := SaveCheckpoint(full, want, false); err != nil {
		t.Fatal(err)
	}
	halfInfo, _ := os.Stat(path)
	fullInfo, _ := os.Stat(full)
	if halfInfo.Size() >= fullInfo.Size() {
		t.Errorf("float16-Datei (%d) nicht kleiner als float32 (%d)", halfInfo.Size(), fullInfo.Size())
	}
}

func TestLoadCheckpointBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.params")
	os.WriteFile(path, []byte("keine checkpoint datei"), 0o644)

	if _, err := LoadCheckpoint(path); !errors.Is(err, ErrBadCheckpoint) {
		t.Errorf("LoadCheckpoint() error = %v, erwartet ErrBadCheckpoint", err)
	}
}

// Ein korruptes Laengenfeld darf keine Riesen-Allokation ausloesen
func TestLoadCheckpointHugeTensorLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.params")

	var buf bytes.Buffer
	for _, v := range []uint32{checkpointMagic, checkpointVersion, 0, 1} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	// Tensor "w" mit absurder Laenge und ohne Daten dahinter
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	buf.WriteString("w")
	binary.Write(&buf, binary.LittleEndian, dtypeF32)
	binary.Write(&buf, binary.LittleEndian, uint64(1)<<40)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCheckpoint(path); !errors.Is(err, ErrBadCheckpoint) {
		t.Errorf("LoadCheckpoint() error = %v, erwartet ErrBadCheckpoint", err)
	}
}

func TestExecutorRegistry(t *testing.T) {
	RegisterExecutor("stub-test", func() (Executor, error) {
		return newStubExecutor(), nil
	})

	exec, err := NewExecutor("stub-test")
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if exec == nil {
		t.Fatal("NewExecutor() = nil")
	}

	if _, err := NewExecutor("gibt-es-nicht"); err == nil {
		t.Error("NewExecutor() mit unbekanntem Namen erwartet Fehler")
	}

	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung muss panicen")
		}
	}()
	RegisterExecutor("stub-test", func() (Executor, error) { return nil, nil })
}
