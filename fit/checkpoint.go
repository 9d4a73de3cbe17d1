// MODUL: checkpoint
// ZWECK: Schreiben und Lesen von Parameter-Checkpoints (.params) und des
//        Netzwerk-Deskriptors (-symbol.json)
// INPUT: Parameter-Tensoren und Metadaten bzw. Checkpoint-Dateien
// OUTPUT: Checkpoint-Container auf Platte bzw. geladene Tensoren
// NEBENEFFEKTE: Dateisystem-Zugriff
// ABHAENGIGKEITEN: encoding/binary, github.com/x448/float16
// HINWEISE: Container ist little-endian: Magic, Version, KV-Paare, Tensoren;
//           Tensoren optional als float16 gespeichert
package fit

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/memegle/cnocr/crnn"
)

const (
	checkpointMagic   uint32 = 0x434e4350 // "CNCP"
	checkpointVersion uint32 = 1

	dtypeF32 uint32 = 0
	dtypeF16 uint32 = 1
)

var (
	ErrBadCheckpoint = errors.New("checkpoint: bad file")
	ErrBadVersion    = errors.New("checkpoint: unsupported version")
)

// Checkpoint ist der Inhalt einer .params Datei
type Checkpoint struct {
	Meta   map[string]string
	Params map[string][]float32
}

// CheckpointPath baut den Dateinamen fuer eine Epoche: <prefix>-NNNN.params
func CheckpointPath(prefix string, epoch int) string {
	return fmt.Sprintf("%s-%04d.params", prefix, epoch)
}

// SymbolPath baut den Dateinamen des Netzwerk-Deskriptors
func SymbolPath(prefix string) string {
	return prefix + "-symbol.json"
}

// SaveSymbol schreibt den Netzwerk-Deskriptor als JSON
func SaveSymbol(prefix string, net *crnn.Network) error {
	data, err := json.MarshalIndent(net, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(SymbolPath(prefix), data, 0o644)
}

// SaveCheckpoint schreibt einen Checkpoint
// Mit half werden Tensoren als float16 gespeichert (halbe Groesse)
func SaveCheckpoint(path string, ck *Checkpoint, half bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	for _, v := range []uint32{checkpointMagic, checkpointVersion} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// KV-Paare, sortiert fuer deterministische Dateien
	keys := sortedKeys(ck.Meta)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, ck.Meta[k]); err != nil {
			return err
		}
	}

	names := sortedKeys(ck.Params)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeTensor(w, name, ck.Params[name], half); err != nil {
			return err
		}
	}

	return w.Flush()
}

// LoadCheckpoint liest einen Checkpoint
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := bufio.NewReader(f)

	magic, err := read[uint32](r)
	if err != nil {
		return nil, err
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrBadCheckpoint, magic)
	}

	version, err := read[uint32](r)
	if err != nil {
		return nil, err
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	ck := &Checkpoint{
		Meta:   make(map[string]string),
		Params: make(map[string][]float32),
	}

	numKV, err := read[uint32](r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numKV; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		ck.Meta[k] = v
	}

	numTensors, err := read[uint32](r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numTensors; i++ {
		name, values, err := readTensor(r, fi.Size())
		if err != nil {
			return nil, err
		}
		ck.Params[name] = values
	}

	return ck, nil
}

func writeTensor(w io.Writer, name string, values []float32, half bool) error {
	if err := writeString(w, name); err != nil {
		return err
	}

	dtype := dtypeF32
	if half {
		dtype = dtypeF16
	}
	if err := binary.Write(w, binary.LittleEndian, dtype); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(values))); err != nil {
		return err
	}

	if half {
		packed := make([]uint16, len(values))
		for i, v := range values {
			packed[i] = float16.Fromfloat32(v).Bits()
		}
		return binary.Write(w, binary.LittleEndian, packed)
	}

	return binary.Write(w, binary.LittleEndian, values)
}

// readTensor liest einen Tensor; maxBytes ist die Dateigroesse und
// begrenzt die Allokation bei korrupten Laengenfeldern
func readTensor(r io.Reader, maxBytes int64) (string, []float32, error) {
	name, err := readString(r)
	if err != nil {
		return "", nil, err
	}

	dtype, err := read[uint32](r)
	if err != nil {
		return "", nil, err
	}

	length, err := read[uint64](r)
	if err != nil {
		return "", nil, err
	}

	elemSize := uint64(4)
	if dtype == dtypeF16 {
		elemSize = 2
	}
	if length > uint64(maxBytes)/elemSize {
		return "", nil, fmt.Errorf("%w: tensor %q with %d values in %d byte file",
			ErrBadCheckpoint, name, length, maxBytes)
	}

	values := make([]float32, length)
	switch dtype {
	case dtypeF32:
		if err := binary.Read(r, binary.LittleEndian, &values); err != nil {
			return "", nil, err
		}
	case dtypeF16:
		packed := make([]uint16, length)
		if err := binary.Read(r, binary.LittleEndian, &packed); err != nil {
			return "", nil, err
		}
		for i, bits := range packed {
			values[i] = float16.Frombits(bits).Float32()
		}
	default:
		return "", nil, fmt.Errorf("%w: dtype %d", ErrBadCheckpoint, dtype)
	}

	return name, values, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := read[uint32](r)
	if err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// read liest einen typisierten Wert aus dem Reader
func read[T any](r io.Reader) (t T, err error) {
	err = binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
