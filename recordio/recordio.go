// MODUL: recordio
// ZWECK: Lesen und Schreiben von RecordIO-Dateien (.rec)
// INPUT: io.ReadSeeker bzw. io.Writer mit gepackten Records
// OUTPUT: rohe Record-Payloads
// NEBENEFFEKTE: Datei-I/O ueber die uebergebenen Reader/Writer
// ABHAENGIGKEITEN: encoding/binary (little-endian)
// HINWEISE: Records sind 4-Byte-aligned; Magic pro Record ist 0xced7230a
package recordio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic steht vor jedem Record
	Magic uint32 = 0xced7230a

	// lrecord: obere 3 Bits Continuation-Flag, untere 29 Bits Laenge
	lengthBits = 29
	lengthMask = (1 << lengthBits) - 1
)

var (
	ErrBadMagic    = errors.New("recordio: bad record magic")
	ErrUnsupported = errors.New("recordio: unsupported")
)

// Reader liest Records sequentiell oder per Offset
type Reader struct {
	r io.ReadSeeker
}

// NewReader erstellt einen Reader ueber einem ReadSeeker
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{r: r}
}

// Next liest den naechsten Record
// Gibt io.EOF zurueck, wenn keine Records mehr vorhanden sind
func (r *Reader) Next() ([]byte, error) {
	magic, err := read[uint32](r.r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}

	lrecord, err := read[uint32](r.r)
	if err != nil {
		return nil, err
	}

	cflag := lrecord >> lengthBits
	if cflag != 0 {
		// Mehrteilige Records schreibt der eigene Writer nie
		return nil, fmt.Errorf("%w: continuation flag %d", ErrUnsupported, cflag)
	}

	length := lrecord & lengthMask
	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, err
	}

	// Padding bis zur 4-Byte-Grenze ueberspringen
	if pad := padding(int(length)); pad > 0 {
		if _, err := r.r.Seek(int64(pad), io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// ReadAt liest den Record am gegebenen Byte-Offset
func (r *Reader) ReadAt(offset int64) ([]byte, error) {
	if _, err := r.r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return r.Next()
}

// Writer schreibt Records und merkt sich den aktuellen Offset
type Writer struct {
	w      *bufio.Writer
	offset int64
}

// NewWriter erstellt einen Writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write schreibt einen Record und gibt dessen Start-Offset zurueck
func (w *Writer) Write(data []byte) (int64, error) {
	if len(data) > lengthMask {
		return 0, fmt.Errorf("%w: record of %d bytes", ErrUnsupported, len(data))
	}

	start := w.offset

	if err := binary.Write(w.w, binary.LittleEndian, Magic); err != nil {
		return 0, err
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint32(len(data))); err != nil {
		return 0, err
	}
	if _, err := w.w.Write(data); err != nil {
		return 0, err
	}

	pad := padding(len(data))
	if pad > 0 {
		if _, err := w.w.Write(make([]byte, pad)); err != nil {
			return 0, err
		}
	}

	w.offset += int64(8 + len(data) + pad)
	return start, nil
}

// Flush schreibt gepufferte Daten raus
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Tell gibt den Offset des naechsten Records zurueck
func (w *Writer) Tell() int64 {
	return w.offset
}

func padding(n int) int {
	return (4 - n%4) % 4
}

// read liest einen typisierten Wert little-endian
func read[T any](r io.Reader) (t T, err error) {
	err = binary.Read(r, binary.LittleEndian, &t)
	return t, err
}
