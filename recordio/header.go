// MODUL: header
// ZWECK: Packen und Entpacken von Bild-Records (IRHeader + Labels + Bilddaten)
// INPUT: Label-Vektor und kodierte Bildbytes bzw. rohe Record-Payload
// OUTPUT: Payload fuer recordio.Writer bzw. Header/Labels/Bilddaten
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: encoding/binary
// HINWEISE: Bei mehr als einem Label traegt Flag die Label-Anzahl und die
//           Labels stehen als float32 direkt hinter dem Header
package recordio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// headerSize: Flag uint32 + Label float32 + ID uint64 + ID2 uint64
const headerSize = 4 + 4 + 8 + 8

// Header ist der Record-Kopf eines Bild-Records
type Header struct {
	Flag  uint32
	Label float32
	ID    uint64
	ID2   uint64
}

// Pack baut die Payload eines Bild-Records
// Ein einzelnes Label landet im Header selbst, Vektoren hinter dem Header
func Pack(id uint64, labels []float32, image []byte) ([]byte, error) {
	h := Header{ID: id}
	var extra []float32

	switch len(labels) {
	case 0:
		return nil, fmt.Errorf("%w: record without labels", ErrUnsupported)
	case 1:
		h.Label = labels[0]
	default:
		h.Flag = uint32(len(labels))
		extra = labels
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + 4*len(extra) + len(image))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	if extra != nil {
		if err := binary.Write(&buf, binary.LittleEndian, extra); err != nil {
			return nil, err
		}
	}
	buf.Write(image)

	return buf.Bytes(), nil
}

// Unpack zerlegt eine Record-Payload in Header, Labels und Bilddaten
func Unpack(payload []byte) (Header, []float32, []byte, error) {
	if len(payload) < headerSize {
		return Header{}, nil, nil, fmt.Errorf("%w: truncated header (%d bytes)", ErrUnsupported, len(payload))
	}

	var h Header
	r := bytes.NewReader(payload)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, nil, nil, err
	}

	rest := payload[headerSize:]
	if h.Flag == 0 {
		return h, []float32{h.Label}, rest, nil
	}

	n := int(h.Flag)
	if len(rest) < 4*n {
		return Header{}, nil, nil, fmt.Errorf("%w: %d labels in %d payload bytes", ErrUnsupported, n, len(rest))
	}

	labels := make([]float32, n)
	if err := binary.Read(bytes.NewReader(rest[:4*n]), binary.LittleEndian, &labels); err != nil {
		return Header{}, nil, nil, err
	}

	return h, labels, rest[4*n:], nil
}
