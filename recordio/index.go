// MODUL: index
// ZWECK: Lesen und Schreiben von Index-Dateien (.idx) fuer RecordIO
// INPUT: Pfad zu einer Index-Datei bzw. Record-ID/Offset-Paare
// OUTPUT: geordnete Index-Eintraege fuer wahlfreien Zugriff
// NEBENEFFEKTE: Dateisystem-Zugriff
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Format ist zeilenbasiert "id<TAB>offset"
package recordio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IndexEntry ordnet einer Record-ID den Byte-Offset in der .rec Datei zu
type IndexEntry struct {
	ID     uint64
	Offset int64
}

// ReadIndex liest eine .idx Datei
func ReadIndex(path string) ([]IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []IndexEntry
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		idStr, offStr, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("index zeile %d ungueltig: %q", line, text)
		}

		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index zeile %d: %w", line, err)
		}
		off, err := strconv.ParseInt(strings.TrimSpace(offStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index zeile %d: %w", line, err)
		}

		entries = append(entries, IndexEntry{ID: id, Offset: off})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// WriteIndex schreibt eine .idx Datei
func WriteIndex(path string, entries []IndexEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", e.ID, e.Offset); err != nil {
			return err
		}
	}
	return w.Flush()
}

// IndexedReader kombiniert .rec und .idx fuer wahlfreien Zugriff
type IndexedReader struct {
	f       *os.File
	reader  *Reader
	entries []IndexEntry
}

// OpenIndexed oeffnet ein .rec/.idx Paar
func OpenIndexed(recPath, idxPath string) (*IndexedReader, error) {
	entries, err := ReadIndex(idxPath)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", idxPath, err)
	}

	f, err := os.Open(recPath)
	if err != nil {
		return nil, err
	}

	return &IndexedReader{f: f, reader: NewReader(f), entries: entries}, nil
}

// Len gibt die Anzahl der indizierten Records zurueck
func (ir *IndexedReader) Len() int {
	return len(ir.entries)
}

// At liest den i-ten Record laut Index
func (ir *IndexedReader) At(i int) ([]byte, error) {
	if i < 0 || i >= len(ir.entries) {
		return nil, fmt.Errorf("record index %d ausserhalb [0, %d)", i, len(ir.entries))
	}
	return ir.reader.ReadAt(ir.entries[i].Offset)
}

// Close schliesst die .rec Datei
func (ir *IndexedReader) Close() error {
	return ir.f.Close()
}
