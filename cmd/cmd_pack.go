// cmd_pack.go - Pack Command: Bildliste in ein .rec/.idx Paar packen
// Hauptfunktionen: PackHandler
package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/envconfig"
	"github.com/memegle/cnocr/format"
	"github.com/memegle/cnocr/hyperparams"
	"github.com/memegle/cnocr/recordio"
)

// newPackCmd - Erstellt den pack Command
func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack LIST PREFIX",
		Short: "Pack a labeled image list into a .rec/.idx pair",
		Long: `Pack reads a list file with one sample per line:

    <image path> <label index> [<label index> ...]

resizes every image and writes <PREFIX>.rec and <PREFIX>.idx.`,
		Args: cobra.ExactArgs(2),
		RunE: PackHandler,
	}

	flags := cmd.Flags()
	flags.Int("height", hyperparams.DefaultImgHeight, "target image height")
	flags.Int("width", hyperparams.DefaultImgWidth, "target image width")
	flags.Int("quality", 95, "JPEG quality for packed images")

	return cmd
}

// listEntry ist eine Zeile der Eingabeliste
type listEntry struct {
	path   string
	labels []float32
}

// parseListLine zerlegt "<pfad> <label> [<label> ...]"
func parseListLine(line string) (listEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return listEntry{}, fmt.Errorf("zeile %q: pfad und mindestens ein label erwartet", line)
	}

	entry := listEntry{path: fields[0]}
	for _, f := range fields[1:] {
		label, err := strconv.Atoi(f)
		if err != nil {
			return listEntry{}, fmt.Errorf("zeile %q: label %q: %w", line, f, err)
		}
		entry.labels = append(entry.labels, float32(label))
	}

	return entry, nil
}

// readListFile liest alle Eintraege; Leerzeilen werden uebersprungen
func readListFile(path string) ([]listEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []listEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := parseListLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// encodeEntry laedt, skaliert und re-kodiert ein Bild als JPEG
func encodeEntry(entry listEntry, baseDir string, height, width, quality int) ([]byte, error) {
	path := entry.path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, err := dataset.DecodeRGBA(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.path, err)
	}
	img, err = dataset.Resize(img, width, height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.path, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%s: %w", entry.path, err)
	}

	return buf.Bytes(), nil
}

// PackHandler - Packt die Liste in RecordIO-Dateien
func PackHandler(cmd *cobra.Command, args []string) error {
	listPath, prefix := args[0], args[1]

	flags := cmd.Flags()
	height, err := flags.GetInt("height")
	if err != nil {
		return err
	}
	width, err := flags.GetInt("width")
	if err != nil {
		return err
	}
	quality, err := flags.GetInt("quality")
	if err != nil {
		return err
	}

	entries, err := readListFile(listPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("liste %s ist leer", listPath)
	}

	began := time.Now()

	// Bildpfade sind relativ zur Liste
	baseDir := filepath.Dir(listPath)

	// Parallel kodieren, Reihenfolge bleibt ueber den Index stabil
	encoded := make([][]byte, len(entries))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(int(envconfig.NumWorkers()))
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := encodeEntry(entry, baseDir, height, width, quality)
			if err != nil {
				return err
			}
			encoded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	recFile, err := os.Create(prefix + ".rec")
	if err != nil {
		return err
	}
	defer recFile.Close()

	w := recordio.NewWriter(recFile)
	indexEntries := make([]recordio.IndexEntry, 0, len(entries))
	for i, entry := range entries {
		payload, err := recordio.Pack(uint64(i), entry.labels, encoded[i])
		if err != nil {
			return fmt.Errorf("%s: %w", entry.path, err)
		}
		offset, err := w.Write(payload)
		if err != nil {
			return err
		}
		indexEntries = append(indexEntries, recordio.IndexEntry{ID: uint64(i), Offset: offset})
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := recordio.WriteIndex(prefix+".idx", indexEntries); err != nil {
		return err
	}

	fmt.Printf("packed %d samples into %s.rec (%s) in %s\n",
		len(entries), prefix, format.HumanBytes(w.Tell()), format.HumanDuration(time.Since(began)))

	return nil
}
