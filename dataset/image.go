// MODUL: image
// ZWECK: Bild-Dekodierung und Graustufen-Konvertierung fuer den Daten-Iterator
// INPUT: kodierte Bildbytes (JPEG/PNG)
// OUTPUT: *image.RGBA bzw. normalisierte float32 Grauwerte
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), image/jpeg, image/png
// HINWEISE: Grauwert ist der Kanal-Mittelwert, skaliert auf [0,1]
package dataset

import (
	"bytes"
	"fmt"
	"image"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// DecodeRGBA dekodiert Bildbytes und konvertiert zu *image.RGBA
func DecodeRGBA(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}
	return toRGBA(img), nil
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// Resize skaliert ein Bild auf die angegebene Groesse (BiLinear)
// Gibt das Eingabebild zurueck, wenn die Groesse schon stimmt
func Resize(img *image.RGBA, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}

	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// GrayValues fuellt dst mit Grauwerten des Bildes in [0,1]
// Layout ist zeilenweise [h*w]; dst muss h*w Eintraege fassen
func GrayValues(img *image.RGBA, dst []float32) {
	bounds := img.Bounds()
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			dst[idx] = float32(uint32(c.R)+uint32(c.G)+uint32(c.B)) / (3 * 255)
			idx++
		}
	}
}
