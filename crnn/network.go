// MODUL: network
// ZWECK: Aufbau des CRNN-Netzwerk-Deskriptors aus Modellname und Hyperparametern
// INPUT: Modellname "<emb>-<seq>" und aufgeloeste Hyperparams
// OUTPUT: Layer-Graph als Deskriptor plus angepasste Hyperparams (Sequenzlaenge)
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: hyperparams
// HINWEISE: Die numerische Ausfuehrung uebernimmt ein fit.Executor; dieses
//           Modul beschreibt nur die Netzstruktur
package crnn

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/memegle/cnocr/hyperparams"
)

// EmbModelTypes sind die zulaessigen Embedding-Modelle (Faltungsstufe)
var EmbModelTypes = []string{"conv", "conv-lite", "densenet", "densenet-lite"}

// SeqModelTypes sind die zulaessigen Sequenz-Modelle (Kopfstufe)
var SeqModelTypes = []string{"lstm", "gru", "fc"}

var ErrBadModelName = errors.New("crnn: unknown model name")

// ValidEmbModelType prueft ein Embedding-Modell gegen die zulaessige Menge
func ValidEmbModelType(s string) bool {
	return slices.Contains(EmbModelTypes, s)
}

// ValidSeqModelType prueft ein Sequenz-Modell gegen die zulaessige Menge
func ValidSeqModelType(s string) bool {
	return slices.Contains(SeqModelTypes, s)
}

// Layer beschreibt eine Schicht des Netzwerk-Graphen
type Layer struct {
	Kind     string  `json:"kind"` // conv, pool, batchnorm, dropout, dense, lstm, gru
	Name     string  `json:"name"`
	Channels int     `json:"channels,omitempty"`
	Kernel   [2]int  `json:"kernel,omitempty"`
	Stride   [2]int  `json:"stride,omitempty"`
	Hidden   int     `json:"hidden,omitempty"`
	Layers   int     `json:"layers,omitempty"`
	Dropout  float64 `json:"dropout,omitempty"`
}

// Network ist der Deskriptor des gesamten CRNN-Graphen
type Network struct {
	Name       string  `json:"name"`
	EmbType    string  `json:"emb_type"`
	SeqType    string  `json:"seq_type"`
	SeqLength  int     `json:"seq_length"`
	NumClasses int     `json:"num_classes"`
	Layers     []Layer `json:"layers"`
}

// SplitModelName zerlegt "<emb>-<seq>" in die beiden Typen
// Embedding-Namen enthalten selbst Bindestriche (conv-lite)
func SplitModelName(name string) (string, string, error) {
	for _, emb := range EmbModelTypes {
		rest, ok := strings.CutPrefix(name, emb+"-")
		if ok && ValidSeqModelType(rest) {
			return emb, rest, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrBadModelName, name)
}

// Sequenzlaenge pro Embedding-Modell bei 280 Pixel Eingabebreite:
// die conv-Familie reduziert die Breite um Faktor 8, die lite- und
// densenet-Varianten um Faktor 4
func seqLength(embType string, imgWidth int) int {
	switch embType {
	case "conv":
		return imgWidth / 8
	case "conv-lite":
		return imgWidth/4 - 1
	case "densenet":
		return imgWidth / 8
	default: // densenet-lite
		return imgWidth / 4
	}
}

// GenNetwork baut den Netzwerk-Deskriptor und setzt die Sequenzlaenge
// Die uebergebenen Hyperparams bleiben unveraendert
func GenNetwork(name string, hp hyperparams.Hyperparams) (*Network, hyperparams.Hyperparams, error) {
	embType, seqType, err := SplitModelName(name)
	if err != nil {
		return nil, hyperparams.Hyperparams{}, err
	}

	hp = hp.WithSeqLength(seqLength(embType, hp.ImgWidth))

	net := &Network{
		Name:       name,
		EmbType:    embType,
		SeqType:    seqType,
		SeqLength:  hp.SeqLength,
		NumClasses: hp.NumClasses,
	}

	net.Layers = append(net.Layers, embLayers(embType)...)
	net.Layers = append(net.Layers, Layer{
		Kind:    "dropout",
		Name:    "dropout0",
		Dropout: hp.Dropout,
	})
	net.Layers = append(net.Layers, seqLayers(seqType, hp)...)

	return net, hp, nil
}

func embLayers(embType string) []Layer {
	conv := func(name string, channels int) Layer {
		return Layer{Kind: "conv", Name: name, Channels: channels, Kernel: [2]int{3, 3}, Stride: [2]int{1, 1}}
	}
	pool := func(name string, stride [2]int) Layer {
		return Layer{Kind: "pool", Name: name, Kernel: [2]int{2, 2}, Stride: stride}
	}
	bn := func(name string) Layer {
		return Layer{Kind: "batchnorm", Name: name}
	}

	switch embType {
	case "conv":
		return []Layer{
			conv("conv1", 64), bn("bn1"), pool("pool1", [2]int{2, 2}),
			conv("conv2", 128), bn("bn2"), pool("pool2", [2]int{2, 2}),
			conv("conv3", 256), bn("bn3"),
			conv("conv4", 512), bn("bn4"), pool("pool3", [2]int{2, 1}),
		}
	case "conv-lite":
		return []Layer{
			conv("conv1", 32), bn("bn1"), pool("pool1", [2]int{2, 2}),
			conv("conv2", 64), bn("bn2"), pool("pool2", [2]int{2, 1}),
			conv("conv3", 128), bn("bn3"),
		}
	case "densenet":
		return []Layer{
			conv("stem", 64), bn("bn_stem"), pool("pool_stem", [2]int{2, 2}),
			{Kind: "denseblock", Name: "block1", Channels: 128, Layers: 4},
			{Kind: "transition", Name: "trans1", Channels: 128, Stride: [2]int{2, 2}},
			{Kind: "denseblock", Name: "block2", Channels: 256, Layers: 6},
			{Kind: "transition", Name: "trans2", Channels: 256, Stride: [2]int{2, 1}},
		}
	default: // densenet-lite
		return []Layer{
			conv("stem", 32), bn("bn_stem"), pool("pool_stem", [2]int{2, 2}),
			{Kind: "denseblock", Name: "block1", Channels: 64, Layers: 2},
			{Kind: "transition", Name: "trans1", Channels: 64, Stride: [2]int{2, 1}},
			{Kind: "denseblock", Name: "block2", Channels: 128, Layers: 2},
		}
	}
}

func seqLayers(seqType string, hp hyperparams.Hyperparams) []Layer {
	switch seqType {
	case "lstm", "gru":
		return []Layer{
			{Kind: seqType, Name: seqType + "0", Hidden: 100, Layers: 2},
			{Kind: "dense", Name: "pred", Hidden: hp.NumClasses},
		}
	default: // fc
		return []Layer{
			{Kind: "dense", Name: "fc0", Hidden: 120},
			{Kind: "dense", Name: "pred", Hidden: hp.NumClasses},
		}
	}
}
