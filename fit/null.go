// null.go - Null-Engine fuer Pipeline-Laeufe ohne numerisches Backend
// Hauptfunktionen: init (Registrierung unter "null")
//
// Rechnet nichts: Forward liefert nur Blank-Frames, Backward und Step sind
// No-Ops. Damit laesst sich die komplette Daten- und Checkpoint-Pipeline
// durchfahren, ohne dass eine Trainings-Engine eingebunden ist.
package fit

import (
	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/hyperparams"
)

func init() {
	RegisterExecutor("null", func() (Executor, error) {
		return &nullExecutor{params: make(map[string][]float32)}, nil
	})
}

type nullExecutor struct {
	hp     hyperparams.Hyperparams
	params map[string][]float32
}

func (e *nullExecutor) Bind(net *crnn.Network, hp hyperparams.Hyperparams) error {
	e.hp = hp
	return nil
}

func (e *nullExecutor) Forward(batch *dataset.Batch) ([]float32, error) {
	// Alles Null: argmax pro Frame faellt auf die Blank-Klasse
	return make([]float32, batch.Size*e.hp.SeqLength*e.hp.NumClasses), nil
}

func (e *nullExecutor) Backward() error { return nil }

func (e *nullExecutor) Step() error { return nil }

func (e *nullExecutor) Params() map[string][]float32 { return e.params }

func (e *nullExecutor) SetParams(params map[string][]float32) error {
	e.params = params
	return nil
}
