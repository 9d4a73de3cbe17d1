// executor.go - Executor-Schnittstelle und Registry fuer Trainings-Engines
// Hauptfunktionen: RegisterExecutor, NewExecutor
//
// Die numerische Arbeit (Forward/Backward/Optimizer-Schritt) uebernimmt eine
// registrierte Engine; der Trainer selbst orchestriert nur. Engines werden
// wie Backends ueber ihren Namen aufgeloest.
package fit

import (
	"fmt"

	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/hyperparams"
)

// Executor fuehrt die numerischen Schritte eines Trainingslaufs aus
type Executor interface {
	// Bind baut den Graphen fuer Netz und Hyperparameter auf
	Bind(net *crnn.Network, hp hyperparams.Hyperparams) error

	// Forward gibt Frame-Wahrscheinlichkeiten zurueck
	// Layout [batch * seq length * num classes]
	Forward(batch *dataset.Batch) ([]float32, error)

	// Backward berechnet Gradienten fuer den letzten Forward
	Backward() error

	// Step fuehrt einen Optimizer-Schritt aus (lr, wd, clip aus Bind)
	Step() error

	// Params liest alle Parameter-Tensoren
	Params() map[string][]float32

	// SetParams laedt Parameter-Tensoren (Resume)
	SetParams(params map[string][]float32) error
}

var executors = make(map[string]func() (Executor, error))

// RegisterExecutor registriert eine Engine-Factory unter ihrem Namen
func RegisterExecutor(name string, f func() (Executor, error)) {
	if _, ok := executors[name]; ok {
		panic("fit: executor already registered: " + name)
	}

	executors[name] = f
}

// NewExecutor loest eine registrierte Engine ueber ihren Namen auf
func NewExecutor(name string) (Executor, error) {
	if f, ok := executors[name]; ok {
		return f()
	}

	return nil, fmt.Errorf("unsupported executor %q", name)
}
