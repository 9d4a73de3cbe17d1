// fit.go - Trainingsschleife fuer das CRNN-Modell
// Hauptfunktionen: Fit
//
// Orchestriert Executor, Iteratoren, Metriken und Checkpoints:
// pro Epoche Training ueber alle Batches, Evaluierung auf dem
// Validierungs-Datensatz und ein Checkpoint unter <prefix>-NNNN.params.
// Kein Retry und keine Fehler-Erholung; Abbruch laeuft ueber den Context.
package fit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/ctc"
	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/format"
	"github.com/memegle/cnocr/hyperparams"
)

const defaultLogInterval = 50

var ErrMissingParam = errors.New("fit: missing required parameter")

// Params buendelt alles, was ein Trainingslauf braucht
type Params struct {
	Network  *crnn.Network
	Hyper    hyperparams.Hyperparams
	Train    *dataset.ImageIter
	Val      *dataset.ImageIter
	Metrics  *ctc.Metrics
	Executor Executor

	// Prefix ist der Checkpoint-Pfad ohne Epochen-Suffix
	Prefix string

	// SaveHalf speichert Parameter als float16
	SaveHalf bool

	// LogInterval in Batches; 0 = Default
	LogInterval int
}

func (p *Params) validate() error {
	switch {
	case p.Network == nil:
		return fmt.Errorf("%w: network", ErrMissingParam)
	case p.Train == nil:
		return fmt.Errorf("%w: train iterator", ErrMissingParam)
	case p.Val == nil:
		return fmt.Errorf("%w: val iterator", ErrMissingParam)
	case p.Metrics == nil:
		return fmt.Errorf("%w: metrics", ErrMissingParam)
	case p.Executor == nil:
		return fmt.Errorf("%w: executor", ErrMissingParam)
	case p.Prefix == "":
		return fmt.Errorf("%w: prefix", ErrMissingParam)
	}
	return nil
}

// Fit trainiert das Netz ueber alle Epochen
func Fit(ctx context.Context, p Params) error {
	if err := p.validate(); err != nil {
		return err
	}

	hp := p.Hyper
	if err := p.Executor.Bind(p.Network, hp); err != nil {
		return fmt.Errorf("executor bind: %w", err)
	}

	start := 0
	if hp.LoadEpoch > 0 {
		path := CheckpointPath(p.Prefix, hp.LoadEpoch)
		ck, err := LoadCheckpoint(path)
		if err != nil {
			return fmt.Errorf("resume von %s: %w", path, err)
		}
		if err := p.Executor.SetParams(ck.Params); err != nil {
			return fmt.Errorf("resume von %s: %w", path, err)
		}
		start = hp.LoadEpoch
		slog.Info("resumed from checkpoint", "path", path, "epoch", start)
	}

	if err := SaveSymbol(p.Prefix, p.Network); err != nil {
		return err
	}

	logInterval := p.LogInterval
	if logInterval <= 0 {
		logInterval = defaultLogInterval
	}

	for epoch := start + 1; epoch <= hp.NumEpoch; epoch++ {
		began := time.Now()

		if err := trainEpoch(ctx, &p, epoch, logInterval); err != nil {
			return err
		}
		trainVals := p.Metrics.Values()

		if err := evaluate(ctx, &p); err != nil {
			return err
		}
		valVals := p.Metrics.Values()
		p.Metrics.Reset()

		ck := &Checkpoint{
			Meta: map[string]string{
				"model":     p.Network.Name,
				"epoch":     strconv.Itoa(epoch),
				"optimizer": hp.Optimizer,
				"lr":        strconv.FormatFloat(hp.LearningRate, 'g', -1, 64),
			},
			Params: p.Executor.Params(),
		}
		path := CheckpointPath(p.Prefix, epoch)
		if err := SaveCheckpoint(path, ck, p.SaveHalf); err != nil {
			return fmt.Errorf("checkpoint %s: %w", path, err)
		}

		slog.Info("epoch finished",
			"epoch", epoch,
			"train_accuracy", trainVals["accuracy"],
			"val_accuracy", valVals["accuracy"],
			"val_char_accuracy", valVals["char_accuracy"],
			"checkpoint", path,
			"took", format.HumanDuration(time.Since(began)))
	}

	return nil
}

func trainEpoch(ctx context.Context, p *Params, epoch, logInterval int) error {
	hp := p.Hyper
	p.Metrics.Reset()

	began := time.Now()
	var batches int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.Train.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("train batch: %w", err)
		}

		probs, err := p.Executor.Forward(batch)
		if err != nil {
			return fmt.Errorf("forward: %w", err)
		}
		if err := p.Metrics.Update(batch.Label, hp.NumLabel, probs, hp.NumClasses); err != nil {
			return err
		}
		if err := p.Executor.Backward(); err != nil {
			return fmt.Errorf("backward: %w", err)
		}
		if err := p.Executor.Step(); err != nil {
			return fmt.Errorf("optimizer step: %w", err)
		}

		batches++
		if batches%logInterval == 0 {
			elapsed := time.Since(began).Seconds()
			slog.Info("training",
				"epoch", epoch,
				"batch", batches,
				"accuracy", p.Metrics.Accuracy(),
				"samples_per_sec", float64(batches*hp.BatchSize)/elapsed)
		}
	}

	p.Train.Reset()
	return nil
}

func evaluate(ctx context.Context, p *Params) error {
	hp := p.Hyper
	p.Metrics.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.Val.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("val batch: %w", err)
		}

		probs, err := p.Executor.Forward(batch)
		if err != nil {
			return fmt.Errorf("forward: %w", err)
		}
		if err := p.Metrics.Update(batch.Label, hp.NumLabel, probs, hp.NumClasses); err != nil {
			return err
		}
	}

	p.Val.Reset()
	return nil
}
