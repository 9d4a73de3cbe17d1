// train.go - Aufbau und Start eines Trainingslaufs
// Hauptfunktionen: Run, BuildIters
//
// Entspricht train_cnocr des Python-Trainers: validiert die Konfiguration,
// leitet Modellname, Ausgabeverzeichnis und Checkpoint-Prefix ab, baut
// Netz, Metriken und Iteratoren und uebergibt an fit.Fit.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/memegle/cnocr/augment"
	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/ctc"
	"github.com/memegle/cnocr/dataset"
	"github.com/memegle/cnocr/fit"
	"github.com/memegle/cnocr/hyperparams"
	"github.com/memegle/cnocr/version"
)

var ErrBadModelType = errors.New("train: invalid model type")

// Config ist die vollstaendige Konfiguration eines Trainingslaufs
// Wird einmal aus den CLI-Flags gebaut und danach nur gelesen
type Config struct {
	EmbModelType     string
	SeqModelType     string
	TrainFile        string // Prefix des .rec/.idx Paars
	TestFile         string
	UseTrainImageAug bool
	GPU              int
	Optimizer        string
	BatchSize        int
	Epoch            int
	LoadEpoch        int
	LR               float64
	Dropout          float64
	WD               float64
	ClipGradient     float64
	OutModelDir      string

	// SaveHalf speichert Checkpoints als float16
	SaveHalf bool

	// Seed fuer Shuffle und Augmentierung; 0 = nicht deterministisch noetig
	Seed int64
}

// Validate prueft die Enum-Flags gegen die zulaessigen Mengen
// Laeuft VOR jeder Verzeichnis-Erstellung
func (c *Config) Validate() error {
	if !crnn.ValidEmbModelType(c.EmbModelType) {
		return fmt.Errorf("%w: emb model %q (choices: %s)",
			ErrBadModelType, c.EmbModelType, strings.Join(crnn.EmbModelTypes, ", "))
	}
	if !crnn.ValidSeqModelType(c.SeqModelType) {
		return fmt.Errorf("%w: seq model %q (choices: %s)",
			ErrBadModelType, c.SeqModelType, strings.Join(crnn.SeqModelTypes, ", "))
	}
	return nil
}

// ModelName ist "<emb>-<seq>"
func (c *Config) ModelName() string {
	return c.EmbModelType + "-" + c.SeqModelType
}

// OutDir ist das Checkpoint-Verzeichnis <out model dir>/<model name>
func (c *Config) OutDir() string {
	return filepath.Join(c.OutModelDir, c.ModelName())
}

// Prefix ist der Checkpoint-Prefix cnocr-v<ModelVersion>-<model name>
func (c *Config) Prefix() string {
	return filepath.Join(c.OutDir(), fmt.Sprintf("cnocr-v%s-%s", version.ModelVersion, c.ModelName()))
}

// Hyperparams loest die Hyperparameter in einem Schritt auf
func (c *Config) Hyperparams() (hyperparams.Hyperparams, error) {
	return hyperparams.New(hyperparams.Options{
		SeqModelType: c.SeqModelType,
		BatchSize:    c.BatchSize,
		NumEpoch:     c.Epoch,
		LoadEpoch:    c.LoadEpoch,
		LearningRate: c.LR,
		Dropout:      c.Dropout,
		WeightDecay:  c.WD,
		ClipGradient: c.ClipGradient,
		Optimizer:    c.Optimizer,
		Devices:      c.GPU,
	})
}

// BuildIters baut Trainings- und Validierungs-Iterator
// Nur der Trainings-Iterator bekommt die Augmenter-Kette und Shuffle;
// der Validierungs-Iterator laeuft immer unaugmentiert
func BuildIters(hp hyperparams.Hyperparams, trainPrefix, valPrefix string, useAug bool, seed int64) (*dataset.ImageIter, *dataset.ImageIter, error) {
	var augs []augment.Augmenter
	if useAug {
		augs = append(augment.CreateAugmenters(augment.DefaultConfig()), &augment.FgBgFlipAug{P: 0.2})
	}

	trainIter, err := dataset.NewImageIter(trainPrefix+".rec", trainPrefix+".idx", dataset.Config{
		BatchSize:  hp.BatchSize,
		Height:     hp.ImgHeight,
		Width:      hp.ImgWidth,
		LabelWidth: hp.NumLabel,
		Shuffle:    true,
		Augmenters: augs,
		Seed:       seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("train iterator: %w", err)
	}

	valIter, err := dataset.NewImageIter(valPrefix+".rec", valPrefix+".idx", dataset.Config{
		BatchSize:  hp.BatchSize,
		Height:     hp.ImgHeight,
		Width:      hp.ImgWidth,
		LabelWidth: hp.NumLabel,
	})
	if err != nil {
		trainIter.Close()
		return nil, nil, fmt.Errorf("val iterator: %w", err)
	}

	return trainIter, valIter, nil
}

// Run fuehrt einen kompletten Trainingslauf aus
func Run(ctx context.Context, cfg Config, exec fit.Executor) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	hp, err := cfg.Hyperparams()
	if err != nil {
		return err
	}

	outDir := cfg.OutDir()
	slog.Info("save models to dir", "dir", outDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("could not create model directory: %w", err)
	}

	net, hp, err := crnn.GenNetwork(cfg.ModelName(), hp)
	if err != nil {
		return err
	}

	trainIter, valIter, err := BuildIters(hp, cfg.TrainFile, cfg.TestFile, cfg.UseTrainImageAug, cfg.Seed)
	if err != nil {
		return err
	}
	defer trainIter.Close()
	defer valIter.Close()

	slog.Info("starting training",
		"model", net.Name,
		"optimizer", hp.Optimizer,
		"batch_size", hp.BatchSize,
		"epochs", hp.NumEpoch,
		"gpus", hp.Devices,
		"train_samples", trainIter.NumSamples(),
		"val_samples", valIter.NumSamples())

	return fit.Fit(ctx, fit.Params{
		Network:  net,
		Hyper:    hp,
		Train:    trainIter,
		Val:      valIter,
		Metrics:  ctc.NewMetrics(hp.SeqLength),
		Executor: exec,
		Prefix:   cfg.Prefix(),
		SaveHalf: cfg.SaveHalf,
	})
}
