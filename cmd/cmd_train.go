// cmd_train.go - Train Command
// Hauptfunktionen: TrainHandler
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memegle/cnocr/crnn"
	"github.com/memegle/cnocr/envconfig"
	"github.com/memegle/cnocr/fit"
	"github.com/memegle/cnocr/hyperparams"
	"github.com/memegle/cnocr/logutil"
	"github.com/memegle/cnocr/train"
)

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a CRNN recognition model",
		Args:  cobra.ExactArgs(0),
		RunE:  TrainHandler,
	}

	flags := cmd.Flags()
	flags.String("emb_model_type", "conv-lite",
		fmt.Sprintf("which embedding model to use (choices: %s)", strings.Join(crnn.EmbModelTypes, ", ")))
	flags.String("seq_model_type", "fc",
		fmt.Sprintf("which sequence model to use (choices: %s)", strings.Join(crnn.SeqModelTypes, ", ")))
	flags.String("train_file", "data/sample-data-lst/train", "Prefix of the train .rec/.idx pair")
	flags.String("test_file", "data/sample-data-lst/test", "Prefix of the test .rec/.idx pair")
	flags.Bool("use_train_image_aug", false, "Whether to use image augmentation for training")
	flags.Int("gpu", 0, "Number of GPUs for training [Default 0, means using cpu]")
	flags.String("optimizer", hyperparams.DefaultOptimizer, "optimizer for training [Default: Adam]")
	flags.Int("batch_size", hyperparams.DefaultBatchSize, "batch size for each device [Default: 128]")
	flags.Int("epoch", hyperparams.DefaultNumEpoch, "train epochs [Default: 20]")
	flags.Int("load_epoch", 0, "load the model on an epoch using the model-load-prefix [Default: no trained model will be loaded]")
	flags.Float64("lr", hyperparams.DefaultLearningRate, "learning rate")
	flags.Float64("dropout", hyperparams.DefaultDropout, "dropout ratio [Default: 0.5]")
	flags.Float64("wd", 0.0, "weight decay factor [Default: 0.0]")
	flags.Float64("clip_gradient", 0, "value for clip gradient [Default: 0, means no gradient will be clipped]")
	flags.String("out_model_dir", envconfig.ModelDir(), "output model directory")
	flags.Bool("fp16", false, "save checkpoints in half precision")
	flags.String("executor", "null", "numeric engine to train with")

	return cmd
}

// trainConfig baut die Trainings-Konfiguration aus den Flags
func trainConfig(cmd *cobra.Command) (train.Config, error) {
	var cfg train.Config
	var err error

	flags := cmd.Flags()
	if cfg.EmbModelType, err = flags.GetString("emb_model_type"); err != nil {
		return train.Config{}, err
	}
	if cfg.SeqModelType, err = flags.GetString("seq_model_type"); err != nil {
		return train.Config{}, err
	}
	if cfg.TrainFile, err = flags.GetString("train_file"); err != nil {
		return train.Config{}, err
	}
	if cfg.TestFile, err = flags.GetString("test_file"); err != nil {
		return train.Config{}, err
	}
	if cfg.UseTrainImageAug, err = flags.GetBool("use_train_image_aug"); err != nil {
		return train.Config{}, err
	}
	if cfg.GPU, err = flags.GetInt("gpu"); err != nil {
		return train.Config{}, err
	}
	if cfg.Optimizer, err = flags.GetString("optimizer"); err != nil {
		return train.Config{}, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch_size"); err != nil {
		return train.Config{}, err
	}
	if cfg.Epoch, err = flags.GetInt("epoch"); err != nil {
		return train.Config{}, err
	}
	if cfg.LoadEpoch, err = flags.GetInt("load_epoch"); err != nil {
		return train.Config{}, err
	}
	if cfg.LR, err = flags.GetFloat64("lr"); err != nil {
		return train.Config{}, err
	}
	if cfg.Dropout, err = flags.GetFloat64("dropout"); err != nil {
		return train.Config{}, err
	}
	if cfg.WD, err = flags.GetFloat64("wd"); err != nil {
		return train.Config{}, err
	}
	if cfg.ClipGradient, err = flags.GetFloat64("clip_gradient"); err != nil {
		return train.Config{}, err
	}
	if cfg.OutModelDir, err = flags.GetString("out_model_dir"); err != nil {
		return train.Config{}, err
	}
	if cfg.SaveHalf, err = flags.GetBool("fp16"); err != nil {
		return train.Config{}, err
	}

	return cfg, nil
}

// TrainHandler - Startet einen Trainingslauf
func TrainHandler(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("train config", "env", envconfig.Values())

	cfg, err := trainConfig(cmd)
	if err != nil {
		return err
	}

	name, err := cmd.Flags().GetString("executor")
	if err != nil {
		return err
	}
	exec, err := fit.NewExecutor(name)
	if err != nil {
		return err
	}

	return train.Run(cmd.Context(), cfg, exec)
}
