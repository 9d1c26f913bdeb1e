package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Brownie44l1/dog-breed-api/internal/config"
	"github.com/Brownie44l1/dog-breed-api/internal/logger"
	"github.com/Brownie44l1/dog-breed-api/internal/model"
)

// v backs every flag so that flags override config.yaml and DOGBREED_* env vars.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Dog breed classifier: upload a picture, get one of 133 breeds",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("labels", model.DefaultLabelsPath, "newline-delimited breed names")
	flags.String("weights", model.DefaultWeightsPath, "ONNX model with the 133-class head")
	flags.String("onnx-lib", "", "path to the onnxruntime shared library")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "json", "json or console")
	flags.String("log-output", "stderr", "stderr, stdout or a file path")

	for key, name := range map[string]string{
		"model.labels_path":  "labels",
		"model.weights_path": "weights",
		"model.onnx_library": "onnx-lib",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"log.output":         "log-output",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Errorf("bind %s flag to viper: %w", name, err))
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(predictCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, the logger and the classifier shared by every command.
func setup() (*config.Config, *zap.Logger, *model.Classifier, error) {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info("Loading model",
		zap.String("labels", cfg.Model.LabelsPath),
		zap.String("weights", cfg.Model.WeightsPath))

	classifier, err := model.New(classifierConfig(cfg.Model), model.WithLogger(log))
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	return cfg, log, classifier, nil
}

func classifierConfig(mc config.ModelConfig) model.Config {
	return model.Config{
		LabelsPath:     mc.LabelsPath,
		WeightsPath:    mc.WeightsPath,
		ONNXLibrary:    mc.ONNXLibrary,
		InputName:      mc.InputName,
		OutputName:     mc.OutputName,
		NumClasses:     mc.NumClasses,
		IntraOpThreads: mc.IntraOpThreads,
		ResizeShort:    mc.ResizeSize,
		CropSize:       mc.CropSize,
	}
}

func teardown(log *zap.Logger, classifier *model.Classifier) {
	if err := classifier.Close(); err != nil {
		log.Warn("Failed to close classifier", zap.Error(err))
	}
	if err := model.Shutdown(); err != nil {
		log.Warn("Failed to shut down ONNX runtime", zap.Error(err))
	}
	_ = log.Sync()
}
