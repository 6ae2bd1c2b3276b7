package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/company-scout/internal/ai"
	"github.com/spigell/company-scout/internal/ai/gemini"
	"github.com/spigell/company-scout/internal/company"
	"github.com/spigell/company-scout/internal/logger"
	"github.com/spigell/company-scout/internal/report"
	"github.com/spigell/company-scout/internal/runner"
	"github.com/spigell/company-scout/internal/secrets"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	// jobPlaceholder is the sentinel left in example configs. It is rejected
	// the same way as an empty job title.
	jobPlaceholder = "define-your-job-here"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the company-scout main command",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("job", "", "job title to score companies against (required)")
	runCmd.Flags().StringP("input", "i", "", "json file with companies to analyze")
	runCmd.Flags().IntP("batch-size", "b", 0, "number of companies per model call")
	runCmd.Flags().StringP("model", "m", "", "gemini model to use")
	runCmd.Flags().StringP("output-format", "o", "", "output format: json or csv")
	runCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before spending money")

	viper.BindPFlag("job", runCmd.Flags().Lookup("job"))
	viper.BindPFlag("input", runCmd.Flags().Lookup("input"))
	viper.BindPFlag("batch-size", runCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("ai.gemini.model", runCmd.Flags().Lookup("model"))
	viper.BindPFlag("output.format", runCmd.Flags().Lookup("output-format"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), viper.GetString("log-file"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the company-scout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	job, err := validateJob(config.Job)
	if err != nil {
		logger.Fatal("validating the job title",
			zap.Error(err),
			zap.String("hint", "pass a real job title via --job or the 'job' key in the configuration file"),
		)
	}

	if config.BatchSize < 1 {
		logger.Fatal("batch size must be at least 1", zap.Int("batch_size", config.BatchSize))
	}

	if config.Output == nil {
		config.Output = &OutputConfig{Format: report.FormatJSON}
	}

	sink, err := report.NewWriter(config.Output.Format, config.Output.File)
	if err != nil {
		logger.Fatal("preparing the output writer", zap.Error(err))
	}

	companies, err := company.LoadFromFile(config.Input)
	if err != nil {
		logger.Fatal("loading companies", zap.Error(err))
	}

	if companies.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no companies in the input file"))
		return
	}

	logger.Info("loaded companies",
		zap.Int("count", companies.Len()),
		zap.String("input", config.Input),
	)

	analyzer, err := newAnalyzer(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the analyzer",
			zap.Error(err),
			zap.String("hint", "set the GEMINI_API_KEY environment variable or the 'ai.gemini.api-key-file' key in the configuration file"),
		)
	}

	batches := (companies.Len() + config.BatchSize - 1) / config.BatchSize

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		if !confirmRun(logger, companies.Len(), batches, float64(batches)*config.CostPerBatch) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	r := runner.New(analyzer, sink, config.BatchSize, config.Pacing, config.CostPerBatch, logger)

	results, err := r.Run(ctx, companies, job)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	logger.Info("run completed",
		zap.Int("scored_companies", len(results)),
		zap.String("output", sink.Path()),
	)
}

func validateJob(job string) (string, error) {
	job = strings.TrimSpace(job)
	if job == "" || job == jobPlaceholder {
		return "", fmt.Errorf("please define a valid job title")
	}
	return job, nil
}

func confirmRun(logger *zap.Logger, companies, batches int, estimatedCost float64) bool {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Analyze %d companies in %d batches (estimated cost $%.2f)?", companies, batches, estimatedCost),
		Items: []string{PromptYes, PromptNo},
	}

	_, action, err := prompt.Run()
	if err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	return action == PromptYes
}

func newAnalyzer(ctx context.Context, config *Config, log *zap.Logger) (ai.Analyzer, error) {
	if config.AI == nil || config.AI.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		Env:  "GEMINI_API_KEY",
		File: config.AI.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}

	aiLogger := logger.WithCommonFields(log, "gemini", config.AI.Gemini.Model)

	generator, err := gemini.NewGenerator(
		ctx,
		apiKey,
		config.AI.Gemini.Model,
		config.AI.Gemini.Temperature,
		config.AI.Gemini.MaxRetries,
		aiLogger,
	)
	if err != nil {
		return nil, err
	}

	return gemini.NewAnalyzer(generator, config.Language, config.AI.Gemini.MaxLogLength, aiLogger), nil
}
