// Command narrate runs the narration pipeline against local directories.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/batch"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/credential"
	"github.com/book-expert/narration-service/internal/objectstore"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/book-expert/narration-service/internal/profile"
	"github.com/book-expert/narration-service/internal/secrets"
	"github.com/book-expert/narration-service/internal/synth"
	"github.com/book-expert/narration-service/internal/translate"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Bucket names of the two local directories.
const (
	inputBucket  = "input"
	outputBucket = "output"
)

const (
	logFileName               = "narrate.log"
	defaultTranslationSecret  = "openai-api-key"
	flagInput                 = "input"
	flagOutput                = "output"
	msgNarrated               = "narrated %s -> %s (%s)\n"
	msgFailed                 = "FAILED   %s: %v\n"
	msgSummary                = "%d of %d scripts narrated into %s\n"
	msgTranslationUnavailable = "translation disabled: set %s to enable it"
)

// ErrRunsFailed is returned when at least one script could not be narrated.
var ErrRunsFailed = errors.New("some scripts failed")

// options holds the flag values shared by every subcommand.
type options struct {
	logDir            string
	sourceLanguage    string
	defaultVoice      string
	modelID           string
	elevenLabsURL     string
	elevenLabsSecret  string
	translationURL    string
	translationModel  string
	translationSecret string
	lookup            func(string) (string, bool)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(os.LookupEnv).ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand(lookup func(string) (string, bool)) *cobra.Command {
	var defaults config.Config

	defaults.ApplyDefaults()

	opts := &options{
		logDir:            os.TempDir(),
		sourceLanguage:    defaults.Narration.SourceLanguage,
		defaultVoice:      profile.DefaultVoiceID,
		modelID:           defaults.Narration.ModelID,
		elevenLabsURL:     defaults.ElevenLabs.BaseURL,
		elevenLabsSecret:  defaults.ElevenLabs.SecretName,
		translationURL:    "",
		translationModel:  defaults.Translation.Model,
		translationSecret: defaultTranslationSecret,
		lookup:            lookup,
	}

	rootCmd := &cobra.Command{
		Use:           "narrate",
		Short:         "Narrate text scripts into audio files",
		Long:          "narrate converts .txt scripts into narrated .mp3 files. The API keys are read from environment variables named after the secret (elevenlabs-api-key becomes ELEVENLABS_API_KEY).",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logDir, "log-dir", opts.logDir, "directory for the log file")
	flags.StringVar(&opts.sourceLanguage, "source-lang", opts.sourceLanguage, "language the scripts are written in")
	flags.StringVar(&opts.defaultVoice, "voice", opts.defaultVoice, "voice used when a script has no voice header")
	flags.StringVar(&opts.modelID, "model", opts.modelID, "speech synthesis model")
	flags.StringVar(&opts.elevenLabsURL, "api-url", opts.elevenLabsURL, "speech synthesis base URL")
	flags.StringVar(&opts.elevenLabsSecret, "api-secret", opts.elevenLabsSecret, "secret name of the synthesis API key")
	flags.StringVar(&opts.translationURL, "translate-url", opts.translationURL, "translation base URL (empty for the default)")
	flags.StringVar(&opts.translationModel, "translate-model", opts.translationModel, "translation model")
	flags.StringVar(&opts.translationSecret, "translate-secret", opts.translationSecret, "secret name of the translation API key")

	rootCmd.AddCommand(newRunCommand(opts), newFileCommand(opts))

	return rootCmd
}

func newRunCommand(opts *options) *cobra.Command {
	var inputDir, outputDir string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Narrate every .txt script in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return narrateDirectory(cmd.Context(), cmd.OutOrStdout(), opts, inputDir, outputDir)
		},
	}

	runCmd.Flags().StringVar(&inputDir, flagInput, "", "directory holding the scripts")
	runCmd.Flags().StringVar(&outputDir, flagOutput, "", "directory receiving the audio files")
	_ = runCmd.MarkFlagRequired(flagInput)
	_ = runCmd.MarkFlagRequired(flagOutput)

	return runCmd
}

func newFileCommand(opts *options) *cobra.Command {
	var outputDir string

	fileCmd := &cobra.Command{
		Use:   "file PATH",
		Short: "Narrate a single script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return narrateFile(cmd.Context(), cmd.OutOrStdout(), opts, args[0], outputDir)
		},
	}

	fileCmd.Flags().StringVar(&outputDir, flagOutput, "", "directory receiving the audio file (defaults to the script's directory)")

	return fileCmd
}

func narrateDirectory(ctx context.Context, out io.Writer, opts *options, inputDir, outputDir string) error {
	log, err := logger.New(opts.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() {
		_ = log.Close()
	}()

	buckets := objectstore.NewDirBuckets(map[string]string{inputBucket: inputDir, outputBucket: outputDir})

	orchestrator, err := newOrchestrator(opts, buckets, log)
	if err != nil {
		return err
	}

	runner, err := batch.New(buckets, orchestrator, log)
	if err != nil {
		return fmt.Errorf("failed to create batch runner: %w", err)
	}

	summary, err := runner.Run(ctx, inputBucket)
	printSummary(out, summary, outputDir)

	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRunsFailed, summary.Failed, len(summary.Results))
	}

	return nil
}

func narrateFile(ctx context.Context, out io.Writer, opts *options, scriptPath, outputDir string) error {
	if outputDir == "" {
		outputDir = filepath.Dir(scriptPath)
	}

	log, err := logger.New(opts.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defer func() {
		_ = log.Close()
	}()

	buckets := objectstore.NewDirBuckets(map[string]string{
		inputBucket:  filepath.Dir(scriptPath),
		outputBucket: outputDir,
	})

	orchestrator, err := newOrchestrator(opts, buckets, log)
	if err != nil {
		return err
	}

	result := orchestrator.Run(ctx, pipeline.Event{Bucket: inputBucket, Name: filepath.Base(scriptPath)})
	printSummary(out, batch.Summary{
		Results:   []pipeline.Result{result},
		Succeeded: boolToInt(result.Succeeded()),
		Failed:    boolToInt(!result.Succeeded()),
	}, outputDir)

	if !result.Succeeded() {
		return fmt.Errorf("%w: %w", ErrRunsFailed, result.Err())
	}

	return nil
}

func newOrchestrator(opts *options, buckets core.BucketOpener, log *logger.Logger) (*pipeline.Orchestrator, error) {
	fetcher := secrets.NewEnvFetcherWithLookup(opts.lookup)

	synthesisCredential, err := credential.New(fetcher, opts.elevenLabsSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis credential: %w", err)
	}

	var translator core.Translator

	if _, ok := opts.lookup(secrets.EnvName(opts.translationSecret)); ok {
		translationCredential, credErr := credential.New(fetcher, opts.translationSecret)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create translation credential: %w", credErr)
		}

		openAI, translatorErr := translate.NewOpenAITranslator(
			translationCredential,
			opts.translationURL,
			opts.translationModel,
			0,
		)
		if translatorErr != nil {
			return nil, fmt.Errorf("failed to create translator: %w", translatorErr)
		}

		translator = openAI
	} else {
		log.Warn(msgTranslationUnavailable, secrets.EnvName(opts.translationSecret))
	}

	orchestrator, err := pipeline.New(pipeline.Dependencies{
		Buckets:           buckets,
		DestinationBucket: outputBucket,
		Translator:        translator,
		Synthesizer:       synth.NewHTTPClient(opts.elevenLabsURL, opts.modelID, 0),
		Credentials:       synthesisCredential,
		Defaults: profile.Defaults{
			SourceLanguage: opts.sourceLanguage,
			VoiceID:        opts.defaultVoice,
		},
		Log: log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return orchestrator, nil
}

func printSummary(out io.Writer, summary batch.Summary, outputDir string) {
	for _, result := range summary.Results {
		if result.Succeeded() {
			_, _ = fmt.Fprintf(out, msgNarrated, result.SourceName, result.DestinationName,
				humanize.Bytes(uint64(result.AudioBytes)))

			continue
		}

		_, _ = fmt.Fprintf(out, msgFailed, result.SourceName, result.Err())
	}

	_, _ = fmt.Fprintf(out, msgSummary, summary.Succeeded, len(summary.Results), outputDir)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}

	return 0
}
