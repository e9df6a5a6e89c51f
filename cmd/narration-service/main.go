// main package for the narration-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/config"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/credential"
	"github.com/book-expert/narration-service/internal/objectstore"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/book-expert/narration-service/internal/profile"
	"github.com/book-expert/narration-service/internal/secrets"
	"github.com/book-expert/narration-service/internal/synth"
	"github.com/book-expert/narration-service/internal/translate"
	"github.com/book-expert/narration-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "narration-service-bootstrap.log"
	serviceLogFile   = "narration-service.log"
	connectionName   = "narration-service"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Connect to NATS and JetStream
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(connectionName))
	if err != nil {
		finalLog.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 5. Wire the pipeline
	orchestrator, err := newOrchestrator(cfg, jetstreamContext, finalLog)
	if err != nil {
		finalLog.Error("Failed to build pipeline: %v", err)

		return err
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Settings{
		Subject:          cfg.NATS.TriggerSubject,
		QueueGroup:       cfg.NATS.QueueGroup,
		CompletedSubject: cfg.NATS.CompletedSubject,
		DefaultBucket:    cfg.NATS.SourceBucket,
		RunTimeout:       cfg.RunTimeout(),
	}, orchestrator, finalLog)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalLog.System("Narration-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.TriggerSubject)

	err = natsWorker.Run(ctx)
	if err != nil {
		finalLog.Error("Worker stopped with error: %v", err)

		return fmt.Errorf("worker stopped: %w", err)
	}

	finalLog.System("Narration-Service shut down.")

	return nil
}

// newOrchestrator builds the pipeline with NATS-backed storage and the configured
// secrets backend.
func newOrchestrator(
	cfg *config.Config,
	jetstreamContext nats.JetStreamContext,
	log *logger.Logger,
) (*pipeline.Orchestrator, error) {
	fetcher, err := newSecretFetcher(cfg, jetstreamContext)
	if err != nil {
		return nil, err
	}

	synthesisCredential, err := credential.New(fetcher, cfg.ElevenLabs.SecretName)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis credential: %w", err)
	}

	var translator core.Translator

	if cfg.TranslationEnabled() {
		translationCredential, credErr := credential.New(fetcher, cfg.Translation.SecretName)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create translation credential: %w", credErr)
		}

		openAI, translatorErr := translate.NewOpenAITranslator(
			translationCredential,
			cfg.Translation.BaseURL,
			cfg.Translation.Model,
			cfg.TranslationTimeout(),
		)
		if translatorErr != nil {
			return nil, fmt.Errorf("failed to create translator: %w", translatorErr)
		}

		translator = openAI
	} else {
		log.Warn("Translation is disabled; scripts with a lang header will fail.")
	}

	orchestrator, err := pipeline.New(pipeline.Dependencies{
		Buckets:           objectstore.NewNatsBuckets(jetstreamContext),
		DestinationBucket: cfg.NATS.AudioObjectStoreBucket,
		Translator:        translator,
		Synthesizer:       synth.NewHTTPClient(cfg.ElevenLabs.BaseURL, cfg.Narration.ModelID, cfg.SynthesisTimeout()),
		Credentials:       synthesisCredential,
		Defaults: profile.Defaults{
			SourceLanguage: cfg.Narration.SourceLanguage,
			VoiceID:        cfg.Narration.DefaultVoice,
		},
		Log: log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return orchestrator, nil
}

func newSecretFetcher(cfg *config.Config, jetstreamContext nats.JetStreamContext) (core.SecretFetcher, error) {
	if cfg.Secrets.Backend == config.SecretsBackendEnv {
		return secrets.NewEnvFetcher(), nil
	}

	fetcher, err := secrets.NewKVFetcher(jetstreamContext, cfg.NATS.SecretsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets bucket: %w", err)
	}

	return fetcher, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
