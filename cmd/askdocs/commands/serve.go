package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs-go/internal/answer"
	"github.com/askdocs/askdocs-go/internal/embedder"
	"github.com/askdocs/askdocs-go/internal/engine"
	"github.com/askdocs/askdocs-go/internal/ingest"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/metastore"
	"github.com/askdocs/askdocs-go/internal/server"
	"github.com/askdocs/askdocs-go/internal/service"
	"github.com/askdocs/askdocs-go/internal/tracing"
)

// NewServeCmd constructs the `askdocs serve` command, which starts the HTTP
// server exposing the document Q&A REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdocs HTTP server",
		Long: `Start the askdocs HTTP server on localhost.

The server exposes a REST API for uploading documents, querying them with
natural language questions, and managing chats. Qdrant and an embedding
backend must be reachable for retrieval to work.

Examples:
  askdocs serve
  askdocs serve --port 9090
  MODEL_PROVIDER=openai askdocs serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))))

			vectors, err := buildVectorStore(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			gen, err := buildGenerator(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			dbPath, err := resolveDBPath()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			meta, err := metastore.Open(dbPath, getEnvInt("ASKDOCS_MAX_CHATS", 0))
			if err != nil {
				return fmt.Errorf("serve: failed to open metadata store: %w", err)
			}
			defer func() { _ = meta.Close() }()
			log.Info("metadata store opened", slog.String("path", dbPath))

			storageDir, err := resolveStorageDir()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			registry := prometheus.NewRegistry()

			pipeline, err := ingest.New(buildSplitter(), emb, vectors, meta, 0, ingest.NewMetrics(registry))
			if err != nil {
				return fmt.Errorf("serve: failed to create ingestion pipeline: %w", err)
			}

			eng, err := engine.New(emb, vectors)
			if err != nil {
				return fmt.Errorf("serve: failed to create retrieval engine: %w", err)
			}

			synth, err := answer.New(eng, gen, 0)
			if err != nil {
				return fmt.Errorf("serve: failed to create synthesizer: %w", err)
			}

			svc, err := service.New(meta, vectors, pipeline, synth, service.Config{
				StorageDir:     storageDir,
				MaxUploadBytes: int64(getEnvInt("ASKDOCS_MAX_UPLOAD_MB", 0)) << 20,
				MaxDocuments:   getEnvInt("ASKDOCS_MAX_DOCUMENTS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create service: %w", err)
			}

			pingers := []server.Pinger{server.NewDependencyPinger(vectors, "vectors")}
			if p, ok := asPingable(emb); ok {
				pingers = append(pingers, server.NewDependencyPinger(p, "embedder"))
			}

			srv, err := server.New(svc, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: getEnvFloat("ASKDOCS_RATE_LIMIT", 0),
				RateBurst: getEnvInt("ASKDOCS_RATE_BURST", 0),
				APIKey:    os.Getenv("ASKDOCS_API_KEY"),
				Registry:  registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
