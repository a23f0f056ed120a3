// Command p2n runs the paper2notebook reproduction pipeline from the
// command line: ingest a PDF, extract claims, synthesize a plan, materialize
// a notebook, run it, and report the resulting claimed-vs-observed gap.
//
// # Configuration
//
// Environment variables (see config.Load for the full list and defaults):
//
//	P2N_ENV                 - deployment environment tag used in blob paths
//	P2N_MONGO_URI           - MongoDB connection string
//	P2N_BLOB_BUCKET         - S3 bucket for papers/notebooks/artifacts
//	ANTHROPIC_API_KEY       - Reasoner/Extractor model credentials
//	OPENAI_API_KEY          - Shaper/rescue model credentials
//
// # Example
//
//	p2n ingest ./paper.pdf "Attention Is All You Need"
//	p2n extract <paper_id>
//	p2n plan <paper_id> <claim_id> [<claim_id>...] --budget 10
//	p2n materialize <plan_id>
//	p2n run <plan_id>
//	p2n report <paper_id>
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	blobs3 "github.com/PIP-Team-3/paper2notebook/blob/s3"
	"github.com/PIP-Team-3/paper2notebook/config"
	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/llmmodel/anthropic"
	"github.com/PIP-Team-3/paper2notebook/llmmodel/openai"
	"github.com/PIP-Team-3/paper2notebook/llmmodel/ratelimit"
	"github.com/PIP-Team-3/paper2notebook/pipeline"
	"github.com/PIP-Team-3/paper2notebook/planner"
	"github.com/PIP-Team-3/paper2notebook/runstream"
	"github.com/PIP-Team-3/paper2notebook/store/mongo"
	"github.com/PIP-Team-3/paper2notebook/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: p2n <ingest|extract|plan|materialize|run|report> ...")
	}
	cfg := config.Load()
	ctx := context.Background()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer cleanup()

	switch args[0] {
	case "ingest":
		return cmdIngest(ctx, svc, args[1:])
	case "extract":
		return cmdExtract(ctx, svc, args[1:])
	case "plan":
		return cmdPlan(ctx, svc, args[1:])
	case "materialize":
		return cmdMaterialize(ctx, svc, args[1:])
	case "run":
		return cmdRun(ctx, svc, args[1:])
	case "report":
		return cmdReport(ctx, svc, args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func buildService(ctx context.Context, cfg config.Config) (*pipeline.Service, func(), error) {
	mongoClient, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	metaStore, err := mongo.New(mongo.Options{Client: mongoClient, Database: cfg.MongoDB})
	if err != nil {
		return nil, nil, fmt.Errorf("build mongo store: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BlobRegion))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)
	blobStore, err := blobs3.New(blobs3.Options{
		Client:    s3Client,
		Presigner: s3.NewPresignClient(s3Client),
		Bucket:    cfg.BlobBucket,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build blob store: %w", err)
	}

	registry, err := dataset.LoadEmbedded()
	if err != nil {
		return nil, nil, fmt.Errorf("load dataset registry: %w", err)
	}
	blockList, err := dataset.LoadEmbeddedBlockList()
	if err != nil {
		return nil, nil, fmt.Errorf("load dataset block list: %w", err)
	}

	anthropicClient, err := anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if err != nil {
		return nil, nil, fmt.Errorf("build anthropic client: %w", err)
	}
	openaiClient, err := openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		return nil, nil, fmt.Errorf("build openai client: %w", err)
	}
	rescueOpenAI, err := openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.RescueModel)
	if err != nil {
		return nil, nil, fmt.Errorf("build rescue client: %w", err)
	}

	anthropicLimited := ratelimit.New(cfg.AnthropicTPM, cfg.AnthropicTPM).Wrap(anthropicClient)
	openaiLimited := ratelimit.New(cfg.OpenAITPM, cfg.OpenAITPM).Wrap(openaiClient)
	rescueLimited := ratelimit.New(cfg.OpenAITPM, cfg.OpenAITPM).Wrap(rescueOpenAI)

	broker := runstream.New(metaStore.Events())

	svc := pipeline.New(pipeline.Service{
		Store:    metaStore,
		Blob:     blobStore,
		Broker:   broker,
		Registry: registry,
		Blocked:  blockList,
		PlannerClients: planner.Clients{
			Reasoner:        anthropicLimited,
			ReasonerModel:   cfg.AnthropicModel,
			Shaper:          openaiLimited,
			ShaperModel:     cfg.OpenAIModel,
			Rescue:          rescueLimited,
			RescueModel:     cfg.RescueModel,
			TwoStageEnabled: true,
		},
		ExtractClient:    anthropicLimited,
		ExtractModel:     cfg.AnthropicModel,
		MinConfidence:    cfg.ExtractMinConfidence,
		Env:              cfg.Env,
		PythonExecutable: cfg.PythonExecutable,
		Logger:           telemetry.NewClueLogger(),
		Tracer:           telemetry.NewClueTracer(),
		Metrics:          telemetry.NewClueMetrics(),
	})

	cleanup := func() {
		_ = mongoClient.Disconnect(ctx)
	}
	return svc, cleanup, nil
}

func cmdIngest(ctx context.Context, svc *pipeline.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: p2n ingest <pdf_path> <title>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	paper, err := svc.Ingest(ctx, data, "", strings.Join(args[1:], " "), nil)
	if err != nil {
		return err
	}
	fmt.Println(paper.ID)
	return nil
}

func cmdExtract(ctx context.Context, svc *pipeline.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: p2n extract <paper_id>")
	}
	claims, err := svc.Extract(ctx, args[0], func(eventType, detail string) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", eventType, detail)
	})
	if err != nil {
		return err
	}
	for _, c := range claims {
		fmt.Printf("%s\t%s=%.4g%s\t%s\n", c.ID, c.MetricName, c.MetricValue, c.Units, c.SourceCitation)
	}
	return nil
}

func cmdPlan(ctx context.Context, svc *pipeline.Service, args []string) error {
	budget := 10
	var claimIDs []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--budget" && i+1 < len(args) {
			if v, err := strconv.Atoi(args[i+1]); err == nil {
				budget = v
			}
			i++
			continue
		}
		claimIDs = append(claimIDs, args[i])
	}
	if len(claimIDs) < 2 {
		return fmt.Errorf("usage: p2n plan <paper_id> <claim_id>... [--budget N]")
	}
	paperID, claimIDs := claimIDs[0], claimIDs[1:]
	record, err := svc.Plan(ctx, paperID, claimIDs, budget)
	if err != nil {
		return err
	}
	fmt.Println(record.ID)
	return nil
}

func cmdMaterialize(ctx context.Context, svc *pipeline.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: p2n materialize <plan_id>")
	}
	notebookPath, fingerprint, err := svc.Materialize(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", notebookPath, fingerprint)
	return nil
}

func cmdRun(ctx context.Context, svc *pipeline.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: p2n run <plan_id>")
	}
	runID, err := svc.Run(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(runID)
	return nil
}

func cmdReport(ctx context.Context, svc *pipeline.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: p2n report <paper_id>")
	}
	gap, err := svc.Report(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(gap.Summary())
	return nil
}
