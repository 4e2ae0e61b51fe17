package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/greensight/sustain-engine/config"
	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
	"github.com/greensight/sustain-engine/internal/infrastructure/persistence"
	"github.com/greensight/sustain-engine/internal/modules/emissions"
	"github.com/greensight/sustain-engine/internal/modules/facility"
	"github.com/greensight/sustain-engine/internal/modules/impact"
	"github.com/greensight/sustain-engine/internal/modules/kpi"
	"github.com/greensight/sustain-engine/pkg/database"
	"github.com/greensight/sustain-engine/pkg/factors"
)

func main() {
	godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().
		Int("workers", cfg.Worker.Count).
		Int("batch_size", cfg.Worker.BatchSize).
		Msg("starting worker service")

	// Database connection
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Initialize repositories
	companyRepo := persistence.NewCompanyRepository(pool)
	productRepo := persistence.NewProductRepository(pool)
	facilityRepo := persistence.NewFacilityRecordRepository(pool)
	factorRepo := persistence.NewImpactFactorRepository(pool)
	kpiDefRepo := persistence.NewKpiDefinitionRepository(pool)
	snapshotRepo := persistence.NewKpiSnapshotRepository(pool)
	goalRepo := persistence.NewGoalRepository(pool)
	jobRepo := persistence.NewBatchJobRepository(pool)

	table, err := loadFactorTable(ctx, cfg, factorRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load factor table")
	}
	log.Info().Str("version", table.Version()).Msg("factor table loaded")

	// Initialize calculation modules
	impactCalc := impact.NewCalculator(table)
	facilityAgg := facility.NewAggregator(facilityRepo, cfg.Engine.DependencyTimeout)
	engine := emissions.NewEngine(productRepo, facilityAgg, impactCalc, table, cfg.Engine.DependencyTimeout)
	trend := kpi.NewTrendAnalyzer(cfg.Engine.TrendDeadbandPercent)
	tracker := kpi.NewGoalTracker(cfg.Engine.AtRiskTimeFraction, cfg.Engine.AtRiskProgressFraction)
	snapshots := kpi.NewSnapshotService(snapshotRepo, kpiDefRepo, goalRepo, jobRepo, engine, facilityAgg, trend, tracker, cfg.Engine.DependencyTimeout)
	recompute := kpi.NewRecomputePool(snapshots, companyRepo, jobRepo, cfg.Worker.Count, cfg.Worker.BatchSize, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("worker service ready, waiting for jobs")

	// Check for pending jobs periodically
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			log.Info().Msg("shutting down worker service")
			cancel()
			return

		case <-ticker.C:
			jobs, err := jobRepo.ListRecent(ctx, 10)
			if err != nil {
				log.Error().Err(err).Msg("failed to list jobs")
				continue
			}

			for _, job := range jobs {
				if job.Status != entity.JobStatusPending {
					continue
				}
				log.Info().
					Str("job_id", job.ID.String()).
					Str("job_type", string(job.JobType)).
					Msg("found pending job")
				processJob(ctx, log, snapshots, recompute, jobRepo, job)
			}
		}
	}
}

func processJob(
	ctx context.Context,
	log zerolog.Logger,
	snapshots *kpi.SnapshotService,
	recompute *kpi.RecomputePool,
	jobRepo repository.BatchJobRepository,
	job *entity.BatchJob,
) {
	start := time.Now()

	var err error
	switch job.JobType {
	case entity.JobTypeSnapshotHistory:
		companyID, monthsBack, perr := snapshotHistoryParams(job)
		if perr != nil {
			jobRepo.Fail(ctx, job.ID, perr.Error())
			log.Error().Err(perr).Str("job_id", job.ID.String()).Msg("bad job metadata")
			return
		}
		err = snapshots.InitializeHistoricalSnapshots(ctx, job.ID, companyID, monthsBack)

	case entity.JobTypeRecomputeAll:
		err = recompute.RecomputeAll(ctx, job.ID, time.Now().UTC())

	default:
		log.Warn().
			Str("job_id", job.ID.String()).
			Str("job_type", string(job.JobType)).
			Msg("unknown job type, skipping")
		return
	}

	if err != nil {
		jobRepo.Fail(ctx, job.ID, err.Error())
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("job failed")
		return
	}
	log.Info().
		Str("job_id", job.ID.String()).
		Dur("elapsed", time.Since(start)).
		Msg("job completed")
}

func snapshotHistoryParams(job *entity.BatchJob) (uuid.UUID, int, error) {
	rawID, ok := job.Metadata["company_id"].(string)
	if !ok {
		return uuid.Nil, 0, errMetadata("company_id")
	}
	companyID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, 0, errMetadata("company_id")
	}
	// JSONB numbers decode as float64.
	months, ok := job.Metadata["months_back"].(float64)
	if !ok || months < 1 {
		return uuid.Nil, 0, errMetadata("months_back")
	}
	return companyID, int(months), nil
}

func errMetadata(field string) error {
	return fmt.Errorf("invalid or missing job metadata field: %s", field)
}

func loadFactorTable(ctx context.Context, cfg *config.Config, repo repository.ImpactFactorRepository) (*factors.Table, error) {
	if cfg.Engine.FactorPackPath != "" {
		return factors.LoadPack(cfg.Engine.FactorPackPath)
	}
	version, err := repo.LatestVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve factor version: %w", err)
	}
	if version == "" {
		return nil, fmt.Errorf("no factor pack loaded; run the seeder or set ENGINE_FACTOR_PACK_PATH")
	}
	stored, err := repo.ListAll(ctx, version)
	if err != nil {
		return nil, err
	}
	list := make([]factors.Factor, len(stored))
	for i, f := range stored {
		list[i] = factors.Factor{
			Key:           f.Key,
			Pathway:       f.Pathway,
			Unit:          f.Unit,
			KgCO2ePerUnit: f.KgCO2ePerUnit,
			WaterLPerUnit: f.WaterLPerUnit,
		}
	}
	return factors.NewTable(version, list)
}
