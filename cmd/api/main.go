package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
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
	"github.com/greensight/sustain-engine/pkg/formula"
)

func main() {
	godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()

	cfg := config.Load()
	ctx := context.Background()

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

	// Factor table: from a YAML pack if configured, otherwise from the
	// latest version loaded in the database.
	table, err := loadFactorTable(ctx, cfg, factorRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load factor table")
	}
	log.Info().Str("version", table.Version()).Int("entries", table.Len()).Msg("factor table loaded")

	// Initialize calculation modules
	impactCalc := impact.NewCalculator(table)
	facilityAgg := facility.NewAggregator(facilityRepo, cfg.Engine.DependencyTimeout)
	engine := emissions.NewEngine(productRepo, facilityAgg, impactCalc, table, cfg.Engine.DependencyTimeout)
	trend := kpi.NewTrendAnalyzer(cfg.Engine.TrendDeadbandPercent)
	tracker := kpi.NewGoalTracker(cfg.Engine.AtRiskTimeFraction, cfg.Engine.AtRiskProgressFraction)
	snapshots := kpi.NewSnapshotService(snapshotRepo, kpiDefRepo, goalRepo, jobRepo, engine, facilityAgg, trend, tracker, cfg.Engine.DependencyTimeout)
	recompute := kpi.NewRecomputePool(snapshots, companyRepo, jobRepo, cfg.Worker.Count, cfg.Worker.BatchSize, log)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Sustainability Metrics API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "healthy",
			"factor_version": table.Version(),
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	})

	// API v1 routes
	api := app.Group("/api/v1")

	// Company endpoints
	api.Get("/companies", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		offset := c.QueryInt("offset", 0)
		companies, err := companyRepo.List(c.Context(), limit, offset)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		count, _ := companyRepo.Count(c.Context())
		return c.JSON(fiber.Map{
			"data":   companies,
			"total":  count,
			"limit":  limit,
			"offset": offset,
		})
	})

	api.Get("/companies/:id", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		company, err := companyRepo.GetByID(c.Context(), id)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		return c.JSON(company)
	})

	api.Get("/companies/:id/products", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		products, err := productRepo.ListByCompany(c.Context(), id)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"data": products})
	})

	// Per-unit impact for one product
	api.Get("/products/:id/unit-impact", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		product, err := productRepo.GetByID(c.Context(), id)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		unit, diags, err := impactCalc.ComputeUnitImpact(product)
		if err != nil {
			return c.Status(422).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"product_id":     product.ID,
			"unit_impact":    unit,
			"diagnostics":    diags,
			"factor_version": table.Version(),
		})
	})

	// Monthly facility record upsert
	api.Put("/companies/:id/facility-records", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		var record entity.MonthlyFacilityRecord
		if err := c.BodyParser(&record); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		now := time.Now().UTC()
		record.ID = uuid.New()
		record.CompanyID = id
		record.Month = time.Date(record.Month.Year(), record.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		record.CreatedAt = now
		record.UpdatedAt = now
		if err := facilityRepo.Upsert(c.Context(), &record); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(record)
	})

	// Facility aggregate
	api.Get("/companies/:id/facility-aggregate", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		asOf := queryDate(c, "as_of", time.Now().UTC())
		agg, err := facilityAgg.Aggregate(c.Context(), id, asOf)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"aggregate":                     agg,
			"monthly_avg_electricity_kwh":   agg.MonthlyAverage(agg.TotalElectricityKwh),
			"annual_projection_electricity": agg.AnnualProjection(agg.TotalElectricityKwh),
		})
	})

	// Emissions computation
	api.Get("/companies/:id/emissions", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		period := queryDate(c, "period", time.Now().UTC())
		result, err := engine.ComputeEmissions(c.Context(), id, period)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	// KPI definitions
	api.Get("/companies/:id/kpis", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		defs, err := kpiDefRepo.ListByCompany(c.Context(), id)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"data": defs})
	})

	api.Post("/companies/:id/kpis", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		var def entity.KpiDefinition
		if err := c.BodyParser(&def); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		if def.Expression != "" {
			if err := formula.DefaultParser.ValidateExpression(def.Expression, sampleEnv()); err != nil {
				return c.Status(422).JSON(fiber.Map{"error": fmt.Sprintf("invalid expression: %v", err)})
			}
		}
		def.ID = uuid.New()
		def.CompanyID = id
		def.CreatedAt = time.Now().UTC()
		if err := kpiDefRepo.Create(c.Context(), &def); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(def)
	})

	// Trend analysis
	api.Get("/companies/:id/kpis/:kpiId/trend", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		kpiID, err := uuid.Parse(c.Params("kpiId"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid kpi id"})
		}
		monthsBack := c.QueryInt("months_back", 12)
		result, err := snapshots.AnalyzeTrend(c.Context(), id, kpiID, monthsBack)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	// Goals
	api.Put("/companies/:id/kpis/:kpiId/goal", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		kpiID, err := uuid.Parse(c.Params("kpiId"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid kpi id"})
		}
		var goal entity.Goal
		if err := c.BodyParser(&goal); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		if goal.TargetReductionPercent <= 0 || goal.TargetReductionPercent > 100 {
			return c.Status(422).JSON(fiber.Map{"error": "target_reduction_percent must be in (0,100]"})
		}
		goal.ID = uuid.New()
		goal.CompanyID = id
		goal.KpiDefinitionID = kpiID
		goal.CreatedAt = time.Now().UTC()
		if err := goalRepo.Upsert(c.Context(), &goal); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(goal)
	})

	api.Get("/companies/:id/kpis/:kpiId/goal", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		kpiID, err := uuid.Parse(c.Params("kpiId"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid kpi id"})
		}
		progress, err := snapshots.ClassifyActiveGoal(c.Context(), id, kpiID)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(progress)
	})

	// Historical snapshot initialization
	api.Post("/companies/:id/snapshots/init", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		var body struct {
			MonthsBack int `json:"months_back"`
		}
		if err := c.BodyParser(&body); err != nil || body.MonthsBack <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "months_back must be a positive integer"})
		}

		now := time.Now()
		job := &entity.BatchJob{
			ID:           uuid.New(),
			JobType:      entity.JobTypeSnapshotHistory,
			Status:       entity.JobStatusPending,
			TotalRecords: int64(body.MonthsBack),
			Metadata: map[string]interface{}{
				"company_id":  id.String(),
				"months_back": body.MonthsBack,
			},
			CreatedAt: now,
			StartedAt: &now,
		}
		if err := jobRepo.Create(c.Context(), job); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		go func() {
			if err := snapshots.InitializeHistoricalSnapshots(context.Background(), job.ID, id, body.MonthsBack); err != nil {
				log.Error().Err(err).Str("job_id", job.ID.String()).Msg("snapshot history init failed")
				jobRepo.Fail(context.Background(), job.ID, err.Error())
			}
		}()

		return c.Status(202).JSON(fiber.Map{
			"job_id":  job.ID,
			"message": "Snapshot initialization started",
			"status":  job.Status,
		})
	})

	// Recompute current-period snapshots for every company
	api.Post("/recompute/all", func(c *fiber.Ctx) error {
		now := time.Now()
		job := &entity.BatchJob{
			ID:        uuid.New(),
			JobType:   entity.JobTypeRecomputeAll,
			Status:    entity.JobStatusPending,
			CreatedAt: now,
			StartedAt: &now,
		}
		if err := jobRepo.Create(c.Context(), job); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		go func() {
			if err := recompute.RecomputeAll(context.Background(), job.ID, time.Now().UTC()); err != nil {
				log.Error().Err(err).Str("job_id", job.ID.String()).Msg("recompute failed")
				jobRepo.Fail(context.Background(), job.ID, err.Error())
			}
		}()

		return c.Status(202).JSON(fiber.Map{
			"job_id":  job.ID,
			"message": "Recompute started",
			"status":  job.Status,
		})
	})

	// Job status endpoints
	api.Get("/jobs", func(c *fiber.Ctx) error {
		jobs, err := jobRepo.ListRecent(c.Context(), 20)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"data": jobs})
	})

	api.Get("/jobs/:id", func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
		}
		job, err := jobRepo.GetByID(c.Context(), id)
		if err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "not found"})
		}
		return c.JSON(fiber.Map{
			"job":      job,
			"progress": job.Progress(),
		})
	})

	// Stats endpoint
	api.Get("/stats", func(c *fiber.Ctx) error {
		companyCount, _ := companyRepo.Count(c.Context())
		return c.JSON(fiber.Map{
			"companies":      companyCount,
			"factor_version": table.Version(),
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		app.Shutdown()
	}()

	// Start server
	log.Info().Str("port", cfg.App.Port).Msg("starting API server")
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// loadFactorTable prefers a YAML pack on disk; absent that it rebuilds the
// table from the latest version persisted in the database.
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
		return nil, fmt.Errorf("failed to list factors: %w", err)
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

func queryDate(c *fiber.Ctx, key string, fallback time.Time) time.Time {
	if raw := c.Query(key); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return fallback
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrDependencyTimeout):
		return 504
	case errors.Is(err, entity.ErrInvalidInput):
		return 422
	default:
		return 500
	}
}

func sampleEnv() map[string]interface{} {
	return map[string]interface{}{
		"total_co2e":              1.0,
		"electricity_kwh":         1.0,
		"natural_gas_m3":          1.0,
		"water_m3":                1.0,
		"production_volume":       1.0,
		"month_count":             1.0,
		"scope1_direct":           1.0,
		"scope2_purchased_energy": 1.0,
		"cat1_purchased_goods":    1.0,
		"cat3_fuel_energy":        1.0,
		"cat4_transport":          1.0,
		"cat12_end_of_life":       1.0,
	}
}
