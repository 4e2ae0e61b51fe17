package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/greensight/sustain-engine/config"
	"github.com/greensight/sustain-engine/internal/domain/entity"
	"github.com/greensight/sustain-engine/internal/domain/repository"
	"github.com/greensight/sustain-engine/internal/infrastructure/persistence"
	"github.com/greensight/sustain-engine/pkg/database"
	"github.com/greensight/sustain-engine/pkg/factors"
)

var (
	companyCount = flag.Int("companies", 200, "Number of companies to generate")
	productCount = flag.Int("products", 4, "Number of products per company")
	historyMonth = flag.Int("months", 24, "Months of facility history per company")
	batchSize    = flag.Int("batch", 2000, "Batch size for COPY operations")
	workerCount  = flag.Int("workers", 8, "Number of parallel workers")
	packPath     = flag.String("pack", "configs/factors.yaml", "Factor pack to load")
)

func main() {
	flag.Parse()
	godotenv.Load()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       SUSTAINABILITY METRICS ENGINE - DATA SEEDER             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	log.Printf("Configuration:")
	log.Printf("  Companies:        %d", *companyCount)
	log.Printf("  Products/Company: %d", *productCount)
	log.Printf("  History Months:   %d", *historyMonth)
	log.Printf("  Batch Size:       %d", *batchSize)
	log.Printf("  Workers:          %d", *workerCount)
	log.Printf("  CPU Cores:        %d", runtime.NumCPU())
	fmt.Println()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	companyRepo := persistence.NewCompanyRepository(pool)
	productRepo := persistence.NewProductRepository(pool)
	facilityRepo := persistence.NewFacilityRecordRepository(pool)
	factorRepo := persistence.NewImpactFactorRepository(pool)
	kpiDefRepo := persistence.NewKpiDefinitionRepository(pool)
	goalRepo := persistence.NewGoalRepository(pool)

	overallStart := time.Now()
	var metrics performanceMetrics

	// Phase 1: Factor pack
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	phaseStart := time.Now()
	if err := seedFactorPack(ctx, factorRepo); err != nil {
		log.Fatalf("Failed to seed factor pack: %v", err)
	}
	metrics.FactorTime = time.Since(phaseStart)

	// Phase 2: Companies, products, facility history, KPIs, goals
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	phaseStart = time.Now()
	if err := seedCompanies(ctx, companyRepo, productRepo, facilityRepo, kpiDefRepo, goalRepo, &metrics); err != nil {
		log.Fatalf("Failed to seed companies: %v", err)
	}
	metrics.CompanyTime = time.Since(phaseStart)

	metrics.TotalTime = time.Since(overallStart)
	printPerformanceSummary(metrics)
}

type performanceMetrics struct {
	Companies   int64
	Products    int64
	Records     int64
	FactorTime  time.Duration
	CompanyTime time.Duration
	TotalTime   time.Duration
}

func printPerformanceSummary(m performanceMetrics) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                  PERFORMANCE SUMMARY                          ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  %-20s %38v ║\n", "Total Time:", m.TotalTime.Round(time.Millisecond))
	fmt.Printf("║  %-20s %38v ║\n", "Factor Pack:", m.FactorTime.Round(time.Millisecond))
	fmt.Printf("║  %-20s %38v ║\n", "Company Data:", m.CompanyTime.Round(time.Millisecond))
	fmt.Println("╠───────────────────────────────────────────────────────────────╣")
	fmt.Printf("║  %-20s %38d ║\n", "Companies:", m.Companies)
	fmt.Printf("║  %-20s %38d ║\n", "Products:", m.Products)
	fmt.Printf("║  %-20s %38d ║\n", "Facility Records:", m.Records)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}

func seedFactorPack(ctx context.Context, repo repository.ImpactFactorRepository) error {
	log.Printf("Loading factor pack from %s...", *packPath)

	table, err := factors.LoadPack(*packPath)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([]*entity.StoredFactor, 0, table.Len())
	for _, f := range table.Factors() {
		rows = append(rows, &entity.StoredFactor{
			ID:            uuid.New(),
			Version:       table.Version(),
			Key:           f.Key,
			Pathway:       f.Pathway,
			Unit:          f.Unit,
			KgCO2ePerUnit: f.KgCO2ePerUnit,
			WaterLPerUnit: f.WaterLPerUnit,
			CreatedAt:     now,
		})
	}

	inserted, err := repo.CreateBatch(ctx, rows)
	if err != nil {
		return err
	}
	log.Printf("Loaded factor pack version %s (%d factors)", table.Version(), inserted)
	return nil
}

// Product archetypes built from factor pack keys so seeded data always
// resolves against the reference table.
type productArchetype struct {
	name        string
	ingredients []entity.Ingredient
	packaging   []entity.PackagingComponent
}

var archetypes = []productArchetype{
	{
		name: "Agave Spirit 750ml",
		ingredients: []entity.Ingredient{
			{Name: "agave", Amount: 0.7, Unit: "kg"},
			{Name: "spring_water", Amount: 0.45, Unit: "l"},
		},
		packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "glass", WeightGrams: 480, RecycledContentPercent: 40},
			{Kind: entity.PackagingLabel, MaterialKey: "paper_label", WeightGrams: 3},
		},
	},
	{
		name: "Sparkling Water 500ml",
		ingredients: []entity.Ingredient{
			{Name: "spring_water", Amount: 0.5, Unit: "l"},
			{Name: "citric_acid", Amount: 1.2, Unit: "g"},
		},
		packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "pet", WeightGrams: 24, RecycledContentPercent: 30},
			{Kind: entity.PackagingLabel, MaterialKey: "paper_label", WeightGrams: 1.5},
		},
	},
	{
		name: "Craft Lager 330ml",
		ingredients: []entity.Ingredient{
			{Name: "barley_malt", Amount: 55, Unit: "g"},
			{Name: "spring_water", Amount: 0.4, Unit: "l"},
		},
		packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "aluminum", WeightGrams: 14, RecycledContentPercent: 68},
		},
	},
	{
		name: "Red Wine 750ml",
		ingredients: []entity.Ingredient{
			{Name: "grape_juice", Amount: 0.75, Unit: "l"},
		},
		packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "glass", WeightGrams: 520, RecycledContentPercent: 55},
			{Kind: entity.PackagingLabel, MaterialKey: "paper_label", WeightGrams: 4},
			{Kind: entity.PackagingSecondaryBox, MaterialKey: "cardboard", WeightGrams: 60, RecycledContentPercent: 80},
		},
	},
	{
		name: "Cane Soda 330ml",
		ingredients: []entity.Ingredient{
			{Name: "cane_sugar", Amount: 35, Unit: "g"},
			{Name: "spring_water", Amount: 0.32, Unit: "l"},
			{Name: "citric_acid", Amount: 0.8, Unit: "g"},
		},
		packaging: []entity.PackagingComponent{
			{Kind: entity.PackagingBottle, MaterialKey: "aluminum", WeightGrams: 13, RecycledContentPercent: 70},
		},
	},
}

var countries = []string{"DE", "FR", "NL", "ES", "IT", "PL", "SE", "PT", "MX", "US"}

var kpiTemplates = []struct {
	key        string
	name       string
	unit       string
	expression string
}{
	{"total_emissions", "Total GHG Emissions", "tCO2e", ""},
	{"emissions_intensity", "Emissions per 1000 Units", "kgCO2e", "production_volume > 0 ? total_co2e / production_volume * 1000 : 0.0"},
	{"electricity_use", "Electricity Consumption", "kWh", "electricity_kwh"},
	{"scope12_share", "Operational Emissions", "tCO2e", "scope1_direct + scope2_purchased_energy"},
}

func seedCompanies(
	ctx context.Context,
	companyRepo repository.CompanyRepository,
	productRepo repository.ProductRepository,
	facilityRepo repository.FacilityRecordRepository,
	kpiDefRepo repository.KpiDefinitionRepository,
	goalRepo repository.GoalRepository,
	metrics *performanceMetrics,
) error {
	log.Printf("Seeding %d companies with products, facility history, KPIs, and goals...", *companyCount)

	idxChan := make(chan int, *workerCount*2)

	var (
		completedCompanies int64
		completedProducts  int64
		completedRecords   int64
		wg                 sync.WaitGroup
	)

	// Progress reporter
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			c := atomic.LoadInt64(&completedCompanies)
			if c >= int64(*companyCount) {
				return
			}
			log.Printf("Progress: companies=%d/%d (%.1f%%)",
				c, *companyCount, float64(c)/float64(*companyCount)*100)
		}
	}()

	for w := 0; w < *workerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			productBatch := make([]*entity.Product, 0, *batchSize)
			recordBatch := make([]*entity.MonthlyFacilityRecord, 0, *batchSize)

			flush := func() {
				if len(productBatch) > 0 {
					if _, err := productRepo.CreateBatch(ctx, productBatch); err != nil {
						log.Printf("Worker %d: failed to insert products: %v", workerID, err)
					}
					atomic.AddInt64(&completedProducts, int64(len(productBatch)))
					productBatch = productBatch[:0]
				}
				if len(recordBatch) > 0 {
					if _, err := facilityRepo.UpsertBatch(ctx, recordBatch); err != nil {
						log.Printf("Worker %d: failed to insert facility records: %v", workerID, err)
					}
					atomic.AddInt64(&completedRecords, int64(len(recordBatch)))
					recordBatch = recordBatch[:0]
				}
			}

			for idx := range idxChan {
				now := time.Now().UTC()
				company := &entity.Company{
					ID:        uuid.New(),
					Name:      fmt.Sprintf("Beverage Co %04d", idx),
					Country:   countries[idx%len(countries)],
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := companyRepo.Create(ctx, company); err != nil {
					log.Printf("Worker %d: failed to insert company %d: %v", workerID, idx, err)
					continue
				}

				productBatch = append(productBatch, buildProducts(rng, company.ID, now)...)
				recordBatch = append(recordBatch, buildHistory(rng, company.ID, now)...)

				if err := seedKpisAndGoals(ctx, rng, kpiDefRepo, goalRepo, company.ID, now); err != nil {
					log.Printf("Worker %d: failed to seed KPIs for company %d: %v", workerID, idx, err)
				}

				atomic.AddInt64(&completedCompanies, 1)
				if len(productBatch) >= *batchSize || len(recordBatch) >= *batchSize {
					flush()
				}
			}
			flush()
		}(w)
	}

	for i := 0; i < *companyCount; i++ {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()

	metrics.Companies = atomic.LoadInt64(&completedCompanies)
	metrics.Products = atomic.LoadInt64(&completedProducts)
	metrics.Records = atomic.LoadInt64(&completedRecords)
	log.Printf("Completed: %d companies, %d products, %d facility records",
		metrics.Companies, metrics.Products, metrics.Records)
	return nil
}

func buildProducts(rng *rand.Rand, companyID uuid.UUID, now time.Time) []*entity.Product {
	products := make([]*entity.Product, 0, *productCount)
	for j := 0; j < *productCount; j++ {
		arch := archetypes[(j+rng.Intn(len(archetypes)))%len(archetypes)]
		volume := float64(rng.Intn(990_000) + 10_000)
		distance := float64(rng.Intn(1900) + 100)
		recycling := float64(rng.Intn(60) + 30)

		p := &entity.Product{
			ID:                     uuid.New(),
			CompanyID:              companyID,
			Name:                   fmt.Sprintf("%s #%d", arch.name, j+1),
			Ingredients:            arch.ingredients,
			Packaging:              arch.packaging,
			AnnualProductionVolume: &volume,
			ProductionUnit:         "unit",
			AvgTransportDistanceKm: &distance,
			RecyclingRatePercent:   &recycling,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		// Some products have no reported volume yet.
		if rng.Intn(10) == 0 {
			p.AnnualProductionVolume = nil
		}
		products = append(products, p)
	}
	return products
}

func buildHistory(rng *rand.Rand, companyID uuid.UUID, now time.Time) []*entity.MonthlyFacilityRecord {
	records := make([]*entity.MonthlyFacilityRecord, 0, *historyMonth)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	baseElectricity := float64(rng.Intn(40_000) + 10_000)
	baseGas := float64(rng.Intn(4_000) + 500)
	baseWater := float64(rng.Intn(900) + 100)
	baseVolume := float64(rng.Intn(80_000) + 5_000)

	for i := *historyMonth; i >= 1; i-- {
		// Roughly 1 in 12 months never gets reported.
		if rng.Intn(12) == 0 {
			continue
		}
		month := current.AddDate(0, -i, 0)
		seasonal := 1 + 0.15*float64(rng.Intn(3)-1)

		electricity := baseElectricity * seasonal
		gas := baseGas * seasonal
		water := baseWater * seasonal
		volume := baseVolume * seasonal

		record := &entity.MonthlyFacilityRecord{
			ID:               uuid.New(),
			CompanyID:        companyID,
			Month:            month,
			ElectricityKwh:   &electricity,
			NaturalGasM3:     &gas,
			WaterM3:          &water,
			ProductionVolume: &volume,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		// Occasionally a month only reports electricity.
		if rng.Intn(15) == 0 {
			record.NaturalGasM3 = nil
			record.WaterM3 = nil
			record.ProductionVolume = nil
		}
		records = append(records, record)
	}
	return records
}

func seedKpisAndGoals(
	ctx context.Context,
	rng *rand.Rand,
	kpiDefRepo repository.KpiDefinitionRepository,
	goalRepo repository.GoalRepository,
	companyID uuid.UUID,
	now time.Time,
) error {
	for _, tpl := range kpiTemplates {
		def := &entity.KpiDefinition{
			ID:         uuid.New(),
			CompanyID:  companyID,
			Key:        tpl.key,
			Name:       tpl.name,
			Unit:       tpl.unit,
			Expression: tpl.expression,
			CreatedAt:  now,
		}
		if err := kpiDefRepo.Create(ctx, def); err != nil {
			return err
		}

		// A reduction goal on the headline KPI only.
		if tpl.key != "total_emissions" {
			continue
		}
		goal := &entity.Goal{
			ID:                     uuid.New(),
			CompanyID:              companyID,
			KpiDefinitionID:        def.ID,
			BaselineValue:          float64(rng.Intn(4_000) + 500),
			TargetReductionPercent: float64(rng.Intn(30) + 10),
			TargetDate:             now.AddDate(rng.Intn(3)+1, 0, 0),
			CreatedAt:              now,
		}
		if err := goalRepo.Upsert(ctx, goal); err != nil {
			return err
		}
	}
	return nil
}
