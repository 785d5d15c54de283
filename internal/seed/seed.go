// Package seed populates a store with realistic demo traceability chains.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"agritrace/internal/core"
	"agritrace/pkg/domain"
)

// DefaultCount is the number of full chains created when Options.Count is zero.
const DefaultCount = 12

// Options controls a seeding run.
type Options struct {
	Count int
	Clean bool
	Seed  uint64
	Now   time.Time
}

// Summary reports what a run created.
type Summary struct {
	Deleted         int `json:"deleted"`
	Lots            int `json:"lots"`
	Transformations int `json:"transformations"`
	Logistics       int `json:"logistics"`
	Delivered       int `json:"delivered"`
}

var (
	productTypes = []string{"Mango Orgánico", "Mango Tommy Atkins", "Mango Ataulfo", "Aguacate Hass", "Limón Persa", "Naranja Valencia"}
	locations    = []string{"Finca San José, Valle Central", "Finca Los Pinos, Guanacaste", "Finca El Roble, Cartago", "Finca La Esperanza, Alajuela", "Finca Santa Fe, Puntarenas", "Finca Los Mangos, Limón"}
	people       = []string{"Juan Pérez", "María González", "Carlos Ramírez", "Ana Martínez", "Roberto Sánchez", "Laura Fernández"}
	destinations = []string{"Supermercado Central", "Walmart Costa Rica", "Auto Mercado", "Palí", "Mas x Menos", "Super Compro"}
	cities       = []string{"San José", "Alajuela", "Cartago", "Heredia"}
	packages     = []string{"Caja de cartón", "Bolsa plástica", "Canasta de plástico", "Caja de madera"}
	outcomes     = []core.QualityOutcome{core.QualityApproved, core.QualityApproved, core.QualityApproved, core.QualityConditional, core.QualityRejected}
	states       = []core.DeliveryState{core.StateDelivered, core.StateDelivered, core.StateDelivered, core.StateInTransit, core.StateDelayed}
)

var lotCodePattern = regexp.MustCompile(`^LOTE-\d{4}-(\d+)$`)

// Seeder writes demo data through the service so every record passes the
// same validation and code assignment as user input.
type Seeder struct {
	svc *core.Service
	rng *rand.Rand
}

// New returns a seeder writing through svc.
func New(svc *core.Service) *Seeder {
	return &Seeder{svc: svc}
}

// Run seeds opts.Count chains plus three lots without transformation and two
// transformed lots awaiting transport. 80% of the chains get logistics.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(opts.Now.UnixNano())
	}
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var sum Summary
	if opts.Clean {
		deleted, err := s.clean(ctx)
		if err != nil {
			return sum, err
		}
		sum.Deleted = deleted
	}

	year := opts.Now.Year()
	next := s.nextLotNumber()
	base := domain.CivilDate(opts.Now).AddDate(0, 0, -30)

	for i := 0; i < opts.Count; i++ {
		harvest := base.AddDate(0, 0, -s.rng.IntN(21))
		lot, err := s.createLot(ctx, fmt.Sprintf("LOTE-%d-%03d", year, next), harvest, 2.5, 15)
		if err != nil {
			return sum, err
		}
		next++
		sum.Lots++

		outcome := pick(s.rng, outcomes)
		tr, err := s.createTransformation(ctx, lot, 8, 6, 4, outcome)
		if err != nil {
			return sum, err
		}
		sum.Transformations++

		if float64(i) >= float64(opts.Count)*0.8 || outcome == core.QualityRejected {
			continue
		}
		l, err := s.createLogistics(ctx, tr, fmt.Sprintf("GUI-%d-%04d", year, next-1))
		if err != nil {
			return sum, err
		}
		sum.Logistics++
		if l.State == core.StateDelivered {
			sum.Delivered++
		}
	}

	for i := 0; i < 3; i++ {
		harvest := base.AddDate(0, 0, -s.rng.IntN(16))
		if _, err := s.createLot(ctx, fmt.Sprintf("LOTE-%d-%03d", year, next), harvest, 2.5, 10); err != nil {
			return sum, err
		}
		next++
		sum.Lots++
	}

	for i := 0; i < 2; i++ {
		harvest := base.AddDate(0, 0, -s.rng.IntN(11))
		lot, err := s.createLot(ctx, fmt.Sprintf("LOTE-%d-%03d", year, next), harvest, 3, 12)
		if err != nil {
			return sum, err
		}
		next++
		sum.Lots++
		if _, err := s.createTransformation(ctx, lot, 9, 5, 3, core.QualityApproved); err != nil {
			return sum, err
		}
		sum.Transformations++
	}
	return sum, nil
}

func (s *Seeder) clean(ctx context.Context) (int, error) {
	lots := s.svc.ListLots()
	for _, lot := range lots {
		if _, err := s.svc.DeleteLot(ctx, lot.ID); err != nil {
			return 0, fmt.Errorf("delete lot %s: %w", lot.Code, err)
		}
	}
	return len(lots), nil
}

// nextLotNumber continues after the highest existing LOTE-YYYY-NNN number.
func (s *Seeder) nextLotNumber() int {
	highest := 0
	for _, lot := range s.svc.ListLots() {
		m := lotCodePattern.FindStringSubmatch(lot.Code)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func (s *Seeder) createLot(ctx context.Context, code string, harvest time.Time, minArea, maxArea float64) (core.Lot, error) {
	lot, _, err := s.svc.CreateLot(ctx, core.Lot{
		Code:         code,
		ProductType:  pick(s.rng, productTypes),
		Location:     pick(s.rng, locations),
		AreaHectares: round2(minArea + s.rng.Float64()*(maxArea-minArea)),
		HarvestDate:  harvest,
		Responsible:  pick(s.rng, people),
		Organic:      s.rng.IntN(2) == 0,
	})
	if err != nil {
		return core.Lot{}, fmt.Errorf("seed lot %s: %w", code, err)
	}
	return lot, nil
}

func (s *Seeder) createTransformation(ctx context.Context, lot core.Lot, washHour, packHours, qcHours int, outcome core.QualityOutcome) (core.Transformation, error) {
	washed := lot.HarvestDate.AddDate(0, 0, 1).Add(time.Duration(washHour) * time.Hour)
	packed := washed.Add(time.Duration(packHours) * time.Hour)
	notes := "Control de calidad realizado según protocolo"
	if outcome != core.QualityApproved {
		notes = "Se requieren ajustes"
	}
	tr, _, err := s.svc.CreateTransformation(ctx, core.Transformation{
		LotID:              lot.ID,
		WashedAt:           washed,
		WashTemperature:    round2(15 + s.rng.Float64()*15),
		WashResponsible:    pick(s.rng, people),
		PackedAt:           packed,
		PackageType:        pick(s.rng, packages),
		UnitCount:          500 + s.rng.IntN(4501),
		PackResponsible:    pick(s.rng, people),
		QualityCheckedAt:   packed.Add(time.Duration(qcHours) * time.Hour),
		QualityOutcome:     outcome,
		QualityNotes:       &notes,
		QualityResponsible: pick(s.rng, people),
	})
	if err != nil {
		return core.Transformation{}, fmt.Errorf("seed transformation for %s: %w", lot.Code, err)
	}
	return tr, nil
}

func (s *Seeder) createLogistics(ctx context.Context, tr core.Transformation, guide string) (core.Logistics, error) {
	departed := tr.QualityCheckedAt.Add(2 * time.Hour)
	minTemp := round2(2 + s.rng.Float64()*3)
	maxTemp := round2(5.5 + s.rng.Float64()*2.5)
	l, _, err := s.svc.CreateLogistics(ctx, core.Logistics{
		TransformationID:   tr.ID,
		GuideNumber:        guide,
		Vehicle:            fmt.Sprintf("ABC-%d", 100+s.rng.IntN(900)),
		Driver:             pick(s.rng, people),
		MinTemperature:     minTemp,
		MaxTemperature:     maxTemp,
		AvgTemperature:     round2((minTemp + maxTemp) / 2),
		DepartedAt:         departed,
		DeliveredAt:        departed.Add(time.Duration(4+s.rng.IntN(21)) * time.Hour),
		Destination:        pick(s.rng, destinations),
		DestinationAddress: fmt.Sprintf("Dirección del %s, %s", pick(s.rng, destinations), pick(s.rng, cities)),
		State:              pick(s.rng, states),
	})
	if err != nil {
		return core.Logistics{}, fmt.Errorf("seed logistics %s: %w", guide, err)
	}
	return l, nil
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
