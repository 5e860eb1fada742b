package app

import (
	"context"
	"fmt"
	"time"

	"servicebay/internal/util"
	"servicebay/pkg/domain"
)

type catalogEntry struct {
	name        string
	description string
	basePrice   float64
	minutes     int
	category    domain.ServiceCategory
	vehicleType domain.VehicleType
}

var defaultCatalog = []catalogEntry{
	{"Regular Oil Change", "Complete oil and filter change with multi-point inspection", 45, 30, domain.CategoryMaintenance, domain.VehicleBoth},
	{"Full Service", "Comprehensive maintenance including oil change, brake check, and fluid top-up", 120, 90, domain.CategoryMaintenance, domain.VehicleBoth},
	{"Brake Service", "Brake pad replacement and brake system inspection", 180, 120, domain.CategoryRepair, domain.VehicleBoth},
	{"Premium Car Wash", "Exterior wash, interior cleaning, and wax application", 35, 45, domain.CategoryWash, domain.VehicleCar},
	{"Motorbike Wash & Detail", "Complete cleaning and detailing for motorcycles", 25, 30, domain.CategoryWash, domain.VehicleMotorbike},
	{"Annual Safety Inspection", "Comprehensive safety and emissions inspection", 75, 60, domain.CategoryInspection, domain.VehicleBoth},
}

// SeedCatalog inserts the default services when the catalog is empty and
// returns how many were inserted. Calling it again is a no-op.
func (a *App) SeedCatalog(ctx context.Context) (int, error) {
	base := a.now().UTC()
	services := make([]domain.Service, 0, len(defaultCatalog))
	for i, e := range defaultCatalog {
		services = append(services, domain.Service{
			ID:                       util.NewEntityID(),
			Name:                     e.name,
			Description:              e.description,
			BasePrice:                e.basePrice,
			EstimatedDurationMinutes: e.minutes,
			Category:                 e.category,
			VehicleType:              e.vehicleType,
			// spaced so catalog order survives backends that sort by time
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	n, err := a.store.SeedServices(services)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	if n > 0 {
		util.LoggerFromContext(ctx).Info("catalog seeded", "services", n)
	}
	return n, nil
}

// SeedCatalogAs seeds on behalf of an API caller. Only staff may.
func (a *App) SeedCatalogAs(ctx context.Context, callerID string) (int, error) {
	if callerID == "" {
		return 0, ErrUnauthenticated
	}
	if !a.isStaff(callerID) {
		return 0, fmt.Errorf("seed catalog: %w", ErrForbidden)
	}
	return a.SeedCatalog(ctx)
}

func (a *App) ListServices() ([]domain.Service, error) {
	return a.store.ListServices()
}

// ListServicesByCategory rejects unknown categories instead of returning an
// empty list.
func (a *App) ListServicesByCategory(category string) ([]domain.Service, error) {
	c := domain.ServiceCategory(category)
	if !c.Valid() {
		return nil, invalidInput("unknown category %q", category)
	}
	return a.store.ListServicesByCategory(c)
}

func (a *App) GetService(id string) (domain.Service, error) {
	svc, ok, err := a.store.GetService(id)
	if err != nil {
		return domain.Service{}, err
	}
	if !ok {
		return domain.Service{}, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	return svc, nil
}

// serviceLookup resolves service IDs once per call.
func (a *App) serviceLookup() func(id string) (*domain.Service, error) {
	cache := make(map[string]*domain.Service)
	return func(id string) (*domain.Service, error) {
		if svc, ok := cache[id]; ok {
			return svc, nil
		}
		svc, ok, err := a.store.GetService(id)
		if err != nil {
			return nil, err
		}
		var out *domain.Service
		if ok {
			out = &svc
		}
		cache[id] = out
		return out, nil
	}
}
