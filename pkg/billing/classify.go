package billing

import (
	"slices"
	"strings"

	"servicebay/pkg/domain"
)

// Breakdown is the structured part of a generated report.
type Breakdown struct {
	ServicesPerformed []string
	PartsReplaced     []domain.Part
	LaborCost         float64
}

type rule struct {
	keyword   string
	breakdown Breakdown
}

// Rules are checked in order; the first keyword found in the service name wins.
var rules = []rule{
	{
		keyword: "oil",
		breakdown: Breakdown{
			ServicesPerformed: []string{"Oil Change", "Oil Filter Replacement", "Fluid Level Check", "Multi-point Inspection"},
			PartsReplaced: []domain.Part{
				{Name: "Engine Oil (5W-30)", Cost: 35, Quantity: 1},
				{Name: "Oil Filter", Cost: 12, Quantity: 1},
			},
			LaborCost: 45,
		},
	},
	{
		keyword: "brake",
		breakdown: Breakdown{
			ServicesPerformed: []string{"Brake Pad Inspection", "Brake Fluid Check", "Rotor Inspection", "Brake System Test"},
			PartsReplaced: []domain.Part{
				{Name: "Front Brake Pads", Cost: 85, Quantity: 1},
				{Name: "Brake Fluid", Cost: 15, Quantity: 1},
			},
			LaborCost: 120,
		},
	},
	{
		keyword: "tire",
		breakdown: Breakdown{
			ServicesPerformed: []string{"Tire Rotation", "Tire Pressure Check", "Wheel Alignment Check", "Tread Depth Inspection"},
			LaborCost:         60,
		},
	},
	{
		keyword: "wash",
		breakdown: Breakdown{
			ServicesPerformed: []string{"Exterior Wash", "Interior Vacuum", "Window Cleaning", "Tire Shine"},
			LaborCost:         35,
		},
	},
}

var fallback = Breakdown{
	ServicesPerformed: []string{"General Inspection", "Fluid Level Check", "Battery Test", "Light Check"},
	PartsReplaced:     []domain.Part{{Name: "Air Filter", Cost: 25, Quantity: 1}},
	LaborCost:         75,
}

// Classify maps a service name to its fixed breakdown. Matching is a
// case-insensitive substring test. The returned slices are copies.
func Classify(serviceName string) Breakdown {
	name := strings.ToLower(serviceName)
	for _, r := range rules {
		if strings.Contains(name, r.keyword) {
			return r.breakdown.clone()
		}
	}
	return fallback.clone()
}

func (b Breakdown) clone() Breakdown {
	return Breakdown{
		ServicesPerformed: slices.Clone(b.ServicesPerformed),
		PartsReplaced:     append([]domain.Part{}, b.PartsReplaced...),
		LaborCost:         b.LaborCost,
	}
}
