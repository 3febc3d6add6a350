package booking

import (
	"errors"
	"strings"
)

// VehicleCategory is the vehicle class a rider books and a driver operates.
type VehicleCategory string

const (
	CategoryBike         VehicleCategory = "BIKE"
	CategoryThreeWheeler VehicleCategory = "THREE_WHEELER"
	CategoryFourWheeler  VehicleCategory = "FOUR_WHEELER"
	CategoryTruck        VehicleCategory = "TRUCK"
)

var ErrInvalidVehicleCategory = errors.New("invalid vehicle category")

// categoryAliases maps the labels used by the mobile apps onto canonical categories.
var categoryAliases = map[string]VehicleCategory{
	"BIKE":          CategoryBike,
	"TWO_WHEELER":   CategoryBike,
	"2_WHEELER":     CategoryBike,
	"THREE_WHEELER": CategoryThreeWheeler,
	"3_WHEELER":     CategoryThreeWheeler,
	"FOUR_WHEELER":  CategoryFourWheeler,
	"4_WHEELER":     CategoryFourWheeler,
	"VAN":           CategoryFourWheeler,
	"TRUCK":         CategoryTruck,
}

// ParseVehicleCategory normalizes (uppercases+trims, '-' and ' ' become '_') and validates a category label.
func ParseVehicleCategory(in string) (VehicleCategory, error) {
	key := strings.ToUpper(strings.TrimSpace(in))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if vc, ok := categoryAliases[key]; ok {
		return vc, nil
	}
	return "", ErrInvalidVehicleCategory
}

// Valid reports whether category is one of the canonical category constants.
func (category VehicleCategory) Valid() bool {
	switch category {
	case CategoryBike, CategoryThreeWheeler, CategoryFourWheeler, CategoryTruck:
		return true
	default:
		return false
	}
}

// String returns the string representation of the VehicleCategory.
func (category VehicleCategory) String() string {
	return string(category)
}
