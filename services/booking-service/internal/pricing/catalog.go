package pricing

import (
	"fmt"
	"math"
	"strings"
)

type Kind string

const (
	KindConsultation Kind = "consultation"
	KindPackage      Kind = "package"
	KindCustom       Kind = "custom"
)

type PortraitType string

const (
	PortraitIndividual PortraitType = "individual"
	PortraitCouple     PortraitType = "couple"
	PortraitFamily     PortraitType = "family"
	PortraitGroup      PortraitType = "group"
)

func ParsePortraitType(s string) (PortraitType, error) {
	switch p := PortraitType(strings.ToLower(strings.TrimSpace(s))); p {
	case PortraitIndividual, PortraitCouple, PortraitFamily, PortraitGroup:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown portrait type %q", ErrInvalidRequest, s)
	}
}

// PackageKind is one of Consultation(), FixedPackage(key) or Custom(people, portrait).
// Only the fields of its Kind are meaningful.
type PackageKind struct {
	Kind        Kind
	Key         string
	PeopleCount int
	Portrait    PortraitType
}

func Consultation() PackageKind { return PackageKind{Kind: KindConsultation} }

func FixedPackage(key string) PackageKind { return PackageKind{Kind: KindPackage, Key: key} }

func Custom(peopleCount int, portrait PortraitType) PackageKind {
	return PackageKind{Kind: KindCustom, PeopleCount: peopleCount, Portrait: portrait}
}

func (k PackageKind) String() string {
	switch k.Kind {
	case KindPackage:
		return "package:" + k.Key
	case KindCustom:
		return fmt.Sprintf("custom:%s:%d", k.Portrait, k.PeopleCount)
	default:
		return string(k.Kind)
	}
}

// SessionRequest is built once by the caller and passed by value.
type SessionRequest struct {
	DurationMinutes int
	Kind            PackageKind
}

type Package struct {
	Key             string
	Name            string
	DurationMinutes int
	PriceMinorUnits int64
	Description     string
}

type AddOn struct {
	ID              string
	Name            string
	PriceMinorUnits int64
}

// ConsultationMinutes is the fixed length of a free consultation.
const ConsultationMinutes = 30

// Upper bounds on request sizes. They keep durations and surcharges well
// inside int64 arithmetic and time.Duration.
const (
	MaxSessionMinutes = 24 * 60
	MaxPeopleCount    = 100
)

// DefaultPackages are the three fixed tiers, cheapest first.
var DefaultPackages = []Package{
	{Key: "mini", Name: "Mini Session", DurationMinutes: 30, PriceMinorUnits: 15000, Description: "One look, ten edited images."},
	{Key: "classic", Name: "Classic Session", DurationMinutes: 60, PriceMinorUnits: 30000, Description: "Two looks, twenty-five edited images."},
	{Key: "signature", Name: "Signature Session", DurationMinutes: 120, PriceMinorUnits: 55000, Description: "Unlimited looks, full gallery, one canvas print."},
}

var DefaultAddOns = []AddOn{
	{ID: "extra-look", Name: "Extra outfit change", PriceMinorUnits: 5000},
	{ID: "rush-edit", Name: "48-hour gallery delivery", PriceMinorUnits: 7500},
	{ID: "print-set", Name: "Set of five 8x10 prints", PriceMinorUnits: 12000},
	{ID: "hair-makeup", Name: "Hair and makeup artist", PriceMinorUnits: 15000},
}

type CustomPolicy struct {
	HourlyRateMinorUnits                    int64
	MinimumTotalMinorUnits                  int64
	FamilySurchargeThresholdPeople          int
	FamilySurchargePerExtraPersonMinorUnits int64
}

var DefaultCustomPolicy = CustomPolicy{
	HourlyRateMinorUnits:                    20000,
	MinimumTotalMinorUnits:                  25000,
	FamilySurchargeThresholdPeople:          5,
	FamilySurchargePerExtraPersonMinorUnits: 5000,
}

func (p CustomPolicy) validate() error {
	if p.HourlyRateMinorUnits < 0 || p.MinimumTotalMinorUnits < 0 || p.FamilySurchargePerExtraPersonMinorUnits < 0 {
		return fmt.Errorf("pricing: custom policy amounts must be non-negative")
	}
	if p.FamilySurchargeThresholdPeople < 0 {
		return fmt.Errorf("pricing: family surcharge threshold must be non-negative")
	}
	if p.HourlyRateMinorUnits > math.MaxInt64/MaxSessionMinutes || p.FamilySurchargePerExtraPersonMinorUnits > math.MaxInt64/(2*MaxPeopleCount) {
		return fmt.Errorf("pricing: custom policy amounts are too large")
	}
	return nil
}
