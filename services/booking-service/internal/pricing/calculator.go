package pricing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownPackageKey = errors.New("unknown package key")
)

type LineItem struct {
	Label            string
	AmountMinorUnits int64
}

// Quote is a priced SessionRequest with the lines that add up to Total.
type Quote struct {
	Request         SessionRequest
	AddOns          []AddOn
	Lines           []LineItem
	TotalMinorUnits int64
}

// AddOnIDs returns a fresh slice of the selected add-on IDs.
func (q Quote) AddOnIDs() []string {
	ids := make([]string, 0, len(q.AddOns))
	for _, a := range q.AddOns {
		ids = append(ids, a.ID)
	}
	return ids
}

// Calculator prices session requests against a fixed catalog. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	packages     []Package
	packageByKey map[string]Package
	addOns       []AddOn
	addOnByID    map[string]AddOn
	custom       CustomPolicy
	currency     string
}

func NewCalculator(packages []Package, addOns []AddOn, custom CustomPolicy, currency string) (*Calculator, error) {
	if err := custom.validate(); err != nil {
		return nil, err
	}
	c := &Calculator{
		packages:     append([]Package(nil), packages...),
		packageByKey: make(map[string]Package, len(packages)),
		addOns:       append([]AddOn(nil), addOns...),
		addOnByID:    make(map[string]AddOn, len(addOns)),
		custom:       custom,
		currency:     currency,
	}
	for _, p := range packages {
		if p.Key == "" || p.DurationMinutes <= 0 || p.DurationMinutes > MaxSessionMinutes || p.PriceMinorUnits < 0 {
			return nil, fmt.Errorf("pricing: invalid package %q", p.Key)
		}
		if _, dup := c.packageByKey[p.Key]; dup {
			return nil, fmt.Errorf("pricing: duplicate package %q", p.Key)
		}
		c.packageByKey[p.Key] = p
	}
	for _, a := range addOns {
		if a.ID == "" || a.PriceMinorUnits < 0 {
			return nil, fmt.Errorf("pricing: invalid add-on %q", a.ID)
		}
		if _, dup := c.addOnByID[a.ID]; dup {
			return nil, fmt.Errorf("pricing: duplicate add-on %q", a.ID)
		}
		c.addOnByID[a.ID] = a
	}
	return c, nil
}

// DefaultCalculator uses the built-in catalog with the given custom policy.
func DefaultCalculator(custom CustomPolicy) (*Calculator, error) {
	return NewCalculator(DefaultPackages, DefaultAddOns, custom, "USD")
}

func (c *Calculator) Packages() []Package { return append([]Package(nil), c.packages...) }

func (c *Calculator) AddOns() []AddOn { return append([]AddOn(nil), c.addOns...) }

func (c *Calculator) Custom() CustomPolicy { return c.custom }

func (c *Calculator) Currency() string { return c.currency }

// Request resolves the session length for kind. customMinutes is used only
// for custom sessions; consultations and fixed packages have set lengths.
func (c *Calculator) Request(kind PackageKind, customMinutes int) (SessionRequest, error) {
	switch kind.Kind {
	case KindConsultation:
		return SessionRequest{DurationMinutes: ConsultationMinutes, Kind: kind}, nil
	case KindPackage:
		p, ok := c.packageByKey[kind.Key]
		if !ok {
			return SessionRequest{}, fmt.Errorf("%w: %q", ErrUnknownPackageKey, kind.Key)
		}
		return SessionRequest{DurationMinutes: p.DurationMinutes, Kind: kind}, nil
	case KindCustom:
		if err := checkDuration(customMinutes); err != nil {
			return SessionRequest{}, err
		}
		if err := checkPeople(kind.PeopleCount); err != nil {
			return SessionRequest{}, err
		}
		return SessionRequest{DurationMinutes: customMinutes, Kind: kind}, nil
	default:
		return SessionRequest{}, fmt.Errorf("%w: unknown package kind %q", ErrInvalidRequest, kind.Kind)
	}
}

// ResolveAddOns maps IDs to catalog add-ons. Unknown or repeated IDs are rejected.
func (c *Calculator) ResolveAddOns(ids []string) ([]AddOn, error) {
	out := make([]AddOn, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		a, ok := c.addOnByID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown add-on %q", ErrInvalidRequest, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: add-on %q selected twice", ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Price returns the total in minor currency units.
func (c *Calculator) Price(req SessionRequest, addOns []AddOn) (int64, error) {
	q, err := c.Quote(req, addOns)
	if err != nil {
		return 0, err
	}
	return q.TotalMinorUnits, nil
}

func (c *Calculator) Quote(req SessionRequest, addOns []AddOn) (Quote, error) {
	if err := checkDuration(req.DurationMinutes); err != nil {
		return Quote{}, err
	}
	q := Quote{Request: req, AddOns: append([]AddOn(nil), addOns...)}

	switch req.Kind.Kind {
	case KindConsultation:
		if len(addOns) > 0 {
			return Quote{}, fmt.Errorf("%w: add-ons are not available for consultations", ErrInvalidRequest)
		}
		q.Lines = []LineItem{{Label: "Consultation", AmountMinorUnits: 0}}

	case KindPackage:
		p, ok := c.packageByKey[req.Kind.Key]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownPackageKey, req.Kind.Key)
		}
		if req.DurationMinutes != p.DurationMinutes {
			return Quote{}, fmt.Errorf("%w: package %q runs %d minutes, not %d", ErrInvalidRequest, p.Key, p.DurationMinutes, req.DurationMinutes)
		}
		if err := c.checkAddOns(addOns); err != nil {
			return Quote{}, err
		}
		q.Lines = append(q.Lines, LineItem{Label: p.Name, AmountMinorUnits: p.PriceMinorUnits})
		q.TotalMinorUnits = p.PriceMinorUnits
		for _, a := range addOns {
			q.Lines = append(q.Lines, LineItem{Label: a.Name, AmountMinorUnits: a.PriceMinorUnits})
			q.TotalMinorUnits += a.PriceMinorUnits
		}

	case KindCustom:
		if len(addOns) > 0 {
			return Quote{}, fmt.Errorf("%w: add-ons are not available for custom sessions", ErrInvalidRequest)
		}
		if err := checkPeople(req.Kind.PeopleCount); err != nil {
			return Quote{}, err
		}
		base := proRate(c.custom.HourlyRateMinorUnits, req.DurationMinutes)
		surcharge := c.familySurcharge(req.Kind)
		q.Lines = append(q.Lines, LineItem{Label: fmt.Sprintf("Custom session, %d min", req.DurationMinutes), AmountMinorUnits: base})
		if surcharge > 0 {
			q.Lines = append(q.Lines, LineItem{Label: "Family surcharge", AmountMinorUnits: surcharge})
		}
		q.TotalMinorUnits = base + surcharge
		if q.TotalMinorUnits < c.custom.MinimumTotalMinorUnits {
			q.Lines = append(q.Lines, LineItem{Label: "Minimum session adjustment", AmountMinorUnits: c.custom.MinimumTotalMinorUnits - q.TotalMinorUnits})
			q.TotalMinorUnits = c.custom.MinimumTotalMinorUnits
		}

	default:
		return Quote{}, fmt.Errorf("%w: unknown package kind %q", ErrInvalidRequest, req.Kind.Kind)
	}
	return q, nil
}

// checkAddOns accepts only catalog add-ons, each at most once and at its
// catalog price.
func (c *Calculator) checkAddOns(addOns []AddOn) error {
	seen := make(map[string]struct{}, len(addOns))
	for _, a := range addOns {
		known, ok := c.addOnByID[a.ID]
		if !ok {
			return fmt.Errorf("%w: unknown add-on %q", ErrInvalidRequest, a.ID)
		}
		if a.PriceMinorUnits != known.PriceMinorUnits {
			return fmt.Errorf("%w: add-on %q priced %d, catalog says %d", ErrInvalidRequest, a.ID, a.PriceMinorUnits, known.PriceMinorUnits)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: add-on %q selected twice", ErrInvalidRequest, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

func checkDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxSessionMinutes {
		return fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidRequest, MaxSessionMinutes)
	}
	return nil
}

func checkPeople(n int) error {
	if n <= 0 || n > MaxPeopleCount {
		return fmt.Errorf("%w: people count must be between 1 and %d", ErrInvalidRequest, MaxPeopleCount)
	}
	return nil
}

// familySurcharge charges per person above the threshold, for family
// portraits only. Other portrait types never pay it.
func (c *Calculator) familySurcharge(k PackageKind) int64 {
	if k.Portrait != PortraitFamily || k.PeopleCount <= c.custom.FamilySurchargeThresholdPeople {
		return 0
	}
	extra := int64(k.PeopleCount - c.custom.FamilySurchargeThresholdPeople)
	return extra * c.custom.FamilySurchargePerExtraPersonMinorUnits
}

// proRate is round-half-up of hourlyRate*minutes/60 on non-negative integers.
func proRate(hourlyRate int64, minutes int) int64 {
	return (hourlyRate*int64(minutes) + 30) / 60
}
