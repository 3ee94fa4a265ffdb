// Package reference holds the immutable entity lookup tables the scoring engine reads:
// OEM alignment, partner affiliation, contract-vehicle priority, region and customer bonuses.
//
// Tables are built once from a Spec and never mutated afterwards. Lookups are
// case-insensitive. OEM, partner and vehicle lookups are substring-tolerant so CRM
// spellings like "Cisco Systems" or "NASA SEWP V" still resolve. Regions match exactly.
// Customer orgs match a known name as whole words ("US Army Corps of Engineers"),
// unless the org carries a commercial marker such as "Credit Union".
package reference

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Customer categories recognised by the bonus table
const (
	CategoryDOD      = "DOD"
	CategoryCivilian = "Civilian"
	CategoryOther    = "Other"
)

// minSubstringLen guards against short keys like "VA" matching inside unrelated names
const minSubstringLen = 3

// OEM is one vendor entry
type OEM struct {
	Tier      string  `yaml:"tier" json:"tier"`
	Alignment float64 `yaml:"alignment" json:"alignment"`
}

// Spec is the serialisable shape of the tables (YAML file or API output)
type Spec struct {
	OEMs               map[string]OEM     `yaml:"oems" json:"oems"`
	Partners           map[string]string  `yaml:"partners" json:"partners"`
	ContractVehicles   map[string]float64 `yaml:"contract_vehicles" json:"contract_vehicles"`
	Regions            map[string]float64 `yaml:"regions" json:"regions"`
	CustomerOrgs       map[string]string  `yaml:"customer_orgs" json:"customer_orgs"`
	CustomerCategories map[string]float64 `yaml:"customer_categories" json:"customer_categories"`
	GovernmentTags     []string           `yaml:"government_tags" json:"government_tags"`
	CommercialMarkers  []string           `yaml:"commercial_markers" json:"commercial_markers"`
}

type entry[T any] struct {
	key   string
	value T
}

// index is an ordered lookup: longest keys first so the most specific name wins
type index[T any] struct {
	exact   map[string]T
	ordered []entry[T]
}

func newIndex[T any](m map[string]T) index[T] {
	idx := index[T]{exact: make(map[string]T, len(m))}
	for name, v := range m {
		key := normalize(name)
		if key == "" {
			continue
		}
		idx.exact[key] = v
		idx.ordered = append(idx.ordered, entry[T]{key: key, value: v})
	}
	sort.Slice(idx.ordered, func(i, j int) bool {
		a, b := idx.ordered[i].key, idx.ordered[j].key
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return idx
}

func (idx index[T]) lookup(name string) (T, bool) {
	var zero T
	key := normalize(name)
	if key == "" {
		return zero, false
	}
	if v, ok := idx.exact[key]; ok {
		return v, true
	}
	for _, e := range idx.ordered {
		if substringMatch(key, e.key) {
			return e.value, true
		}
	}
	return zero, false
}

// lookupExact matches the normalized name only
func (idx index[T]) lookupExact(name string) (T, bool) {
	v, ok := idx.exact[normalize(name)]
	return v, ok
}

// lookupWords matches the name exactly or, failing that, the longest key that
// appears in it as a run of whole words
func (idx index[T]) lookupWords(name string) (T, bool) {
	if v, ok := idx.lookupExact(name); ok {
		return v, true
	}
	var zero T
	padded := " " + words(name) + " "
	if padded == "  " {
		return zero, false
	}
	for _, e := range idx.ordered {
		if key := words(e.key); key != "" && strings.Contains(padded, " "+key+" ") {
			return e.value, true
		}
	}
	return zero, false
}

// words lowercases s and splits it on anything that is not a letter or digit
func words(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func substringMatch(a, b string) bool {
	if len(a) >= minSubstringLen && strings.Contains(b, a) {
		return true
	}
	return len(b) >= minSubstringLen && strings.Contains(a, b)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tables is the immutable reference data injected into the engine
type Tables struct {
	spec       Spec
	oems       index[OEM]
	partners   index[string]
	vehicles   index[float64]
	regions    index[float64]
	orgs       index[string]
	categories map[string]float64
	govTags    map[string]struct{}
	commercial []string
}

// New validates spec and builds lookup tables from a private copy of it
func New(spec Spec) (*Tables, error) {
	spec = spec.clone()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	t := &Tables{
		spec:       spec,
		oems:       newIndex(spec.OEMs),
		partners:   newIndex(spec.Partners),
		vehicles:   newIndex(spec.ContractVehicles),
		regions:    newIndex(spec.Regions),
		orgs:       newIndex(spec.CustomerOrgs),
		categories: make(map[string]float64, len(spec.CustomerCategories)),
		govTags:    make(map[string]struct{}, len(spec.GovernmentTags)),
	}
	for category, bonus := range spec.CustomerCategories {
		t.categories[normalize(category)] = bonus
	}
	for _, tag := range spec.GovernmentTags {
		t.govTags[normalizeTag(tag)] = struct{}{}
	}
	for _, marker := range spec.CommercialMarkers {
		if w := words(marker); w != "" {
			t.commercial = append(t.commercial, w)
		}
	}
	return t, nil
}

// MustDefault returns the audited default tables, panicking only if they are malformed
func MustDefault() *Tables {
	t, err := New(DefaultSpec())
	if err != nil {
		panic(fmt.Sprintf("default reference tables invalid: %v", err))
	}
	return t
}

// Spec returns a copy of the underlying data
func (t *Tables) Spec() Spec {
	return t.spec.clone()
}

// OEMAlignment returns the 0-100 alignment score for an OEM
func (t *Tables) OEMAlignment(name string) (float64, bool) {
	oem, ok := t.oems.lookup(name)
	return oem.Alignment, ok
}

// PartnerOEM returns the OEM a partner is affiliated with
func (t *Tables) PartnerOEM(partner string) (string, bool) {
	return t.partners.lookup(partner)
}

// VehiclePriority returns the priority score for a contract vehicle
func (t *Tables) VehiclePriority(vehicle string) (float64, bool) {
	return t.vehicles.lookup(vehicle)
}

// RegionBonus returns the contextual bonus for a sales region
func (t *Tables) RegionBonus(region string) (float64, bool) {
	return t.regions.lookupExact(region)
}

// CustomerCategory classifies a customer organisation. A value that is itself a category
// name ("DOD", "Civilian") is accepted directly. Orgs with a commercial marker only
// match exactly.
func (t *Tables) CustomerCategory(org string) (string, bool) {
	key := normalize(org)
	if key == "" {
		return "", false
	}
	for category := range t.spec.CustomerCategories {
		if normalize(category) == key {
			return category, true
		}
	}
	if t.isCommercial(org) {
		return t.orgs.lookupExact(org)
	}
	return t.orgs.lookupWords(org)
}

func (t *Tables) isCommercial(org string) bool {
	padded := " " + words(org) + " "
	for _, marker := range t.commercial {
		if strings.Contains(padded, " "+marker+" ") {
			return true
		}
	}
	return false
}

// CategoryBonus returns the bonus for a customer category
func (t *Tables) CategoryBonus(category string) float64 {
	return t.categories[normalize(category)]
}

// IsGovernmentTag reports whether a source tag counts toward government relevance
func (t *Tables) IsGovernmentTag(tag string) bool {
	_, ok := t.govTags[normalizeTag(tag)]
	return ok
}

func normalizeTag(tag string) string {
	return strings.ReplaceAll(normalize(tag), "_", "-")
}

// Validate checks score ranges and cross references
func (s Spec) Validate() error {
	for name, oem := range s.OEMs {
		if oem.Alignment < 0 || oem.Alignment > 100 {
			return fmt.Errorf("oem %q alignment %.1f out of range [0,100]", name, oem.Alignment)
		}
	}
	for name, score := range s.ContractVehicles {
		if score < 0 || score > 100 {
			return fmt.Errorf("contract vehicle %q priority %.1f out of range [0,100]", name, score)
		}
	}
	for name, oem := range s.Partners {
		if strings.TrimSpace(oem) == "" {
			return fmt.Errorf("partner %q has no affiliated oem", name)
		}
	}
	for name, bonus := range s.Regions {
		if bonus < 0 {
			return fmt.Errorf("region %q bonus must not be negative", name)
		}
	}
	for name, bonus := range s.CustomerCategories {
		if bonus < 0 {
			return fmt.Errorf("customer category %q bonus must not be negative", name)
		}
	}
	for org, category := range s.CustomerOrgs {
		if _, ok := s.CustomerCategories[category]; !ok {
			return fmt.Errorf("customer org %q references unknown category %q", org, category)
		}
	}
	return nil
}

func (s Spec) clone() Spec {
	out := Spec{
		OEMs:               make(map[string]OEM, len(s.OEMs)),
		Partners:           make(map[string]string, len(s.Partners)),
		ContractVehicles:   make(map[string]float64, len(s.ContractVehicles)),
		Regions:            make(map[string]float64, len(s.Regions)),
		CustomerOrgs:       make(map[string]string, len(s.CustomerOrgs)),
		CustomerCategories: make(map[string]float64, len(s.CustomerCategories)),
		GovernmentTags:     append([]string(nil), s.GovernmentTags...),
		CommercialMarkers:  append([]string(nil), s.CommercialMarkers...),
	}
	for k, v := range s.OEMs {
		out.OEMs[k] = v
	}
	for k, v := range s.Partners {
		out.Partners[k] = v
	}
	for k, v := range s.ContractVehicles {
		out.ContractVehicles[k] = v
	}
	for k, v := range s.Regions {
		out.Regions[k] = v
	}
	for k, v := range s.CustomerOrgs {
		out.CustomerOrgs[k] = v
	}
	for k, v := range s.CustomerCategories {
		out.CustomerCategories[k] = v
	}
	return out
}
