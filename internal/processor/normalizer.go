package processor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bulkload/internal/model"
)

// PlaceholderPolicy decides what happens to a row without a store name or address
type PlaceholderPolicy string

const (
	// PlaceholderSynthesize fills the gap with a value unique to the row
	PlaceholderSynthesize PlaceholderPolicy = "synthesize"
	// PlaceholderReject turns the row into a counted failure
	PlaceholderReject PlaceholderPolicy = "reject"
)

var ErrMissingRequiredField = errors.New("missing required field")

// fieldSpec lists the accepted column aliases of one canonical field, in
// lookup order. Identity fields get a placeholder, the rest a fixed default.
type fieldSpec struct {
	aliases     []string
	fallback    string
	placeholder string
}

var (
	storeNameField    = fieldSpec{aliases: []string{"storeName", "store_name"}, placeholder: "Store"}
	storeAddressField = fieldSpec{aliases: []string{"storeAddress", "store_address"}, placeholder: "Address"}
	cityField         = fieldSpec{aliases: []string{"cityName", "city_name", "city"}, fallback: "Unknown City"}
	regionField       = fieldSpec{aliases: []string{"regionName", "region_name", "region"}, fallback: "Unknown Region"}
	retailerField     = fieldSpec{aliases: []string{"retailerName", "retailer_name", "retailer"}, fallback: "Unknown Retailer"}
	typeField         = fieldSpec{aliases: []string{"storeType", "store_type", "type"}, fallback: "Unknown Type"}
	longitudeField    = fieldSpec{aliases: []string{"storeLongitude", "store_longitude", "longitude"}}
	latitudeField     = fieldSpec{aliases: []string{"storeLatitude", "store_latitude", "latitude"}}
)

// lookup returns the first non-blank alias value, trimmed
func (f fieldSpec) lookup(row map[string]string) (string, bool) {
	for _, alias := range f.aliases {
		if v := strings.TrimSpace(row[alias]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Normalizer maps raw CSV rows onto the canonical store record
type Normalizer struct {
	policy PlaceholderPolicy
	now    func() time.Time
}

func NewNormalizer(policy PlaceholderPolicy) *Normalizer {
	if policy == "" {
		policy = PlaceholderSynthesize
	}
	return &Normalizer{policy: policy, now: time.Now}
}

// Normalize resolves aliases, trims values and fills defaults. It never drops
// a row: under the reject policy a missing identity field is returned as an
// error wrapping ErrMissingRequiredField.
func (n *Normalizer) Normalize(row map[string]string, rowIndex int) (model.StoreRecord, error) {
	token := fmt.Sprintf("%d-%d", n.now().UnixMilli(), rowIndex)

	name, err := n.identity(storeNameField, row, token)
	if err != nil {
		return model.StoreRecord{}, err
	}
	address, err := n.identity(storeAddressField, row, token)
	if err != nil {
		return model.StoreRecord{}, err
	}

	_, hasName := storeNameField.lookup(row)
	_, hasAddress := storeAddressField.lookup(row)

	record := model.StoreRecord{
		StoreName:      name,
		StoreAddress:   address,
		CityName:       withDefault(cityField, row),
		RegionName:     withDefault(regionField, row),
		RetailerName:   withDefault(retailerField, row),
		StoreType:      withDefault(typeField, row),
		StoreLongitude: coordinate(longitudeField, row, 180),
		StoreLatitude:  coordinate(latitudeField, row, 90),
		Placeholder:    !hasName || !hasAddress,
		RowIndex:       rowIndex,
	}

	return record, nil
}

func (n *Normalizer) identity(f fieldSpec, row map[string]string, token string) (string, error) {
	if v, ok := f.lookup(row); ok {
		return v, nil
	}
	if n.policy == PlaceholderReject {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredField, f.aliases[0])
	}
	return f.placeholder + "-" + token, nil
}

func withDefault(f fieldSpec, row map[string]string) string {
	if v, ok := f.lookup(row); ok {
		return v
	}
	return f.fallback
}

// coordinate parses an optional coordinate; unparseable or out of range values are dropped
func coordinate(f fieldSpec, row map[string]string, limit float64) *float64 {
	raw, ok := f.lookup(row)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return nil
	}
	return &v
}
