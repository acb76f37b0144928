package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAddonUnits = errors.New("invalid_addon_units")

// AddonUnits is the unit count requested for an addon. The JSON shape is
// decided once when decoding: an integer is Flat, an object of ranges is
// Graduated.
type AddonUnits interface {
	// Resolve returns the unit count for the given reference quantity.
	Resolve(reference decimal.Decimal) decimal.Decimal
	isAddonUnits()
}

type Flat struct {
	Quantity int64
}

func (Flat) isAddonUnits() {}

func (f Flat) Resolve(decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(f.Quantity)
}

// Band maps the reference range [From, To] to a unit count. A nil To is
// open-ended.
type Band struct {
	From     int64
	To       *int64
	Quantity int64
}

func (b Band) contains(v int64) bool {
	return v >= b.From && (b.To == nil || v <= *b.To)
}

func (b Band) String() string {
	if b.To == nil {
		return fmt.Sprintf("%d+", b.From)
	}
	return fmt.Sprintf("%d-%d", b.From, *b.To)
}

// Graduated picks the unit count from the band holding the reference
// quantity. Bands are sorted and never overlap.
type Graduated struct {
	Bands []Band
}

func (Graduated) isAddonUnits() {}

// Resolve matches on the integer part of reference. A reference outside
// every band resolves to zero units.
func (g Graduated) Resolve(reference decimal.Decimal) decimal.Decimal {
	v := reference.Floor().IntPart()
	for _, band := range g.Bands {
		if band.contains(v) {
			return decimal.NewFromInt(band.Quantity)
		}
	}
	return decimal.Zero
}

// Units carries AddonUnits through JSON.
type Units struct {
	Value AddonUnits
}

func (u *Units) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrInvalidAddonUnits
	}

	if data[0] == '{' {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidAddonUnits
		}
		graduated, err := parseGraduated(raw)
		if err != nil {
			return err
		}
		u.Value = graduated
		return nil
	}

	quantity, err := parseQuantity(data)
	if err != nil {
		return err
	}
	u.Value = Flat{Quantity: quantity}
	return nil
}

func (u Units) MarshalJSON() ([]byte, error) {
	switch v := u.Value.(type) {
	case Flat:
		return json.Marshal(v.Quantity)
	case Graduated:
		out := make(map[string]int64, len(v.Bands))
		for _, band := range v.Bands {
			out[band.String()] = band.Quantity
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

func parseGraduated(raw map[string]json.RawMessage) (Graduated, error) {
	if len(raw) == 0 {
		return Graduated{}, ErrInvalidAddonUnits
	}

	bands := make([]Band, 0, len(raw))
	for key, value := range raw {
		band, err := parseRange(key)
		if err != nil {
			return Graduated{}, err
		}
		quantity, err := parseQuantity(value)
		if err != nil {
			return Graduated{}, err
		}
		band.Quantity = quantity
		bands = append(bands, band)
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].From < bands[j].From })
	for i := 1; i < len(bands); i++ {
		prev := bands[i-1]
		if prev.To == nil || *prev.To >= bands[i].From {
			return Graduated{}, ErrInvalidAddonUnits
		}
	}
	return Graduated{Bands: bands}, nil
}

// parseRange accepts "a-b" with a <= b, or "a+".
func parseRange(key string) (Band, error) {
	key = strings.TrimSpace(key)
	if strings.HasSuffix(key, "+") {
		from, err := strconv.ParseInt(strings.TrimSuffix(key, "+"), 10, 64)
		if err != nil || from < 0 {
			return Band{}, ErrInvalidAddonUnits
		}
		return Band{From: from}, nil
	}

	lo, hi, ok := strings.Cut(key, "-")
	if !ok {
		return Band{}, ErrInvalidAddonUnits
	}
	from, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil || from < 0 {
		return Band{}, ErrInvalidAddonUnits
	}
	to, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil || to < from {
		return Band{}, ErrInvalidAddonUnits
	}
	return Band{From: from, To: &to}, nil
}

// parseQuantity accepts a non-negative JSON integer only.
func parseQuantity(data []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, ErrInvalidAddonUnits
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, ErrInvalidAddonUnits
	}
	quantity, err := strconv.ParseInt(num.String(), 10, 64)
	if err != nil || quantity < 0 {
		return 0, ErrInvalidAddonUnits
	}
	return quantity, nil
}

const (
	UnitsFlat      = "flat"
	UnitsGraduated = "graduated"
)

// Kind names the decoded shape, or "" when nothing was decoded.
func (u Units) Kind() string {
	switch u.Value.(type) {
	case Flat:
		return UnitsFlat
	case Graduated:
		return UnitsGraduated
	default:
		return ""
	}
}
