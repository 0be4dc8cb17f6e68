package types

import (
	"errors"
	"fmt"
)

var ErrInvalidInstrument = errors.New("invalid instrument metadata")

// Instrument carries the tick economics of a tradable symbol.
type Instrument struct {
	Symbol       string  `yaml:"symbol" json:"symbol"`
	Point        float64 `yaml:"point" json:"point"`                 // minimum price increment
	ContractSize float64 `yaml:"contract_size" json:"contract_size"` // units per lot
	StopsLevel   int     `yaml:"stops_level" json:"stops_level"`     // minimum stop distance in points
	Digits       int     `yaml:"digits" json:"digits"`
	VolumeMin    float64 `yaml:"volume_min" json:"volume_min"`
	VolumeMax    float64 `yaml:"volume_max" json:"volume_max"`
}

// Validate reports metadata that would make P&L arithmetic meaningless.
func (i Instrument) Validate() error {
	if i.Point <= 0 {
		return fmt.Errorf("%w: %s point %v must be positive", ErrInvalidInstrument, i.Symbol, i.Point)
	}
	if i.ContractSize <= 0 {
		return fmt.Errorf("%w: %s contract size %v must be positive", ErrInvalidInstrument, i.Symbol, i.ContractSize)
	}
	if i.StopsLevel < 0 {
		return fmt.Errorf("%w: %s stops level cannot be negative", ErrInvalidInstrument, i.Symbol)
	}
	return nil
}

// Points converts a point distance into a price distance.
func (i Instrument) Points(n float64) float64 { return n * i.Point }

// AllowsVolume reports whether qty lies inside the broker volume bounds.
// Zero bounds are treated as unbounded.
func (i Instrument) AllowsVolume(qty float64) bool {
	if i.VolumeMin > 0 && qty < i.VolumeMin {
		return false
	}
	if i.VolumeMax > 0 && qty > i.VolumeMax {
		return false
	}
	return true
}
