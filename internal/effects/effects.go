// Package effects holds the catalog of voice effects offered at playback time.
//
// An effect is descriptive data only: the playback device applies the speed
// multiplier, nothing in this module processes samples.
package effects

import (
	"fmt"
	"strings"
)

// Effect is a named pitch/speed transformation applied when a recording is
// played back. Effects are immutable and shared by value.
type Effect struct {
	ID          string  `mapstructure:"id" yaml:"id" json:"id" validate:"required"`
	Name        string  `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Icon        string  `mapstructure:"icon" yaml:"icon" json:"icon"`
	Description string  `mapstructure:"description" yaml:"description" json:"description"`
	Pitch       float64 `mapstructure:"pitch" yaml:"pitch" json:"pitch" validate:"gt=0"`
	Speed       float64 `mapstructure:"speed" yaml:"speed" json:"speed" validate:"gt=0"`
}

// String returns the effect name followed by its multipliers
func (e Effect) String() string {
	return fmt.Sprintf("%s (pitch x%.2f, speed x%.2f)", e.Name, e.Pitch, e.Speed)
}

// Builtin is the reference catalog. The first entry is the identity effect.
var Builtin = []Effect{
	{ID: "normal", Name: "Normal", Icon: "person", Description: "Original voice", Pitch: 1.0, Speed: 1.0},
	{ID: "chipmunk", Name: "Chipmunk", Icon: "arrow-up", Description: "High and fast", Pitch: 1.5, Speed: 1.5},
	{ID: "deep", Name: "Deep", Icon: "arrow-down", Description: "Low and slow", Pitch: 0.7, Speed: 0.7},
	{ID: "robot", Name: "Robot", Icon: "settings", Description: "Robotic voice", Pitch: 0.9, Speed: 0.95},
	{ID: "fast", Name: "Fast", Icon: "flash", Description: "Sped up", Pitch: 1.3, Speed: 1.8},
	{ID: "slow", Name: "Slow", Icon: "hourglass", Description: "Slowed down", Pitch: 0.8, Speed: 0.5},
}

// Catalog is an ordered, read-only list of effects.
type Catalog struct {
	effects []Effect
}

// NewCatalog validates the given effects and returns a catalog holding a copy
// of them in the same order.
func NewCatalog(list []Effect) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("effect catalog cannot be empty")
	}

	seen := make(map[string]bool, len(list))
	for i, e := range list {
		if err := Validate(e); err != nil {
			return nil, fmt.Errorf("effects[%d]: %w", i, err)
		}
		key := strings.ToLower(e.ID)
		if seen[key] {
			return nil, fmt.Errorf("effects[%d]: duplicate id '%s'", i, e.ID)
		}
		seen[key] = true
	}

	c := &Catalog{effects: make([]Effect, len(list))}
	copy(c.effects, list)
	return c, nil
}

// BuiltinCatalog returns the catalog of built-in effects.
func BuiltinCatalog() *Catalog {
	c, err := NewCatalog(Builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks a single effect definition
func Validate(e Effect) error {
	if e.ID == "" {
		return fmt.Errorf("'id' is required")
	}
	if e.Name == "" {
		return fmt.Errorf("effect '%s': 'name' is required", e.ID)
	}
	if e.Pitch <= 0 {
		return fmt.Errorf("effect '%s': 'pitch' must be > 0, got: %.2f", e.ID, e.Pitch)
	}
	if e.Speed <= 0 {
		return fmt.Errorf("effect '%s': 'speed' must be > 0, got: %.2f", e.ID, e.Speed)
	}
	return nil
}

// Default returns the first entry of the catalog.
func (c *Catalog) Default() Effect {
	return c.effects[0]
}

// Lookup finds an effect by id, case-insensitively.
func (c *Catalog) Lookup(id string) (Effect, bool) {
	for _, e := range c.effects {
		if strings.EqualFold(e.ID, id) {
			return e, true
		}
	}
	return Effect{}, false
}

// All returns a copy of the catalog entries in order
func (c *Catalog) All() []Effect {
	out := make([]Effect, len(c.effects))
	copy(out, c.effects)
	return out
}

func (c *Catalog) Len() int {
	return len(c.effects)
}

// IDs lists effect ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.effects))
	for i, e := range c.effects {
		ids[i] = e.ID
	}
	return ids
}
