package data

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/stacktrader/server/internal/component"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Point is an integer corner of the seeding volume.
type Point struct {
	X int64 `yaml:"x"`
	Y int64 `yaml:"y"`
	Z int64 `yaml:"z"`
}

// Distribution gives the cumulative thresholds used to pick a stack type
// from a uniform roll in [0,1): critical first, then tasty, else spendy.
type Distribution struct {
	Spendy   float64 `yaml:"spendy"`
	Tasty    float64 `yaml:"tasty"`
	Critical float64 `yaml:"critical"`
}

// UniverseParameters describes the content genesis seeds into one shard.
type UniverseParameters struct {
	From           Point        `yaml:"from"`
	To             Point        `yaml:"to"`
	Asteroids      int          `yaml:"asteroids"`
	AsteroidAdjs   []string     `yaml:"asteroid_adjs"`
	AsteroidColors []string     `yaml:"asteroid_colors"`
	StarbaseColor  string       `yaml:"starbase_color"`
	ShardName      string       `yaml:"shard_name"`
	ShardCapacity  int          `yaml:"shard_capacity"`
	MaxStackQty    uint32       `yaml:"max_stack_qty"`
	Distribution   Distribution `yaml:"distribution"`
}

// LoadUniverse loads a universe parameter file.
func LoadUniverse(path string) (*UniverseParameters, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var p UniverseParameters
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("universe %s: %w", path, err)
	}
	return &p, nil
}

func (p *UniverseParameters) validate() error {
	switch {
	case p.ShardName == "":
		return errors.New("shard_name is empty")
	case p.Asteroids < 0:
		return errors.New("asteroids is negative")
	case p.ShardCapacity > 0 && p.Asteroids+1 > p.ShardCapacity:
		return fmt.Errorf("%d asteroids and a starbase exceed shard_capacity %d", p.Asteroids, p.ShardCapacity)
	case p.Asteroids > 0 && len(p.AsteroidAdjs) == 0:
		return errors.New("asteroid_adjs is empty")
	case len(p.AsteroidColors) < len(p.AsteroidAdjs):
		return errors.New("every asteroid adjective needs a color")
	case p.MaxStackQty < 2:
		return errors.New("max_stack_qty must be at least 2")
	case p.From.X >= p.To.X || p.From.Y >= p.To.Y || p.From.Z >= p.To.Z:
		return errors.New("from must be below to on every axis")
	}
	return nil
}

// Seed is one entity with the components genesis writes for it, in write
// order.
type Seed struct {
	Entity     string
	Components []SeedComponent
}

type SeedComponent struct {
	Name  string
	Value any
}

var title = cases.Title(language.English)

// Starbase returns the shard's starbase at the origin.
func (p *UniverseParameters) Starbase() Seed {
	return Seed{
		Entity: "starbase_0",
		Components: []SeedComponent{
			{component.NamePosition, component.Position{}},
			{component.NameTransponder, component.Transponder{
				ObjectType:  "starbase",
				DisplayName: "Starbase Alpha",
				Color:       p.StarbaseColor,
			}},
		},
	}
}

// Asteroid returns asteroid idx at a random point of the seeding volume
// with a random mining resource.
func (p *UniverseParameters) Asteroid(rng *rand.Rand, idx int) Seed {
	adj := rng.Intn(len(p.AsteroidAdjs))
	return Seed{
		Entity: fmt.Sprintf("asteroid_%d", idx),
		Components: []SeedComponent{
			{component.NameTransponder, component.Transponder{
				ObjectType:  "asteroid",
				DisplayName: title.String(p.AsteroidAdjs[adj]) + " Asteroid",
				Color:       p.AsteroidColors[adj],
			}},
			{component.NamePosition, component.Position{
				X: float64(between(rng, p.From.X, p.To.X)),
				Y: float64(between(rng, p.From.Y, p.To.Y)),
				Z: float64(between(rng, p.From.Z, p.To.Z)),
			}},
			{component.NameMiningRes, component.MiningResource{
				StackType: p.stackType(rng.Float64()),
				Qty:       1 + uint32(rng.Int63n(int64(p.MaxStackQty-1))),
			}},
		},
	}
}

func (p *UniverseParameters) stackType(roll float64) string {
	switch {
	case roll <= p.Distribution.Critical:
		return "critical"
	case roll <= p.Distribution.Tasty:
		return "tasty"
	default:
		return "spendy"
	}
}

// between returns a value in [lo, hi).
func between(rng *rand.Rand, lo, hi int64) int64 {
	return lo + rng.Int63n(hi-lo)
}
