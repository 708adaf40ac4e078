package reaction

import "math/rand/v2"

const (
	DefaultParticleCount = 500
	// DefaultParticleSpread is the edge length of the cube the field fills.
	DefaultParticleSpread = 10.0
)

// Particle is one point of the static field drawn around the object. Units
// match the object's: at scale 1 the object has radius 1.
type Particle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewParticleField scatters count particles uniformly in a cube of edge spread
// centred on the object. The same seed always yields the same field.
func NewParticleField(count int, spread float64, seed uint64) []Particle {
	if count <= 0 || !(spread > 0) {
		return nil
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	field := make([]Particle, count)
	for i := range field {
		field[i] = Particle{
			X: (rng.Float64() - 0.5) * spread,
			Y: (rng.Float64() - 0.5) * spread,
			Z: (rng.Float64() - 0.5) * spread,
		}
	}
	return field
}
