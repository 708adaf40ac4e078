package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticleField(t *testing.T) {
	field := NewParticleField(DefaultParticleCount, DefaultParticleSpread, 7)
	require.Len(t, field, DefaultParticleCount)

	half := DefaultParticleSpread / 2
	var spanX, spanY, spanZ [2]float64
	for _, p := range field {
		for _, v := range []float64{p.X, p.Y, p.Z} {
			assert.GreaterOrEqual(t, v, -half)
			assert.Less(t, v, half)
		}
		spanX = [2]float64{min(spanX[0], p.X), max(spanX[1], p.X)}
		spanY = [2]float64{min(spanY[0], p.Y), max(spanY[1], p.Y)}
		spanZ = [2]float64{min(spanZ[0], p.Z), max(spanZ[1], p.Z)}
	}

	// 500 uniform draws cover most of each axis.
	for _, span := range [][2]float64{spanX, spanY, spanZ} {
		assert.Greater(t, span[1]-span[0], 0.8*DefaultParticleSpread)
	}
}

func TestNewParticleFieldIsSeeded(t *testing.T) {
	assert.Equal(t, NewParticleField(20, 4, 1), NewParticleField(20, 4, 1))
	assert.NotEqual(t, NewParticleField(20, 4, 1), NewParticleField(20, 4, 2))
}

func TestNewParticleFieldDisabled(t *testing.T) {
	assert.Nil(t, NewParticleField(0, 10, 1))
	assert.Nil(t, NewParticleField(10, 0, 1))
}
