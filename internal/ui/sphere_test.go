package ui

import (
	"math"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybre/beatviz/internal/reaction"
)

func litCells(grid [][]float64) int {
	n := 0
	for _, row := range grid {
		for _, v := range row {
			if v >= 0 {
				n++
			}
		}
	}
	return n
}

func TestSphereGrowsWithScale(t *testing.T) {
	rest := sphereIntensity(sphereBaseRadius * 1.0)
	beat := sphereIntensity(sphereBaseRadius * 1.5)

	require.Len(t, rest, len(beat), "canvas size is fixed")
	assert.Greater(t, litCells(beat), litCells(rest))
	assert.Zero(t, litCells(sphereIntensity(0)))
}

func TestSphereIsLitFromUpperRight(t *testing.T) {
	grid := sphereIntensity(8)
	mid := len(grid) / 2
	cx := (len(grid[mid]) - 1) / 2

	center := grid[mid][cx]
	upperRight := grid[mid-4][cx+8]
	lowerLeft := grid[mid+4][cx-8]

	require.GreaterOrEqual(t, lowerLeft, 0.0)
	assert.Greater(t, upperRight, lowerLeft)
	assert.Greater(t, center, lowerLeft)
	for _, row := range grid {
		for _, v := range row {
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSphereClampsToCanvas(t *testing.T) {
	assert.Equal(t, litCells(sphereIntensity(sphereCanvasRadius)), litCells(sphereIntensity(100)))
}

func TestRenderSphere(t *testing.T) {
	out := ansi.Strip(renderSphere(reaction.State{Scale: 1, Color: reaction.Red}, nil))
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2*sphereCanvasRadius+1)
	assert.Contains(t, out, "@")
	assert.Equal(t, strings.Repeat(" ", len(lines[0])), lines[0], "top row is outside the rest radius")
}

func TestParticleLayerProjectsAndOccludes(t *testing.T) {
	rows, cols := canvasSize()
	cy, cx := sphereCanvasRadius, (cols-1)/2

	layer := particleLayer([]reaction.Particle{
		{X: 0, Y: 1.5, Z: 0},    // above the rest sphere
		{X: 1.2, Y: 0, Z: 0},    // beside it, x is stretched by the cell aspect
		{X: 0, Y: 0, Z: -2},     // hidden behind it
		{X: 0.2, Y: 0.2, Z: 3},  // in front of it
		{X: 4.5, Y: -4.5, Z: 0}, // off the canvas
	}, sphereBaseRadius)
	require.Len(t, layer, rows)

	assert.True(t, layer[cy-9][cx])
	assert.True(t, layer[cy][cx+14])
	assert.False(t, layer[cy][cx])
	assert.True(t, layer[cy-1][cx+2])

	count := 0
	for _, row := range layer {
		for _, on := range row {
			if on {
				count++
			}
		}
	}
	assert.Equal(t, 3, count)
}

func TestParticleBehindGrowingSphere(t *testing.T) {
	p := []reaction.Particle{{X: 0, Y: 1.2, Z: 0.1}}
	_, cols := canvasSize()
	y, x := sphereCanvasRadius-int(math.Round(1.2*sphereBaseRadius)), (cols-1)/2

	assert.True(t, particleLayer(p, sphereBaseRadius)[y][x], "outside the rest sphere")
	assert.False(t, particleLayer(p, 1.5*sphereBaseRadius)[y][x], "covered by the beat sphere")
}

func TestRenderSphereWithParticles(t *testing.T) {
	field := reaction.NewParticleField(reaction.DefaultParticleCount, reaction.DefaultParticleSpread, 1)
	out := ansi.Strip(renderSphere(reaction.State{Scale: 1, Color: reaction.Green}, field))
	lines := strings.Split(out, "\n")

	assert.Len(t, lines, 2*sphereCanvasRadius+1)
	assert.Contains(t, out, particleGlyph)
	shaded := 0
	for _, r := range out {
		if strings.ContainsRune(string(shadeRamp), r) {
			shaded++
		}
	}
	assert.Greater(t, shaded, 50, "the sphere is still drawn")
	for _, line := range lines {
		assert.Equal(t, len([]rune(lines[0])), len([]rune(line)), "canvas rows keep their width")
	}
}

func TestShadeHex(t *testing.T) {
	assert.Equal(t, "#ff0000", shadeHex(255, 0, 0, 1))
	assert.Equal(t, "#800000", shadeHex(255, 0, 0, 0.5))
	assert.Equal(t, "#000000", shadeHex(255, 255, 255, -1))
}
