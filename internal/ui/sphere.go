package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/utils"
)

const (
	// sphereBaseRadius is the radius in rows at scale 1.
	sphereBaseRadius = 6.0
	// sphereCanvasRadius bounds the drawing area so the layout does not jump
	// between beats.
	sphereCanvasRadius = 10
	// Terminal cells are roughly twice as tall as they are wide.
	cellAspect = 2.0
	ambient    = 0.12
)

var (
	shadeRamp     = []rune(".:-=+*#%@")
	particleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Faint(true)
)

const particleGlyph = "·"

// lightDir points from the surface towards the light: right, up and out of
// the screen.
var lightDir = normalize(1, 1, 1)

func normalize(x, y, z float64) [3]float64 {
	n := math.Sqrt(x*x + y*y + z*z)
	return [3]float64{x / n, y / n, z / n}
}

func canvasSize() (rows, cols int) {
	return 2*sphereCanvasRadius + 1, int(2*cellAspect*sphereCanvasRadius) + 1
}

func clampRadius(radius float64) float64 {
	return utils.Clamp(radius, 0.0, float64(sphereCanvasRadius))
}

// sphereIntensity lambert-shades a sphere of radius rows on a fixed canvas.
// Cells outside the sphere are negative.
func sphereIntensity(radius float64) [][]float64 {
	radius = clampRadius(radius)
	rows, cols := canvasSize()
	cy := float64(sphereCanvasRadius)
	cx := float64(cols-1) / 2

	grid := make([][]float64, rows)
	for y := range grid {
		grid[y] = make([]float64, cols)
		for x := range grid[y] {
			grid[y][x] = -1
			if radius <= 0 {
				continue
			}
			nx := (float64(x) - cx) / (cellAspect * radius)
			ny := (cy - float64(y)) / radius
			d2 := nx*nx + ny*ny
			if d2 > 1 {
				continue
			}
			nz := math.Sqrt(1 - d2)
			lambert := max(0, nx*lightDir[0]+ny*lightDir[1]+nz*lightDir[2])
			grid[y][x] = ambient + (1-ambient)*lambert
		}
	}
	return grid
}

// particleLayer projects the field onto the canvas, one object unit per
// sphereBaseRadius rows. Particles outside the canvas or behind the visible
// surface of a sphere of the given radius are dropped.
func particleLayer(particles []reaction.Particle, radius float64) [][]bool {
	radius = clampRadius(radius)
	rows, cols := canvasSize()
	cy := float64(sphereCanvasRadius)
	cx := float64(cols-1) / 2

	layer := make([][]bool, rows)
	for y := range layer {
		layer[y] = make([]bool, cols)
	}

	for _, p := range particles {
		x := int(math.Round(cx + p.X*cellAspect*sphereBaseRadius))
		y := int(math.Round(cy - p.Y*sphereBaseRadius))
		if x < 0 || x >= cols || y < 0 || y >= rows {
			continue
		}
		if radius > 0 {
			nx := (float64(x) - cx) / (cellAspect * radius)
			ny := (cy - float64(y)) / radius
			if d2 := nx*nx + ny*ny; d2 <= 1 {
				front := math.Sqrt(1-d2) * radius / sphereBaseRadius
				if p.Z <= front {
					continue
				}
			}
		}
		layer[y][x] = true
	}
	return layer
}

// renderSphere draws the shaded sphere for one visual state inside the
// particle field.
func renderSphere(state reaction.State, particles []reaction.Particle) string {
	radius := sphereBaseRadius * state.Scale
	grid := sphereIntensity(radius)
	dots := particleLayer(particles, radius)
	r, g, b := state.Color.RGB()

	lines := make([]string, len(grid))
	var sb strings.Builder
	for y, row := range grid {
		sb.Reset()
		for x, v := range row {
			if dots[y][x] {
				sb.WriteString(particleStyle.Render(particleGlyph))
				continue
			}
			if v < 0 {
				sb.WriteByte(' ')
				continue
			}
			idx := utils.ClampIndex(int(v*float64(len(shadeRamp))), len(shadeRamp))
			color := lipgloss.Color(shadeHex(r, g, b, v))
			sb.WriteString(lipgloss.NewStyle().Foreground(color).Render(string(shadeRamp[idx])))
		}
		lines[y] = sb.String()
	}
	return strings.Join(lines, "\n")
}

func shadeHex(r, g, b uint8, v float64) string {
	v = utils.Clamp(v, 0.0, 1.0)
	return fmt.Sprintf("#%02x%02x%02x",
		uint8(math.Round(float64(r)*v)),
		uint8(math.Round(float64(g)*v)),
		uint8(math.Round(float64(b)*v)))
}
