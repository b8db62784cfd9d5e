// Package render draws the Julia hydra image that closes a run.
// The fractal is an escape-time Julia set coloured with a plasma ramp; each
// run gets its own simplex-noise texture seeded from the run id.
package render

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/cmplx"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
)

// DefaultC is the Julia constant c.
var DefaultC = complex(-0.7, 0.27015)

// View window on the complex plane.
const (
	MinX, MaxX = -2.0, 1.0
	MinY, MaxY = -1.5, 1.5

	// EscapeRadius bounds |z| before a point is counted as diverged.
	EscapeRadius = 2.0

	// textureStrength is the brightness swing of the noise overlay.
	textureStrength = 0.15
	// bandHeight is the depth gauge strip drawn along the bottom edge.
	bandHeight = 6
)

// Options sizes the image.
type Options struct {
	Width   int
	Height  int
	MaxIter int
	C       complex128
}

// DefaultOptions matches the stock 1000x1000, 300 iteration image.
func DefaultOptions() Options {
	return Options{Width: 1000, Height: 1000, MaxIter: 300, C: DefaultC}
}

func (o Options) validate() error {
	if o.Width < 1 || o.Height < 1 {
		return fmt.Errorf("render size must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.MaxIter < 1 {
		return fmt.Errorf("max iterations must be positive, got %d", o.MaxIter)
	}
	return nil
}

// JuliaSet returns the escape iteration of every pixel, indexed [row][col].
// Points that never escape hold maxIter. Pixel centres span the view window
// inclusively on both axes.
func JuliaSet(w, h, maxIter int, c complex128) [][]int {
	grid := make([][]int, h)
	for row := range grid {
		grid[row] = make([]int, w)
		y := lerp(MinY, MaxY, row, h)
		for col := range grid[row] {
			z := complex(lerp(MinX, MaxX, col, w), y)
			grid[row][col] = escapeTime(z, c, maxIter)
		}
	}
	return grid
}

func escapeTime(z, c complex128, maxIter int) int {
	for i := 0; i < maxIter; i++ {
		z = z*z + c
		if cmplx.Abs(z) > EscapeRadius {
			return i
		}
	}
	return maxIter
}

// lerp maps index i of n evenly spaced samples onto [lo, hi].
func lerp(lo, hi float64, i, n int) float64 {
	if n == 1 {
		return (lo + hi) / 2
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// Render draws the report's Julia hydra.
func Render(rep engine.Report, opts Options) (*image.RGBA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.C == 0 {
		opts.C = DefaultC
	}

	grid := JuliaSet(opts.Width, opts.Height, opts.MaxIter, opts.C)
	noise := opensimplex.NewNormalized(NoiseSeed(rep.RunID))
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))

	for y, row := range grid {
		for x, it := range row {
			t := float64(it) / float64(opts.MaxIter)
			n := octaveNoise(noise, float64(x)/float64(opts.Width), float64(y)/float64(opts.Height), 3, 4, 0.5)
			shade := 1 + textureStrength*(2*n-1)
			img.SetRGBA(x, y, scale(Plasma(t), shade))
		}
	}

	drawDepthGauge(img, rep)
	return img, nil
}

// drawDepthGauge fills the bottom strip in proportion to how deep the
// colony grew relative to its depth limit.
func drawDepthGauge(img *image.RGBA, rep engine.Report) {
	b := img.Bounds()
	if b.Dy() <= bandHeight*2 || rep.MaxDepth <= 0 {
		return
	}
	frac := float64(rep.MaxDepthReached) / float64(rep.MaxDepth)
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(b.Dx()))
	for y := b.Max.Y - bandHeight; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if x < filled {
				img.SetRGBA(x, y, Plasma(1))
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 0xff})
			}
		}
	}
}

// octaveNoise layers several noise frequencies and returns a value in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// NoiseSeed derives the texture seed from a run id. UUIDs use their first
// eight bytes; anything else is hashed.
func NoiseSeed(runID string) int64 {
	if id, err := uuid.Parse(runID); err == nil {
		return int64(binary.BigEndian.Uint64(id[:8]))
	}
	h := fnv.New64a()
	h.Write([]byte(runID))
	return int64(h.Sum64())
}

// plasmaStops approximates matplotlib's plasma colormap.
var plasmaStops = []color.RGBA{
	{0x0d, 0x08, 0x87, 0xff},
	{0x6a, 0x00, 0xa8, 0xff},
	{0xb1, 0x2a, 0x90, 0xff},
	{0xe1, 0x64, 0x62, 0xff},
	{0xfc, 0xa6, 0x36, 0xff},
	{0xf0, 0xf9, 0x21, 0xff},
}

// Plasma maps t in [0, 1] onto the plasma ramp.
func Plasma(t float64) color.RGBA {
	switch {
	case t <= 0:
		return plasmaStops[0]
	case t >= 1:
		return plasmaStops[len(plasmaStops)-1]
	}
	pos := t * float64(len(plasmaStops)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := plasmaStops[i], plasmaStops[i+1]
	return color.RGBA{
		R: mix(a.R, b.R, f),
		G: mix(a.G, b.G, f),
		B: mix(a.B, b.B, f),
		A: 0xff,
	}
}

func mix(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*f + 0.5)
}

func scale(c color.RGBA, k float64) color.RGBA {
	ch := func(v uint8) uint8 {
		x := float64(v) * k
		if x > 255 {
			return 255
		}
		if x < 0 {
			return 0
		}
		return uint8(x)
	}
	return color.RGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: c.A}
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Filename returns the image path for a render of a model's run taken at t.
func Filename(dir, model string, t time.Time) string {
	prefix := "ultimate_julia_hydra_"
	if model == hydra.ModelCore.String() {
		prefix = "julia_core_"
	}
	return filepath.Join(dir, prefix+t.Format("20060102_150405")+".png")
}

// WritePNG writes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Save renders rep and writes it under dir, returning the file path.
func Save(rep engine.Report, opts Options, dir string, now time.Time) (string, error) {
	img, err := Render(rep, opts)
	if err != nil {
		return "", err
	}
	path := Filename(dir, rep.Model, now)
	if err := WritePNG(path, img); err != nil {
		return "", err
	}
	return path, nil
}

// Title is the caption printed with a render.
func Title(rep engine.Report) string {
	if rep.Model == hydra.ModelCore.String() {
		return fmt.Sprintf("SERAPHIN - Julia Set Visualization (Core) | Clones: %d | Profits: %.0f USDC | Max Depth: %d",
			rep.CloneCount, rep.TotalProfit, rep.MaxDepthReached)
	}
	return fmt.Sprintf("SERAPHIN - Ultimate Julia Hydra | Clones: %d | Profits: %.0f USDC | Max Depth: %d | Mutations: %d",
		rep.CloneCount, rep.TotalProfit, rep.MaxDepthReached, rep.Mutations)
}
