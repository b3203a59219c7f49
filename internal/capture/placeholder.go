package capture

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 768

	headerHeight = 120
	borderWidth  = 4
)

var (
	passColor  = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	failColor  = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	background = color.RGBA{R: 248, G: 249, B: 250, A: 255}
	cardColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	lineColor  = color.RGBA{R: 222, G: 226, B: 230, A: 255}
)

// Placeholder draws a synthetic evidence card without a browser. Output is
// deterministic for a given Shot.
type Placeholder struct {
	Width  int
	Height int
}

func (p Placeholder) size() (int, int) {
	w, h := p.Width, p.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

func (p Placeholder) Capture(ctx context.Context, shot Shot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := p.size()
	accent := failColor
	if shot.Passed {
		accent = passColor
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	// Header band fading from the accent colour to a darker shade.
	for y := 0; y < headerHeight && y < h; y++ {
		c := shade(accent, 1-0.4*float64(y)/float64(headerHeight))
		draw.Draw(img, image.Rect(0, y, w, y+1), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	card := image.Rect(40, headerHeight+40, w-40, h-40)
	if card.Dy() > 0 && card.Dx() > 0 {
		draw.Draw(img, card, &image.Uniform{C: cardColor}, image.Point{}, draw.Src)
		drawFingerprint(img, card, shot, accent)
	}

	drawBorder(img, accent, borderWidth)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawFingerprint lays out rows of blocks derived from the ticket key and the
// entry text so distinct entries yield distinct images.
func drawFingerprint(img *image.RGBA, card image.Rectangle, shot Shot, accent color.RGBA) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(shot.TicketKey))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(shot.Text))
	sum := h.Sum64()

	const rows, cols = 6, 16
	cellW := card.Dx() / (cols + 2)
	cellH := card.Dy() / (rows * 2)
	if cellW <= 0 || cellH <= 0 {
		return
	}
	for r := 0; r < rows; r++ {
		y0 := card.Min.Y + cellH + r*2*cellH
		draw.Draw(img, image.Rect(card.Min.X+cellW, y0+cellH+cellH/2, card.Max.X-cellW, y0+cellH+cellH/2+1),
			&image.Uniform{C: lineColor}, image.Point{}, draw.Src)
		for c := 0; c < cols; c++ {
			bit := (sum >> uint((r*cols+c)%64)) & 1
			if bit == 0 {
				continue
			}
			x0 := card.Min.X + cellW + c*cellW
			rect := image.Rect(x0+2, y0+2, x0+cellW-2, y0+cellH-2)
			draw.Draw(img, rect, &image.Uniform{C: shade(accent, 0.6+0.4*float64(c)/cols)}, image.Point{}, draw.Src)
		}
	}
}

func drawBorder(img *image.RGBA, c color.RGBA, width int) {
	b := img.Bounds()
	u := &image.Uniform{C: c}
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y), u, image.Point{}, draw.Src)
}

func shade(c color.RGBA, f float64) color.RGBA {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return color.RGBA{R: uint8(float64(c.R) * f), G: uint8(float64(c.G) * f), B: uint8(float64(c.B) * f), A: 255}
}
