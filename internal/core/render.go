package core

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	renderMargin  = 12
	renderLeading = 4
	inkThreshold  = 128
)

// Renderer rasterizes a ReceiptRenderPayload into a fixed-width PNG suitable
// for 80mm thermal stock. Rendering is a pure function of the payload: same
// payload and copy type, byte-identical image. That property is what makes
// the payload cache a correctness optimization instead of a staleness risk.
type Renderer struct {
	width     int
	minHeight int

	title  font.Face
	header font.Face
	body   font.Face
	bold   font.Face

	// kitchen faces carry the configured font-scale multiplier
	kitchenBody font.Face
	kitchenBold font.Face
}

func NewRenderer(width, minHeight int, kitchenScale string) (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	boldFont, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}

	var mult float64
	switch kitchenScale {
	case "", "normal":
		mult = 1.0
	case "tall":
		mult = 1.5
	case "double":
		mult = 2.0
	default:
		return nil, fmt.Errorf("unknown kitchen scale %q", kitchenScale)
	}

	newFace := func(f *opentype.Font, size float64) (font.Face, error) {
		return opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	}

	r := &Renderer{width: width, minHeight: minHeight}

	faces := []struct {
		dst  *font.Face
		src  *opentype.Font
		size float64
	}{
		{&r.title, boldFont, 34},
		{&r.header, boldFont, 26},
		{&r.body, regular, 22},
		{&r.bold, boldFont, 22},
		{&r.kitchenBody, regular, 22 * mult},
		{&r.kitchenBold, boldFont, 22 * mult},
	}
	for _, f := range faces {
		face, err := newFace(f.src, f.size)
		if err != nil {
			return nil, fmt.Errorf("failed to build font face: %w", err)
		}
		*f.dst = face
	}

	return r, nil
}

// Render draws the receipt and returns PNG bytes. The canvas is laid out
// twice: a measuring pass to size the image exactly, then the drawing pass.
// The result is cropped below the last ink row (bounded by the minimum
// height) and forced to two gray levels so no anti-aliasing ambiguity
// reaches the printer's dot matrix.
func (r *Renderer) Render(p *ReceiptRenderPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	if len(p.Lines) == 0 {
		return nil, fmt.Errorf("payload has no lines")
	}

	height := r.layout(p, nil)

	img := image.NewGray(image.Rect(0, 0, r.width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	r.layout(p, img)

	img = r.crop(img)
	quantize(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// layout walks the full receipt, drawing onto dst when non-nil, and returns
// the total height consumed. Keeping measure and draw in one code path is
// what guarantees the two passes agree.
func (r *Renderer) layout(p *ReceiptRenderPayload, dst *image.Gray) int {
	c := &sheet{img: dst, width: r.width, y: renderMargin}

	c.centeredWrapped(r.title, p.RestaurantName)
	if p.Kitchen {
		c.space(4)
		c.centered(r.header, "** KITCHEN COPY **")
	}
	c.space(8)
	c.centered(r.header, "Order #"+p.OrderNumber)
	c.space(8)

	c.wrapped(r.body, p.CreatedText, renderMargin)
	if p.PickupText != "" {
		c.wrapped(r.bold, p.PickupText, renderMargin)
	}
	if p.CustomerText != "" {
		c.wrapped(r.body, p.CustomerText, renderMargin)
	}
	if p.Notes != "" {
		c.space(4)
		c.wrapped(r.body, "Note: "+p.Notes, renderMargin)
	}

	c.space(6)
	c.rule()
	c.space(6)

	itemFace, selFace := r.body, r.body
	if p.Kitchen {
		itemFace, selFace = r.kitchenBold, r.kitchenBody
	}
	qtyCol := font.MeasureString(itemFace, "88x ").Ceil()

	for _, line := range p.Lines {
		c.text(itemFace, fmt.Sprintf("%dx", line.Qty), renderMargin, false)
		c.wrapped(itemFace, line.Name, renderMargin+qtyCol)
		for _, sel := range line.Selections {
			indent := renderMargin + qtyCol + 12 + sel.IndentLevel*20
			c.wrapped(selFace, "- "+sel.Text, indent)
		}
		c.space(4)
	}

	if !p.Kitchen && p.TotalText != "" {
		c.space(2)
		c.rule()
		c.space(6)
		if p.SubtotalText != "" {
			c.labelValue(r.body, "Subtotal", p.SubtotalText)
		}
		if p.TaxText != "" {
			c.labelValue(r.body, "Tax", p.TaxText)
		}
		c.labelValue(r.bold, "Total", p.TotalText)
		c.space(10)
		c.centered(r.bold, "PAY AT PICKUP")
	}

	c.space(renderMargin)
	return c.y
}

func (r *Renderer) crop(img *image.Gray) *image.Gray {
	b := img.Bounds()
	lastInk := -1
	for y := b.Max.Y - 1; y >= 0 && lastInk < 0; y-- {
		rowStart := img.PixOffset(0, y)
		for x := 0; x < b.Max.X; x++ {
			if img.Pix[rowStart+x] < inkThreshold {
				lastInk = y
				break
			}
		}
	}

	height := lastInk + 1 + renderMargin
	if height < r.minHeight {
		height = r.minHeight
	}
	if height >= b.Max.Y {
		return img
	}

	out := image.NewGray(image.Rect(0, 0, b.Max.X, height))
	copy(out.Pix, img.Pix[:len(out.Pix)])
	return out
}

// quantize forces every pixel to pure black or pure white in place.
func quantize(img *image.Gray) {
	for i, v := range img.Pix {
		if v < inkThreshold {
			img.Pix[i] = 0x00
		} else {
			img.Pix[i] = 0xFF
		}
	}
}

// sheet is the layout cursor. A nil img means measuring only.
type sheet struct {
	img   *image.Gray
	width int
	y     int
}

func (c *sheet) space(px int) {
	c.y += px
}

func (c *sheet) text(face font.Face, s string, x int, advance bool) {
	metrics := face.Metrics()
	if c.img != nil {
		d := font.Drawer{
			Dst:  c.img,
			Src:  image.Black,
			Face: face,
			Dot:  fixed.P(x, c.y+metrics.Ascent.Ceil()),
		}
		d.DrawString(s)
	}
	if advance {
		c.y += metrics.Height.Ceil() + renderLeading
	}
}

func (c *sheet) centered(face font.Face, s string) {
	w := font.MeasureString(face, s).Ceil()
	x := (c.width - w) / 2
	if x < renderMargin {
		x = renderMargin
	}
	c.text(face, s, x, true)
}

func (c *sheet) centeredWrapped(face font.Face, s string) {
	for _, line := range wrapText(face, s, c.width-2*renderMargin) {
		c.centered(face, line)
	}
}

func (c *sheet) wrapped(face font.Face, s string, x int) {
	maxWidth := c.width - renderMargin - x
	for _, line := range wrapText(face, s, maxWidth) {
		c.text(face, line, x, true)
	}
}

func (c *sheet) labelValue(face font.Face, label, value string) {
	c.text(face, label, renderMargin, false)
	w := font.MeasureString(face, value).Ceil()
	c.text(face, value, c.width-renderMargin-w, true)
}

func (c *sheet) rule() {
	if c.img != nil {
		for y := c.y; y < c.y+2; y++ {
			for x := renderMargin; x < c.width-renderMargin; x++ {
				c.img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	c.y += 2
}

// wrapText breaks s on spaces so every line fits maxWidth. A single word
// wider than the line is kept whole; the glyph rasterizer clips it rather
// than this code guessing a hyphenation.
func wrapText(face font.Face, s string, maxWidth int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if font.MeasureString(face, candidate).Ceil() > maxWidth {
			lines = append(lines, current)
			current = word
		} else {
			current = candidate
		}
	}
	return append(lines, current)
}
