package render

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync/atomic"
	"unicode/utf8"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Placeholder card size.
const (
	CardWidth  = 800
	CardHeight = 600
)

// PlaceholderRenderer draws a plain PNG that reflects the layout parameters
// without any fonts or artwork. The same state always yields the same bytes.
type PlaceholderRenderer struct {
	count atomic.Int64
}

// NewPlaceholder creates a PlaceholderRenderer.
func NewPlaceholder() *PlaceholderRenderer {
	return &PlaceholderRenderer{}
}

// Count returns the number of renders so far.
func (p *PlaceholderRenderer) Count() int64 {
	return p.count.Load()
}

// Render draws st. The background is tinted per character and the text
// block is a bar sized by font size, line spacing and text length, placed at
// the offset from the centre.
func (p *PlaceholderRenderer) Render(ctx context.Context, st domain.RenderState) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	p.count.Add(1)

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: tint(st.Character)}, image.Point{}, draw.Src)

	chars := max(utf8.RuneCountInString(st.Text), 1)
	perLine := max(CardWidth*2/3/max(st.FontSize, 1), 1)
	lines := (chars + perLine - 1) / perLine
	w := min(chars, perLine) * st.FontSize
	h := int(float64(lines*st.FontSize) * st.LineSpacing)

	cx := CardWidth/2 + st.OffsetX
	cy := CardHeight/2 + st.OffsetY
	block := image.Rect(cx-w/2, cy-h/2, cx+w/2, cy+h/2).Intersect(img.Bounds())
	ink := color.RGBA{R: 40, G: 40, B: 40, A: 255}
	if st.CurveEnabled {
		ink = color.RGBA{R: 90, G: 40, B: 140, A: 255}
	}
	draw.Draw(img, block, &image.Uniform{C: ink}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

func tint(character string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(character))
	sum := h.Sum32()
	return color.RGBA{
		R: 180 + uint8(sum%64),
		G: 180 + uint8((sum>>8)%64),
		B: 180 + uint8((sum>>16)%64),
		A: 255,
	}
}
