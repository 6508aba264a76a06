package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// defaultWidth is used when the terminal size is unknown.
const defaultWidth = 100

// Renderer turns markdown into terminal output. Without a style it passes
// markdown through unchanged, which is what pipes and files get.
type Renderer struct {
	glam *glamour.TermRenderer
}

// NewRenderer styles output only when w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &Renderer{}
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	return NewStyledRenderer(width, glamour.WithAutoStyle())
}

// NewStyledRenderer always renders through glamour.
func NewStyledRenderer(width int, opts ...glamour.TermRendererOption) *Renderer {
	opts = append([]glamour.TermRendererOption{glamour.WithWordWrap(width)}, opts...)
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{glam: r}
}

// Styled reports whether output goes through glamour.
func (r *Renderer) Styled() bool { return r.glam != nil }

// Render returns markdown ready to print. Rendering failures fall back to the source.
func (r *Renderer) Render(markdown string) string {
	if r.glam == nil {
		return markdown
	}
	out, err := r.glam.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
