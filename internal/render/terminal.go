package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Terminal renders explanation markdown for a terminal using glamour.
// A width <= 0 defaults to 80 columns.
func Terminal(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}

	out, err := r.Render(strings.TrimSpace(md))
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
