package viz

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/regime/internal/grid"
)

// Theme colours the four regime codes and the surrounding chrome.
type Theme struct {
	Name       string
	Gas        lipgloss.Color
	Radiation  lipgloss.Color
	Degeneracy lipgloss.Color
	Mixed      lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
}

var (
	ThemeStellar = Theme{
		Name:       "stellar",
		Gas:        lipgloss.Color("#ffb347"), // warm orange
		Radiation:  lipgloss.Color("#6ec6ff"), // hot blue
		Degeneracy: lipgloss.Color("#c38cff"),
		Mixed:      lipgloss.Color("#555566"),
		Accent:     lipgloss.Color("#00ffff"),
		Muted:      lipgloss.Color("#666688"),
	}

	ThemeRetroGreen = Theme{
		Name:       "retro",
		Gas:        lipgloss.Color("#00ff00"),
		Radiation:  lipgloss.Color("#88ff88"),
		Degeneracy: lipgloss.Color("#008800"),
		Mixed:      lipgloss.Color("#003300"),
		Accent:     lipgloss.Color("#00ff00"),
		Muted:      lipgloss.Color("#005500"),
	}

	ThemeOcean = Theme{
		Name:       "ocean",
		Gas:        lipgloss.Color("#00a8cc"),
		Radiation:  lipgloss.Color("#ffd700"),
		Degeneracy: lipgloss.Color("#0077be"),
		Mixed:      lipgloss.Color("#4488aa"),
		Accent:     lipgloss.Color("#e0f0ff"),
		Muted:      lipgloss.Color("#4488aa"),
	}

	Themes = []Theme{
		ThemeStellar,
		ThemeRetroGreen,
		ThemeOcean,
	}
)

// GetTheme falls back to the stellar theme for unknown names.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeStellar
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

func (t Theme) Color(c grid.Code) lipgloss.Color {
	switch c {
	case grid.CodeGas:
		return t.Gas
	case grid.CodeRadiation:
		return t.Radiation
	case grid.CodeDegeneracy:
		return t.Degeneracy
	default:
		return t.Mixed
	}
}
