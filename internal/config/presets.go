package config

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/san-kum/regime/internal/eos"
	"github.com/san-kum/regime/internal/grid"
)

type Preset struct {
	Description string      `json:"description"`
	Grid        grid.Params `json:"grid"`
}

var Presets = map[string]Preset{
	"solar": {
		Description: "Population I mixture over the main-sequence range",
		Grid: grid.Params{
			LogTMin: 3, LogTMax: 9, LogRhoMin: -10, LogRhoMax: 8,
			Columns: 96, Rows: 48,
			Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
		},
	},
	"pop3": {
		Description: "Metal-free primordial gas",
		Grid: grid.Params{
			LogTMin: 3, LogTMax: 9, LogRhoMin: -10, LogRhoMax: 8,
			Columns: 96, Rows: 48,
			Composition: eos.Composition{X: 0.75, Y: 0.25, Z: 0},
		},
	},
	"helium-core": {
		Description: "Hydrogen-exhausted core of a red giant",
		Grid: grid.Params{
			LogTMin: 6, LogTMax: 9, LogRhoMin: 0, LogRhoMax: 8,
			Columns: 96, Rows: 48,
			Composition: eos.Composition{X: 0, Y: 0.98, Z: 0.02},
		},
	},
	"white-dwarf": {
		Description: "Carbon-oxygen matter at white dwarf densities",
		Grid: grid.Params{
			LogTMin: 4, LogTMax: 8, LogRhoMin: 2, LogRhoMax: 10,
			Columns: 96, Rows: 48,
			Composition: eos.Composition{X: 0, Y: 0, Z: 1},
		},
	},
	"massive": {
		Description: "Radiation-pressure supported envelope with non-LTE departure",
		Grid: grid.Params{
			LogTMin: 4, LogTMax: 9, LogRhoMin: -12, LogRhoMax: 2,
			Columns: 96, Rows: 48,
			Composition: eos.Composition{X: 0.7, Y: 0.28, Z: 0.02},
			Eta:         0.5,
		},
	},
}

func GetPreset(name string) (Preset, error) {
	p, ok := Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// ListPresets returns preset names in sorted order.
func ListPresets() []string {
	names := lo.Keys(Presets)
	sort.Strings(names)
	return names
}
