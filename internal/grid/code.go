package grid

import "github.com/san-kum/regime/internal/eos"

// Code is the one-byte classification stored per cell.
type Code byte

const (
	CodeGas        Code = 0
	CodeRadiation  Code = 1
	CodeDegeneracy Code = 2
	CodeMixed      Code = 3
)

// Codes lists every code in raster order.
var Codes = []Code{CodeGas, CodeRadiation, CodeDegeneracy, CodeMixed}

func (c Code) String() string {
	switch c {
	case CodeGas:
		return "gas"
	case CodeRadiation:
		return "radiation"
	case CodeDegeneracy:
		return "degeneracy"
	case CodeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Classify maps an evaluator channel onto a Code. Anything that is not one
// of the three named channels, ties included, becomes CodeMixed.
func Classify(ch eos.Channel) Code {
	switch ch {
	case eos.Gas:
		return CodeGas
	case eos.Radiation:
		return CodeRadiation
	case eos.Degeneracy:
		return CodeDegeneracy
	default:
		return CodeMixed
	}
}

func recognized(ch eos.Channel) bool {
	return ch == eos.Gas || ch == eos.Radiation || ch == eos.Degeneracy || ch == eos.Mixed
}
