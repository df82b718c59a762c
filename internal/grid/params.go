package grid

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/regime/internal/eos"
)

// Params describes one sweep. It is a value type and is never mutated after
// it has been handed to a channel.
type Params struct {
	LogTMin     float64         `yaml:"log_t_min" json:"logTMin"`
	LogTMax     float64         `yaml:"log_t_max" json:"logTMax"`
	LogRhoMin   float64         `yaml:"log_rho_min" json:"logRhoMin"`
	LogRhoMax   float64         `yaml:"log_rho_max" json:"logRhoMax"`
	Columns     uint32          `yaml:"columns" json:"cols"`
	Rows        uint32          `yaml:"rows" json:"rows"`
	Composition eos.Composition `yaml:"composition" json:"composition"`
	Eta         float64         `yaml:"eta" json:"eta"`
}

// Spec is Params stamped with the dispatcher's sequence number.
type Spec struct {
	Params
	Seq uint64
}

// Validate reports every problem at once. Min > max is allowed.
func (p Params) Validate() error {
	var errs *multierror.Error

	if p.Columns == 0 {
		errs = multierror.Append(errs, fmt.Errorf("columns must be at least 1"))
	}
	if p.Rows == 0 {
		errs = multierror.Append(errs, fmt.Errorf("rows must be at least 1"))
	}

	bounds := []struct {
		name string
		v    float64
	}{
		{"log_t_min", p.LogTMin},
		{"log_t_max", p.LogTMax},
		{"log_rho_min", p.LogRhoMin},
		{"log_rho_max", p.LogRhoMax},
		{"eta", p.Eta},
	}
	for _, b := range bounds {
		if math.IsNaN(b.v) || math.IsInf(b.v, 0) {
			errs = multierror.Append(errs, fmt.Errorf("%s must be finite, got %v", b.name, b.v))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// Cells returns Columns*Rows without overflowing.
func (p Params) Cells() uint64 {
	return uint64(p.Columns) * uint64(p.Rows)
}

// LogT returns log10 T for column i. A single column maps to LogTMin.
func (p Params) LogT(i int) float64 {
	return p.LogTMin + float64(i)*(p.LogTMax-p.LogTMin)/float64(max(1, int(p.Columns)-1))
}

// LogRho returns log10 ρ for row j. A single row maps to LogRhoMin.
func (p Params) LogRho(j int) float64 {
	return p.LogRhoMin + float64(j)*(p.LogRhoMax-p.LogRhoMin)/float64(max(1, int(p.Rows)-1))
}
