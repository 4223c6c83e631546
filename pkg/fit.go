package drs4

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// PeakFitter estimates the position and height of a single peak from
// (time, value) pairs with the peak pointing upwards.
type PeakFitter interface {
	FitPeak(times, values []float64) (time float64, amplitude float64, converged bool)
}

func NewPeakFitter(name string) (PeakFitter, error) {
	switch name {
	case "", "gaussian":
		return &GaussianPeakFitter{MaxIterations: 2000}, nil
	case "parabola":
		return ParabolaPeakFitter{}, nil
	default:
		return nil, &ConfigurationError{Channel: -1, Key: "peak_fitter", Reason: fmt.Sprintf("unknown fitter %q", name)}
	}
}

// GaussianPeakFitter fits offset + A*exp(-(t-mu)^2/(2 sigma^2)) by
// minimizing the squared residuals with Nelder-Mead.
type GaussianPeakFitter struct {
	MaxIterations int
}

func (g *GaussianPeakFitter) FitPeak(times, values []float64) (float64, float64, bool) {
	if len(times) < 4 || len(times) != len(values) {
		return 0, 0, false
	}
	top := 0
	bottom := values[0]
	for i, v := range values {
		if v > values[top] {
			top = i
		}
		bottom = math.Min(bottom, v)
	}
	span := times[len(times)-1] - times[0]

	model := func(p []float64, t float64) float64 {
		d := (t - p[2]) / p[3]
		return p[0] + p[1]*math.Exp(-0.5*d*d)
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			if p[3] == 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, t := range times {
				r := values[i] - model(p, t)
				sse += r * r
			}
			return sse
		},
	}
	initial := []float64{bottom, values[top] - bottom, times[top], span / 4}
	settings := &optimize.Settings{
		MajorIterations: g.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-12,
			Iterations: 100,
		},
	}
	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || result == nil {
		return 0, 0, false
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge, optimize.StepConvergence, optimize.FunctionThreshold:
	default:
		return 0, 0, false
	}
	p := result.X
	if !(p[1] > 0) || math.IsNaN(p[2]) {
		return 0, 0, false
	}
	return p[2], p[0] + p[1], true
}

// ParabolaPeakFitter fits a second order polynomial by least squares.
type ParabolaPeakFitter struct{}

func (ParabolaPeakFitter) FitPeak(times, values []float64) (float64, float64, bool) {
	n := len(times)
	if n < 3 || n != len(values) {
		return 0, 0, false
	}
	// centre the abscissa for conditioning
	origin := times[n/2]
	design := mat.NewDense(n, 3, nil)
	for i, t := range times {
		x := t - origin
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
		design.Set(i, 2, x*x)
	}
	y := mat.NewVecDense(n, values)
	var coefficients mat.VecDense
	if err := coefficients.SolveVec(design, y); err != nil {
		return 0, 0, false
	}
	a, b, c := coefficients.AtVec(0), coefficients.AtVec(1), coefficients.AtVec(2)
	if !(c < 0) {
		return 0, 0, false
	}
	x := -b / (2 * c)
	return origin + x, a + b*x + c*x*x, true
}
