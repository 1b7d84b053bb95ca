package starlark

import (
	"errors"
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Time value of money functions. Payments fall at the end of each period and
// cash paid out is negative, matching spreadsheet conventions.

func newFinanceModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: ModuleFinance,
		Members: starlark.StringDict{
			"npv": starlark.NewBuiltin("npv", financeNPV),
			"irr": starlark.NewBuiltin("irr", financeIRR),
			"pmt": starlark.NewBuiltin("pmt", financePMT),
			"fv":  starlark.NewBuiltin("fv", financeFV),
			"pv":  starlark.NewBuiltin("pv", financePV),
		},
	}
}

// NPV discounts flows[t] by (1 + rate) ** t, starting at t = 0.
func NPV(rate float64, flows []float64) float64 {
	var total float64
	for t, cf := range flows {
		total += cf / math.Pow(1+rate, float64(t))
	}
	return total
}

var errNoIRR = errors.New("no rate sets the net present value to zero")

// IRR returns the rate at which NPV(rate, flows) is zero.
func IRR(flows []float64) (float64, error) {
	var pos, neg bool
	for _, cf := range flows {
		pos = pos || cf > 0
		neg = neg || cf < 0
	}
	if !pos || !neg {
		return 0, fmt.Errorf("%w: flows need both a positive and a negative value", errNoIRR)
	}

	const tol = 1e-10
	r := 0.1
	for i := 0; i < 100; i++ {
		f, df := NPV(r, flows), npvDerivative(r, flows)
		if df == 0 {
			break
		}
		next := r - f/df
		if math.IsNaN(next) || next <= -1 {
			break
		}
		if math.Abs(next-r) < tol {
			return next, nil
		}
		r = next
	}

	// Newton failed to settle: bisect over a bracket with a sign change.
	lo, hi := -0.9999, 10.0
	flo := NPV(lo, flows)
	if flo*NPV(hi, flows) > 0 {
		return 0, errNoIRR
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fmid := NPV(mid, flows)
		if math.Abs(fmid) < tol || hi-lo < tol {
			return mid, nil
		}
		if flo*fmid < 0 {
			hi = mid
		} else {
			lo, flo = mid, fmid
		}
	}
	return (lo + hi) / 2, nil
}

func npvDerivative(rate float64, flows []float64) float64 {
	var total float64
	for t, cf := range flows {
		if t == 0 {
			continue
		}
		total -= float64(t) * cf / math.Pow(1+rate, float64(t+1))
	}
	return total
}

// PMT is the level payment that amortizes pv to fv over nper periods.
func PMT(rate, nper, pv, fv float64) float64 {
	if rate == 0 {
		return -(fv + pv) / nper
	}
	g := math.Pow(1+rate, nper)
	return -(fv + pv*g) * rate / (g - 1)
}

// FV is the value after nper periods of pmt payments on an initial pv.
func FV(rate, nper, pmt, pv float64) float64 {
	if rate == 0 {
		return -(pv + pmt*nper)
	}
	g := math.Pow(1+rate, nper)
	return -(pv*g + pmt*(g-1)/rate)
}

// PV is the present value of nper payments of pmt plus a final fv.
func PV(rate, nper, pmt, fv float64) float64 {
	if rate == 0 {
		return -(fv + pmt*nper)
	}
	g := math.Pow(1+rate, nper)
	return -(fv + pmt*(g-1)/rate) / g
}

func financeNPV(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rate floatArg
	var flows starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rate", &rate, "flows", &flows); err != nil {
		return nil, err
	}
	xs, err := floatsFrom(thread, b.Name(), flows)
	if err != nil {
		return nil, err
	}
	return starlark.Float(NPV(float64(rate), xs)), nil
}

func financeIRR(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var flows starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "flows", &flows); err != nil {
		return nil, err
	}
	xs, err := floatsFrom(thread, b.Name(), flows)
	if err != nil {
		return nil, err
	}
	r, err := IRR(xs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Float(r), nil
}

func financePMT(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rate, nper, pv, fv floatArg
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rate", &rate, "nper", &nper, "pv", &pv, "fv?", &fv); err != nil {
		return nil, err
	}
	if nper == 0 {
		return nil, fmt.Errorf("%s: nper must not be zero", b.Name())
	}
	return starlark.Float(PMT(float64(rate), float64(nper), float64(pv), float64(fv))), nil
}

func financeFV(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rate, nper, pmt, pv floatArg
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rate", &rate, "nper", &nper, "pmt", &pmt, "pv?", &pv); err != nil {
		return nil, err
	}
	return starlark.Float(FV(float64(rate), float64(nper), float64(pmt), float64(pv))), nil
}

func financePV(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rate, nper, pmt, fv floatArg
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rate", &rate, "nper", &nper, "pmt", &pmt, "fv?", &fv); err != nil {
		return nil, err
	}
	return starlark.Float(PV(float64(rate), float64(nper), float64(pmt), float64(fv))), nil
}

// floatArg unpacks an int or float argument.
type floatArg float64

func (f *floatArg) Unpack(v starlark.Value) error {
	x, err := toFloat(v)
	if err != nil {
		return err
	}
	*f = floatArg(x)
	return nil
}
