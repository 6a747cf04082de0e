package preset

import (
	"fmt"

	"github.com/samber/lo"
)

// Parameter names a group of user operation fields the pipeline fills.
type Parameter string

const (
	ParamFactory   Parameter = "factory"
	ParamFees      Parameter = "fees"
	ParamGas       Parameter = "gas"
	ParamNonce     Parameter = "nonce"
	ParamPaymaster Parameter = "paymaster"
	ParamSignature Parameter = "signature"
	ParamSidecars  Parameter = "sidecars"
)

// DefaultParameters fills everything.
var DefaultParameters = []Parameter{
	ParamFactory,
	ParamFees,
	ParamGas,
	ParamNonce,
	ParamPaymaster,
	ParamSignature,
	ParamSidecars,
}

// ParseParameters reads parameter names from flags or configuration.
func ParseParameters(names []string) ([]Parameter, error) {
	params := lo.Map(names, func(n string, _ int) Parameter { return Parameter(n) })
	if unknown, ok := lo.Find(params, func(p Parameter) bool {
		return !lo.Contains(DefaultParameters, p)
	}); ok {
		return nil, fmt.Errorf("unknown parameter %q", unknown)
	}
	return lo.Uniq(params), nil
}

type parameterSet []Parameter

func (s parameterSet) has(p Parameter) bool {
	return lo.Contains(s, p)
}
