package cli

import (
	"fmt"

	"github.com/seantiz/tubetree/internal/model"
)

// FlagArg maps a record parameter to a long command-line flag.
type FlagArg struct {
	Param string
	Flag  string
}

// ModuleDescriptor describes how the parameters of an execution record are
// laid out on the command line of a module executable: flags first, then
// positional arguments in order.
type ModuleDescriptor struct {
	Name       string
	Flags      []FlagArg
	Positional []string
}

// TubesToTree is the descriptor of the tubes-to-tree conversion tool.
var TubesToTree = ModuleDescriptor{
	Name: "TubesToTree",
	Flags: []FlagArg{
		{Param: "maxTubeDistanceToRadiusRatio", Flag: "--maxTubeDistanceToRadiusRatio"},
		{Param: "maxContinuityAngleError", Flag: "--maxContinuityAngleError"},
		{Param: "removeOrphanTubes", Flag: "--removeOrphanTubes"},
		{Param: "rootTubeIdList", Flag: "--rootTubeIdList"},
	},
	Positional: []string{"inputTREFile", "outputTREFile"},
}

// BuildArgs renders params as command-line arguments. Boolean parameters
// become a bare flag when true and are omitted when false; empty string
// parameters are omitted. Every positional parameter is required.
func (d ModuleDescriptor) BuildArgs(params []model.Param) ([]string, error) {
	byName := make(map[string]model.Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	var args []string
	for _, f := range d.Flags {
		p, ok := byName[f.Param]
		if !ok {
			continue
		}
		switch p.Type {
		case model.ParamBool:
			if p.Value == "true" {
				args = append(args, f.Flag)
			}
		default:
			if p.Value != "" {
				args = append(args, f.Flag, p.Value)
			}
		}
	}

	for _, name := range d.Positional {
		p, ok := byName[name]
		if !ok || p.Value == "" {
			return nil, fmt.Errorf("module %s: missing required parameter %q", d.Name, name)
		}
		args = append(args, p.Value)
	}
	return args, nil
}
