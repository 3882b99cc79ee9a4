package mission

import "path/filepath"

// Params are the inputs of one mission. Zero fields fall back to the
// controller's defaults.
type Params struct {
	DomainPath     string `json:"domainPath" yaml:"domain_path"`
	ProblemPath    string `json:"problemPath" yaml:"problem_path"`
	DataPath       string `json:"dataPath" yaml:"data_path"`
	PlannerCommand string `json:"plannerCommand" yaml:"planner_command"`
}

// WithDefaults fills empty fields from d.
func (p Params) WithDefaults(d Params) Params {
	if p.DomainPath == "" {
		p.DomainPath = d.DomainPath
	}
	if p.ProblemPath == "" {
		p.ProblemPath = d.ProblemPath
	}
	if p.DataPath == "" {
		p.DataPath = d.DataPath
	}
	if p.PlannerCommand == "" {
		p.PlannerCommand = d.PlannerCommand
	}
	return p
}

// Clean normalizes the paths.
func (p Params) Clean() Params {
	for _, s := range []*string{&p.DomainPath, &p.ProblemPath, &p.DataPath} {
		if *s != "" {
			*s = filepath.Clean(*s)
		}
	}
	return p
}
