package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/objective"
	"github.com/cwbudde/onefifth/internal/store"
)

// jobFlags binds the run configuration flags shared by run, bench and
// compare.
type jobFlags struct {
	cfg    store.JobConfig
	target float64
}

func (f *jobFlags) register(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringVar(&f.cfg.Objective, "objective", d.Objective, "Objective function: "+strings.Join(objective.Names(), ", "))
	fs.IntVar(&f.cfg.Dim, "dim", d.Dim, "Problem dimension")
	fs.Float64Var(&f.cfg.Lower, "lower", 0, "Lower bound of the start region (0 with --upper 0 = objective default)")
	fs.Float64Var(&f.cfg.Upper, "upper", 0, "Upper bound of the start region")
	fs.Float64Var(&f.cfg.Sigma0, "sigma0", d.Sigma0, "Initial step size")
	fs.Float64Var(&f.cfg.C, "c", d.C, "Step-size factor in (0,1]")
	fs.Float64Var(&f.cfg.TargetSuccess, "target-success", 0, "Target success rate (0 = 1/5)")
	fs.Float64Var(&f.cfg.LearningRate, "learning-rate", 0, "Success estimate learning rate (0 = from target and lambda)")
	fs.IntVar(&f.cfg.Lambda, "lambda", d.Lambda, "Offspring per generation")
	fs.StringVar(&f.cfg.Rule, "rule", d.Rule, "Step-size rule: onefifth, smooth")
	fs.StringVar(&f.cfg.Estimator, "estimator", d.Estimator, "Success estimator: ema, cumulative")
	fs.IntVar(&f.cfg.Generations, "generations", d.Generations, "Generation budget (0 = until a stop condition)")
	fs.Int64Var(&f.cfg.Seed, "seed", d.Seed, "Random seed")
	fs.Float64Var(&f.target, "target", 0, "Stop once the best fitness is at or below this value")
	fs.IntVar(&f.cfg.Patience, "patience", 0, "Stop after this many generations without improvement (0 = disabled)")
	fs.Float64Var(&f.cfg.Threshold, "threshold", 0, "Minimum relative improvement counted by --patience")
}

// resolve builds the effective configuration: defaults, then the --config
// file, then every flag set on the command line.
func (f *jobFlags) resolve(fs *pflag.FlagSet) (store.JobConfig, error) {
	jc := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath, jc)
		if err != nil {
			return store.JobConfig{}, err
		}
		jc = loaded
	}

	apply := map[string]func(){
		"objective":      func() { jc.Objective = f.cfg.Objective },
		"dim":            func() { jc.Dim = f.cfg.Dim },
		"lower":          func() { jc.Lower = f.cfg.Lower },
		"upper":          func() { jc.Upper = f.cfg.Upper },
		"sigma0":         func() { jc.Sigma0 = f.cfg.Sigma0 },
		"c":              func() { jc.C = f.cfg.C },
		"target-success": func() { jc.TargetSuccess = f.cfg.TargetSuccess },
		"learning-rate":  func() { jc.LearningRate = f.cfg.LearningRate },
		"lambda":         func() { jc.Lambda = f.cfg.Lambda },
		"rule":           func() { jc.Rule = f.cfg.Rule },
		"estimator":      func() { jc.Estimator = f.cfg.Estimator },
		"generations":    func() { jc.Generations = f.cfg.Generations },
		"seed":           func() { jc.Seed = f.cfg.Seed },
		"patience":       func() { jc.Patience = f.cfg.Patience },
		"threshold":      func() { jc.Threshold = f.cfg.Threshold },
		"target": func() {
			t := f.target
			jc.TargetFitness = &t
		},
	}
	fs.Visit(func(fl *pflag.Flag) {
		if fn, ok := apply[fl.Name]; ok {
			fn()
		}
	})

	if err := config.Validate(jc); err != nil {
		return store.JobConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return jc, nil
}
