package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/batch-eval/internal/llm"
	"github.com/stellarlinkco/batch-eval/internal/mapping"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// suiteFile is the on-disk description of one evaluation: the dataset to
// score and the scorers to apply to it.
type suiteFile struct {
	Dataset string        `yaml:"dataset,omitempty"`
	Scorers []suiteScorer `yaml:"scorers"`
}

type suiteScorer struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Mapping map[string]any `yaml:"mapping,omitempty"`

	// Judge scorers.
	Provider string   `yaml:"provider,omitempty"`
	Criteria string   `yaml:"criteria,omitempty"`
	Rubric   []string `yaml:"rubric,omitempty"`
	Scale    int      `yaml:"scale,omitempty"`

	// Remote scorers.
	Config  map[string]any `yaml:"config,omitempty"`
	Params  []string       `yaml:"params,omitempty"`
	Outputs []string       `yaml:"outputs,omitempty"`
}

func loadSuite(path string) (*suiteFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suite: read %q: %w", path, err)
	}

	var sf suiteFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("suite: parse %q: %w", path, err)
	}
	if len(sf.Scorers) == 0 {
		return nil, fmt.Errorf("suite: %q declares no scorers", path)
	}
	return &sf, nil
}

// buildScorers materializes a suite's scorer declarations. Judge scorers
// resolve their provider from the registry, falling back to the
// configured default.
func buildScorers(sf *suiteFile, reg *llm.Registry, defaultProvider string) ([]scorer.Local, []*scorer.Remote, map[string]mapping.Spec, error) {
	if sf == nil {
		return nil, nil, nil, fmt.Errorf("suite: nil suite")
	}

	var locals []scorer.Local
	var remotes []*scorer.Remote
	specs := make(map[string]mapping.Spec)

	for i, sc := range sf.Scorers {
		name := strings.TrimSpace(sc.Name)
		typ := strings.ToLower(strings.TrimSpace(sc.Type))
		if typ == "" {
			return nil, nil, nil, fmt.Errorf("suite: scorer %d: missing type", i)
		}

		switch typ {
		case "exact_match":
			s := scorer.NewExactMatch()
			locals = append(locals, s)
			name = s.Name()
		case "includes":
			s := scorer.NewIncludes()
			locals = append(locals, s)
			name = s.Name()
		case "coherence", "task_adherence", "judge":
			provider, err := resolveProvider(reg, sc.Provider, defaultProvider)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("suite: scorer %d: %w", i, err)
			}
			var s *scorer.Async
			switch typ {
			case "coherence":
				s, err = scorer.NewCoherence(provider)
			case "task_adherence":
				s, err = scorer.NewTaskAdherence(provider)
			default:
				s, err = scorer.NewJudge(scorer.JudgeConfig{
					Name:       name,
					Criteria:   sc.Criteria,
					Rubric:     sc.Rubric,
					ScoreScale: sc.Scale,
					Provider:   provider,
				})
			}
			if err != nil {
				return nil, nil, nil, err
			}
			locals = append(locals, s)
			name = s.Name()
		case "remote":
			if name == "" {
				return nil, nil, nil, fmt.Errorf("suite: scorer %d: remote scorer needs a name", i)
			}
			params := make([]scorer.Param, 0, len(sc.Params))
			for _, p := range sc.Params {
				p = strings.TrimSpace(p)
				if p == "" {
					return nil, nil, nil, fmt.Errorf("suite: scorer %q: empty param name", name)
				}
				params = append(params, scorer.Param{Name: p, Kind: scorer.KindAny, Required: true})
			}
			remotes = append(remotes, &scorer.Remote{
				Name:     name,
				Criteria: sc.Config,
				Params:   params,
				Outputs:  sc.Outputs,
			})
		default:
			return nil, nil, nil, fmt.Errorf("suite: scorer %d: unknown type %q", i, sc.Type)
		}

		if len(sc.Mapping) > 0 {
			specs[name] = mapping.Spec(sc.Mapping)
		}
	}

	return locals, remotes, specs, nil
}

func resolveProvider(reg *llm.Registry, name, fallback string) (llm.Provider, error) {
	if reg == nil {
		return nil, fmt.Errorf("no llm providers configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(fallback)
	}
	if name == "" {
		return nil, fmt.Errorf("no provider named and no default configured")
	}
	p, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (configured: %s)", name, strings.Join(reg.Names(), ", "))
	}
	return p, nil
}
