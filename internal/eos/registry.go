package eos

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Registry maps evaluator names to factories.
type Registry struct {
	evaluators map[string]func() Evaluator
}

func NewRegistry() *Registry {
	r := &Registry{
		evaluators: make(map[string]func() Evaluator),
	}

	r.evaluators["ideal"] = func() Evaluator { return NewIdeal() }
	r.evaluators["strict"] = func() Evaluator { return NewIdealWithMargin(10) }

	return r
}

func (r *Registry) Register(name string, fn func() Evaluator) {
	r.evaluators[name] = fn
}

func (r *Registry) Get(name string) (Evaluator, error) {
	fn, ok := r.evaluators[name]
	if !ok {
		return nil, fmt.Errorf("unknown evaluator: %s (available: %v)", name, r.List())
	}
	return fn(), nil
}

func (r *Registry) List() []string {
	names := lo.Keys(r.evaluators)
	sort.Strings(names)
	return names
}
