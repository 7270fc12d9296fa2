package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Signature describes the declared contract of an operation. It is not
// enforced against call arguments.
type Signature struct {
	Name       string   `json:"name"`
	InputTypes []string `json:"input_types,omitempty"`
	OutputType string   `json:"output_type,omitempty"`
}

// Function is the type-erased body of a registered operation.
type Function func(ctx context.Context, args []any) (any, error)

// ArgumentFunc builds the call arguments of an operation from the action
// payload and metadata.
type ArgumentFunc func(payload any, md *Metadata) ([]any, error)

// ResultFunc receives the value returned by an operation.
type ResultFunc func(ctx context.Context, md *Metadata, value any) error

// Plan maps operation names to signatures and functions.
type Plan struct {
	mu         sync.RWMutex
	signatures map[string]Signature
	functions  map[string]Function
	arguments  map[string]ArgumentFunc
	results    map[string]ResultFunc
}

func NewPlan() *Plan {
	return &Plan{
		signatures: make(map[string]Signature),
		functions:  make(map[string]Function),
		arguments:  make(map[string]ArgumentFunc),
		results:    make(map[string]ResultFunc),
	}
}

// AddSignature inserts or replaces the signature registered under sig.Name.
func (p *Plan) AddSignature(sig Signature) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signatures[sig.Name] = sig
}

// AddFunction binds fn to name. A signature must already exist for name.
func (p *Plan) AddFunction(name string, fn Function) error {
	if fn == nil {
		return RegistrationError(fmt.Sprintf("nil function for %s", name), map[string]any{
			"action_type": name,
		})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.signatures[name]; !ok {
		return RegistrationError(fmt.Sprintf("No signature found for function: %s", name), map[string]any{
			"action_type": name,
		})
	}
	p.functions[name] = fn
	return nil
}

// SetArguments installs the argument extractor for name.
func (p *Plan) SetArguments(name string, fn ArgumentFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arguments[name] = fn
}

// SetResult installs the result handler for name.
func (p *Plan) SetResult(name string, fn ResultFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[name] = fn
}

// Lookup returns the function bound to name.
func (p *Plan) Lookup(name string) (Function, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn, ok := p.functions[name]
	return fn, ok
}

func (p *Plan) Signature(name string) (Signature, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sig, ok := p.signatures[name]
	return sig, ok
}

// Names lists every operation with a signature, sorted.
func (p *Plan) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.signatures))
	for name := range p.signatures {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (p *Plan) argumentsFor(name string) ArgumentFunc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if fn, ok := p.arguments[name]; ok && fn != nil {
		return fn
	}
	return noArguments
}

func (p *Plan) resultFor(name string) ResultFunc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if fn, ok := p.results[name]; ok && fn != nil {
		return fn
	}
	return discardResult
}

func noArguments(any, *Metadata) ([]any, error) { return []any{}, nil }

func discardResult(context.Context, *Metadata, any) error { return nil }

// PlanBuilder collects registrations and reports the first failure from Build.
type PlanBuilder struct {
	plan *Plan
	err  error
}

func NewPlanBuilder() *PlanBuilder {
	return &PlanBuilder{plan: NewPlan()}
}

func (b *PlanBuilder) WithSignature(name string, inputTypes []string, outputType string) *PlanBuilder {
	b.plan.AddSignature(Signature{Name: name, InputTypes: inputTypes, OutputType: outputType})
	return b
}

func (b *PlanBuilder) WithFunction(name string, fn Function) *PlanBuilder {
	if b.err != nil {
		return b
	}
	b.err = b.plan.AddFunction(name, fn)
	return b
}

func (b *PlanBuilder) WithArguments(name string, fn ArgumentFunc) *PlanBuilder {
	b.plan.SetArguments(name, fn)
	return b
}

func (b *PlanBuilder) WithResult(name string, fn ResultFunc) *PlanBuilder {
	b.plan.SetResult(name, fn)
	return b
}

// Build returns the plan, or the first registration error.
func (b *PlanBuilder) Build() (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.plan, nil
}
