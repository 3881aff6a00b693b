package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrub/internal/domain"
	"scrub/internal/store"
)

// FlowResult is the outcome of one rule's flow.
type FlowResult struct {
	RuleID  string
	Output  interface{}
	Err     error
	Elapsed time.Duration
}

// Orchestrator builds one flow per rule from an explicit plan and runs
// them. Assembly is all-or-nothing: if any rule's flow fails to
// assemble, no flow executes. Execution gives every flow its own
// goroutine and failure domain, joined at a barrier — one failing flow
// never stops its siblings.
type Orchestrator struct {
	plan       *Plan
	registry   *store.Registry
	violations ViolationStore
	repairs    RepairStore
	cache      *Cache
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given plan and
// collaborators.
func NewOrchestrator(
	plan *Plan,
	registry *store.Registry,
	violations ViolationStore,
	repairs RepairStore,
	cache *Cache,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("store registry is required")
	}
	if violations == nil {
		return nil, fmt.Errorf("violation store is required")
	}
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		plan:       plan,
		registry:   registry,
		violations: violations,
		repairs:    repairs,
		cache:      cache,
		logger:     logger,
	}, nil
}

// Detect assembles and runs a detect flow for every rule in the plan.
// The returned error is an AssemblyError; per-flow failures are reported
// in the results instead.
func (o *Orchestrator) Detect(ctx context.Context) ([]FlowResult, error) {
	flows, err := o.assemble(o.detectFlow)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, flows), nil
}

// Repair assembles and runs a repair flow for every rule in the plan.
func (o *Orchestrator) Repair(ctx context.Context) ([]FlowResult, error) {
	flows, err := o.assemble(o.repairFlow)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, flows), nil
}

// assemble builds one flow per rule. On any failure the already-minted
// cache entries are dropped and nothing runs.
func (o *Orchestrator) assemble(build func(Rule) (*Flow, error)) ([]*Flow, error) {
	flows := make([]*Flow, 0, len(o.plan.Rules))
	for _, rule := range o.plan.Rules {
		flow, err := build(rule)
		if err != nil {
			for _, f := range flows {
				o.cache.Remove(f.InputKey())
			}
			return nil, domain.ErrAssembly(err, "assembling flow for rule %q", ruleID(rule))
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (o *Orchestrator) detectFlow(rule Rule) (*Flow, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	e := o.env()

	flow := NewFlow("detect/"+rule.ID(), o.cache.Put(rule), o.logger)
	flow.Add(&sourceDeserializer{env: e})
	flow.Add(&ruleQuery{env: e})
	// The detector variant is fixed here, at assembly time, from the
	// rule's declared input arity.
	if rule.SupportsPair() {
		flow.Add(&detectPair{env: e})
	} else {
		flow.Add(&detectSingle{env: e})
	}
	flow.Add(&exportViolations{env: e})
	return flow, nil
}

func (o *Orchestrator) repairFlow(rule Rule) (*Flow, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	e := o.env()

	flow := NewFlow("repair/"+rule.ID(), o.cache.Put(rule), o.logger)
	flow.Add(&violationDeserializer{env: e})
	flow.Add(&applyRepair{env: e})
	return flow, nil
}

// run dispatches every flow on its own goroutine and joins them at a
// barrier. A panic or error inside one flow is captured into its result.
func (o *Orchestrator) run(ctx context.Context, flows []*Flow) []FlowResult {
	start := time.Now()
	results := make([]FlowResult, len(flows))

	var wg sync.WaitGroup
	for i, flow := range flows {
		results[i].RuleID = flowRuleID(flow)
		wg.Add(1)
		go func(i int, flow *Flow) {
			defer wg.Done()
			flowStart := time.Now()
			defer func() {
				results[i].Elapsed = time.Since(flowStart)
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("flow %s panicked: %v", flow.Name(), r)
					o.logger.Error("flow panicked", "flow", flow.Name(), "panic", r)
				}
			}()

			out, err := flow.Run(ctx, o.cache)
			results[i].Output = out
			results[i].Err = err
			if err != nil {
				o.logger.Error("flow failed", "flow", flow.Name(), "error", err)
			}
		}(i, flow)
	}
	wg.Wait()

	o.logger.Info("cleaning finished",
		"flows", len(flows), "elapsed", time.Since(start))
	return results
}

func (o *Orchestrator) env() *env {
	return &env{
		registry:   o.registry,
		storeName:  o.plan.SourceStore,
		violations: o.violations,
		repairs:    o.repairs,
		logger:     o.logger,
	}
}

func validateRule(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	if rule.ID() == "" {
		return fmt.Errorf("rule has an empty id")
	}
	if n := len(rule.Tables()); n < 1 || n > 2 {
		return fmt.Errorf("rule %s declares %d source relations, want 1 or 2", rule.ID(), n)
	}
	return nil
}

func ruleID(rule Rule) string {
	if rule == nil {
		return "<nil>"
	}
	return rule.ID()
}

// flowRuleID recovers the rule id from the flow name; the name is always
// "<kind>/<rule id>".
func flowRuleID(flow *Flow) string {
	name := flow.Name()
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
