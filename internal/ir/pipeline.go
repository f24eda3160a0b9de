package ir

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

var pipelineLog = commonlog.GetLogger("sable.ir")

// Pass is a module-level transformation. Passes report whether they changed
// anything so the pipeline can iterate to a fixed point.
type Pass interface {
	Name() string
	Description() string
	Apply(m *Module) (bool, error)
}

// DcePass removes instructions, locals and blocks that cannot affect any
// observable behavior. Functions are independent, so they are processed
// concurrently.
type DcePass struct{}

func (DcePass) Name() string { return "dce" }

func (DcePass) Description() string {
	return "remove dead instructions, locals and unreachable blocks"
}

func (DcePass) Apply(m *Module) (bool, error) {
	results := make([]bool, len(m.Funcs))
	var wg sync.WaitGroup
	for i, f := range m.Funcs {
		wg.Add(1)
		go func(i int, f *Function) {
			defer wg.Done()
			results[i] = Dce(f)
		}(i, f)
	}
	wg.Wait()

	changed := false
	for _, r := range results {
		changed = changed || r
	}
	return changed, nil
}

// InlinePass splices qualifying callees into their callers under a policy.
type InlinePass struct {
	Policy Policy
}

func (InlinePass) Name() string { return "inline" }

func (InlinePass) Description() string {
	return "inline qualifying non-recursive calls"
}

func (p InlinePass) Apply(m *Module) (bool, error) {
	return Inline(m, p.Policy)
}

// Options configures the standard optimization pipeline.
type Options struct {
	Policy Policy

	// MaxRounds bounds the dce/inline fixed-point loop. Zero means the
	// default of 8 rounds.
	MaxRounds int
}

// Optimize runs the standard pipeline: verify, then alternate dce and
// inlining until neither changes the module or the round limit is hit, then
// a final dce sweep. Verification runs after every round; a failure means a
// pass produced an ill-formed graph and aborts the pipeline.
func Optimize(m *Module, opts Options) error {
	if err := VerifyModule(m); err != nil {
		return err
	}

	rounds := opts.MaxRounds
	if rounds <= 0 {
		rounds = 8
	}

	dce := DcePass{}
	inline := InlinePass{Policy: opts.Policy}

	for round := 0; round < rounds; round++ {
		removed, err := dce.Apply(m)
		if err != nil {
			return fmt.Errorf("%s: %w", dce.Name(), err)
		}
		inlined, err := inline.Apply(m)
		if err != nil {
			return fmt.Errorf("%s: %w", inline.Name(), err)
		}
		if err := VerifyModule(m); err != nil {
			return fmt.Errorf("round %d: %w", round+1, err)
		}
		pipelineLog.Debugf("round %d: dce changed=%v inline changed=%v", round+1, removed, inlined)
		if !removed && !inlined {
			return nil
		}
	}

	if _, err := dce.Apply(m); err != nil {
		return err
	}
	return VerifyModule(m)
}
