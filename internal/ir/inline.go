package ir

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// Function inlining. A qualifying call site is replaced by a clone of the
// callee's body: locals are cloned with fresh names, the caller's block is
// split at the call so control falls through into the continuation, and
// every return in the clone becomes a store to a result local plus a branch
// to the continuation. Recursive and mutually recursive call sites are
// skipped, silently but logged.
//
// Argument binding honors the copy semantics of aggregates: an aggregate
// parameter is bound by mem_copy_val into a freshly created local, never by
// aliasing the caller's storage. The address a callee observes for its
// parameter is therefore distinct from the caller's argument address,
// inlined or not.

var inlineLog = commonlog.GetLogger("sable.ir.inline")

// Policy selects which callees qualify for inlining: everything, or only
// callees within a size budget. All three budget constraints must hold
// simultaneously.
type Policy struct {
	All           bool
	MaxBlocks     int
	MaxInstrs     int
	MaxStackBytes int
}

// InlineAll is the policy that inlines every non-recursive call.
func InlineAll() Policy {
	return Policy{All: true}
}

// SizeBudget is the policy that inlines callees within the given block,
// instruction and stack-byte limits.
func SizeBudget(blocks, instrs, stackBytes int) Policy {
	return Policy{MaxBlocks: blocks, MaxInstrs: instrs, MaxStackBytes: stackBytes}
}

// Inline applies the policy across the module, processing callees before
// callers so cloned bodies are already fully inlined. It reports whether
// anything changed; a verification failure afterwards is an internal
// compiler error.
func Inline(m *Module, p Policy) (bool, error) {
	graph := callGraph(m)
	reach := transitiveCallees(graph)

	changed := false
	for _, f := range calleeFirstOrder(m, graph) {
		if !inlineInto(m, f, p, reach) {
			continue
		}
		changed = true
		if err := Verify(f); err != nil {
			return changed, fmt.Errorf("after inlining into %s: %w", f.Name, err)
		}
	}
	return changed, nil
}

// callGraph collects the direct call edges between module functions.
func callGraph(m *Module) map[string][]string {
	graph := make(map[string][]string, len(m.Funcs))
	for _, f := range m.Funcs {
		seen := make(map[string]bool)
		for b := range f.Blocks {
			for _, id := range f.Blocks[b].Code {
				if call, ok := f.Instrs[id].(*Call); ok && !seen[call.Callee] {
					seen[call.Callee] = true
					graph[f.Name] = append(graph[f.Name], call.Callee)
				}
			}
		}
	}
	return graph
}

// transitiveCallees closes the call graph, so "callee reaches caller" (the
// mutual-recursion test) is a set lookup.
func transitiveCallees(graph map[string][]string) map[string]map[string]bool {
	reach := make(map[string]map[string]bool, len(graph))

	var visit func(set map[string]bool, name string)
	visit = func(set map[string]bool, name string) {
		for _, callee := range graph[name] {
			if !set[callee] {
				set[callee] = true
				visit(set, callee)
			}
		}
	}

	for name := range graph {
		set := make(map[string]bool)
		visit(set, name)
		reach[name] = set
	}
	return reach
}

// calleeFirstOrder returns the module's functions in reverse topological
// order of the call graph: every callee before its callers, cycles broken
// arbitrarily (their call sites are skipped anyway).
func calleeFirstOrder(m *Module, graph map[string][]string) []*Function {
	order := make([]*Function, 0, len(m.Funcs))
	visited := make(map[string]bool, len(m.Funcs))

	var visit func(f *Function)
	visit = func(f *Function) {
		if visited[f.Name] {
			return
		}
		visited[f.Name] = true
		for _, callee := range graph[f.Name] {
			if cf := m.Func(callee); cf != nil {
				visit(cf)
			}
		}
		order = append(order, f)
	}

	for _, f := range m.Funcs {
		visit(f)
	}
	return order
}

type callSite struct {
	block BlockID
	index int
	id    ValueID
}

// inlineInto repeatedly inlines the first qualifying call site of the
// caller until none remain.
func inlineInto(m *Module, caller *Function, p Policy, reach map[string]map[string]bool) bool {
	changed := false
	logged := make(map[ValueID]bool)

	for {
		site, ok := findQualifyingCall(m, caller, p, reach, logged)
		if !ok {
			break
		}
		inlineCall(m, caller, site)
		changed = true
	}
	return changed
}

func findQualifyingCall(m *Module, caller *Function, p Policy, reach map[string]map[string]bool, logged map[ValueID]bool) (callSite, bool) {
	for b := range caller.Blocks {
		for i, id := range caller.Blocks[b].Code {
			call, ok := caller.Instrs[id].(*Call)
			if !ok {
				continue
			}
			callee := m.Func(call.Callee)
			if callee == nil {
				continue
			}

			// A callee on a call-graph cycle can never be fully inlined:
			// its clone would carry a fresh call into the same cycle. The
			// caller itself being reachable from the callee is the same
			// situation one level up.
			if call.Callee == caller.Name || reach[call.Callee][call.Callee] || reach[call.Callee][caller.Name] {
				if !logged[id] {
					logged[id] = true
					inlineLog.Debugf("skipping recursive call site %s -> %s", caller.Name, call.Callee)
				}
				continue
			}
			if !qualifies(callee, p) {
				continue
			}
			return callSite{block: BlockID(b), index: i, id: id}, true
		}
	}
	return callSite{}, false
}

// qualifies evaluates the size budget against the callee. Exceeding any one
// of the three constraints disqualifies it.
func qualifies(callee *Function, p Policy) bool {
	if p.All {
		return true
	}
	return len(callee.Blocks) <= p.MaxBlocks &&
		callee.NumInstrs() <= p.MaxInstrs &&
		ComputeFrame(callee).Size <= p.MaxStackBytes
}

// inlineCall splices a clone of the callee in place of one call site.
func inlineCall(m *Module, caller *Function, site callSite) {
	call := caller.Instrs[site.id].(*Call)
	callee := m.Func(call.Callee)
	types := m.Types

	// Split the caller's block: everything after the call moves to the
	// continuation, the call itself is cut out.
	contID := caller.NewBlock(caller.Blocks[site.block].Label + "_cont")
	caller.Blocks[contID].Code = append(caller.Blocks[contID].Code, caller.Blocks[site.block].Code[site.index+1:]...)
	caller.Blocks[site.block].Code = caller.Blocks[site.block].Code[:site.index]

	hasResult := call.Type != NoType
	var resLocal LocalID
	if hasResult {
		resLocal = caller.NewLocal(callee.Name+"_ret", callee.Ret, true)
	}

	// Bind arguments. Aggregates get an independent copy at a fresh
	// address; scalars substitute directly.
	valueMap := make(map[ValueID]ValueID)
	for i, param := range callee.Params {
		arg := call.Args[i]
		if types.IsAggregate(param.Type) {
			l := caller.NewLocal(param.Name, param.Type, true)
			ptr := caller.Append(site.block, &GetLocal{Local: l, Type: types.Pointer(param.Type)})
			caller.Append(site.block, &MemCopyVal{Dst: ptr, Src: arg})
			valueMap[param.Value] = ptr
		} else {
			valueMap[param.Value] = arg
		}
	}

	// Clone locals and allocate the cloned blocks up front, so block
	// references can be rewritten in one go.
	localMap := make([]LocalID, len(callee.Locals))
	for i, l := range callee.Locals {
		localMap[i] = caller.NewLocal(l.Name, l.Type, l.Mutable)
	}
	blockMap := make([]BlockID, len(callee.Blocks))
	for i := range callee.Blocks {
		blockMap[i] = caller.NewBlock("inl_" + callee.Blocks[i].Label)
	}

	// First pass: emit clones with operands still holding callee ids.
	// Returns become store-to-result plus branch-to-continuation.
	type retFix struct {
		store     ValueID
		calleeVal ValueID
	}
	var cloned []ValueID
	var retFixes []retFix

	for bi := range callee.Blocks {
		nb := blockMap[bi]
		for _, id := range callee.Blocks[bi].Code {
			switch ins := callee.Instrs[id].(type) {
			case *Ret:
				if hasResult && ins.Val != NoValue {
					ptr := caller.Append(nb, &GetLocal{Local: resLocal, Type: types.Pointer(callee.Ret)})
					st := caller.Append(nb, &Store{Val: NoValue, Addr: ptr})
					retFixes = append(retFixes, retFix{store: st, calleeVal: ins.Val})
				}
				caller.Append(nb, &Br{Target: contID})
			default:
				nid := caller.Append(nb, cloneInstr(ins, blockMap, localMap))
				valueMap[id] = nid
				cloned = append(cloned, nid)
			}
		}
	}

	// Second pass: now that every cloned value has its caller id, rewrite
	// the operands.
	remap := func(v ValueID) ValueID {
		nv, ok := valueMap[v]
		if !ok {
			panic(fmt.Sprintf("inline %s into %s: unmapped value v%d", callee.Name, caller.Name, v))
		}
		return nv
	}
	for _, nid := range cloned {
		rewriteValues(caller.Instrs[nid], remap)
	}
	for _, rf := range retFixes {
		caller.Instrs[rf.store].(*Store).Val = remap(rf.calleeVal)
	}

	// Enter the clone from the split block.
	caller.Append(site.block, &Br{Target: blockMap[callee.Entry]})

	// The call's Value keeps its identity: the arena slot is replaced by a
	// load of the result local at the head of the continuation, so every
	// existing use stays valid. Unit calls just retire the slot.
	if hasResult {
		ptr := caller.appendInstr(&GetLocal{Local: resLocal, Type: types.Pointer(callee.Ret)})
		caller.Instrs[site.id] = &Load{Addr: ptr, Type: callee.Ret}
		caller.Blocks[contID].Code = append([]ValueID{ptr, site.id}, caller.Blocks[contID].Code...)
	} else {
		caller.Instrs[site.id] = nil
	}
}

// cloneInstr deep-copies one callee instruction, rewriting block and local
// references immediately; value operands keep their callee ids until the
// second pass.
func cloneInstr(ins Instruction, blockMap []BlockID, localMap []LocalID) Instruction {
	switch x := ins.(type) {
	case *Const:
		c := *x
		return &c
	case *Bin:
		c := *x
		return &c
	case *Cmp:
		c := *x
		return &c
	case *Cast:
		c := *x
		return &c
	case *GetLocal:
		return &GetLocal{Local: localMap[x.Local], Type: x.Type}
	case *GetElemPtr:
		return &GetElemPtr{Base: x.Base, Path: append([]int(nil), x.Path...), Type: x.Type}
	case *Load:
		c := *x
		return &c
	case *Store:
		c := *x
		return &c
	case *MemCopyVal:
		c := *x
		return &c
	case *Call:
		return &Call{Callee: x.Callee, Args: append([]ValueID(nil), x.Args...), Type: x.Type}
	case *Asm:
		return &Asm{
			Inputs: append([]AsmInput(nil), x.Inputs...),
			Result: x.Result,
			Type:   x.Type,
			Ops:    append([]AsmOp(nil), x.Ops...),
			Impure: x.Impure,
		}
	case *Br:
		return &Br{Target: blockMap[x.Target]}
	case *Cbr:
		return &Cbr{Cond: x.Cond, Then: blockMap[x.Then], Else: blockMap[x.Else]}
	case *Revert:
		c := *x
		return &c
	}
	panic(fmt.Sprintf("inliner cannot clone %T", ins))
}

// rewriteValues applies a value substitution to an instruction in place.
func rewriteValues(ins Instruction, remap func(ValueID) ValueID) {
	switch x := ins.(type) {
	case *Bin:
		x.L, x.R = remap(x.L), remap(x.R)
	case *Cmp:
		x.L, x.R = remap(x.L), remap(x.R)
	case *Cast:
		x.Arg = remap(x.Arg)
	case *GetElemPtr:
		x.Base = remap(x.Base)
	case *Load:
		x.Addr = remap(x.Addr)
	case *Store:
		x.Val, x.Addr = remap(x.Val), remap(x.Addr)
	case *MemCopyVal:
		x.Dst, x.Src = remap(x.Dst), remap(x.Src)
	case *Call:
		for i := range x.Args {
			x.Args[i] = remap(x.Args[i])
		}
	case *Asm:
		for i := range x.Inputs {
			x.Inputs[i].Value = remap(x.Inputs[i].Value)
		}
	case *Cbr:
		x.Cond = remap(x.Cond)
	case *Revert:
		x.Code = remap(x.Code)
	}
}
