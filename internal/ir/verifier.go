package ir

import "fmt"

// Verify checks the structural consistency of a function graph. It is
// read-only and exhaustive: block shape, definition-before-use (via
// dominance), offset-path bounds, load/store typing, and local references.
// Passes run it after mutating a function; a failure there is a compiler
// bug, not a user error.
func Verify(f *Function) error {
	v := &verifier{f: f}
	return v.run()
}

// VerifyModule verifies every function plus the cross-function facts a
// single function cannot see: call targets and call-site typing.
func VerifyModule(m *Module) error {
	for _, f := range m.Funcs {
		if err := Verify(f); err != nil {
			return err
		}
		if err := verifyCalls(m, f); err != nil {
			return err
		}
	}
	return nil
}

type verifier struct {
	f *Function

	defBlock map[ValueID]BlockID
	defIndex map[ValueID]int
	dom      []map[BlockID]bool // dom[b] = blocks dominating b; nil for unreachable
}

func (v *verifier) fail(b BlockID, id ValueID, format string, args ...interface{}) error {
	return &VerifyError{Fn: v.f.Name, Block: b, Value: id, Msg: fmt.Sprintf(format, args...)}
}

func (v *verifier) run() error {
	f := v.f

	if len(f.Blocks) == 0 {
		return v.fail(-1, -1, "function has no blocks")
	}
	if f.Entry < 0 || int(f.Entry) >= len(f.Blocks) {
		return v.fail(-1, -1, "entry block %d out of range", f.Entry)
	}

	if err := v.checkLocals(); err != nil {
		return err
	}
	if err := v.checkBlockShape(); err != nil {
		return err
	}

	v.computeDominators()

	for b := range f.Blocks {
		if err := v.checkBlock(BlockID(b)); err != nil {
			return err
		}
	}
	return nil
}

// checkLocals enforces that locals are unique by name, so every reference
// resolves to exactly one slot.
func (v *verifier) checkLocals() error {
	seen := make(map[string]bool, len(v.f.Locals))
	for _, l := range v.f.Locals {
		if seen[l.Name] {
			return v.fail(-1, -1, "local %q declared more than once", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

// checkBlockShape verifies that every block ends in exactly one terminator
// with nothing after it, that every arena id placed in a block is live and
// placed exactly once, and that branch targets exist.
func (v *verifier) checkBlockShape() error {
	f := v.f
	v.defBlock = make(map[ValueID]BlockID)
	v.defIndex = make(map[ValueID]int)

	for b := range f.Blocks {
		block := &f.Blocks[b]
		if len(block.Code) == 0 {
			return v.fail(BlockID(b), -1, "block %q is empty", block.Label)
		}

		for i, id := range block.Code {
			if id < 0 || int(id) >= len(f.Instrs) || f.Instrs[id] == nil {
				return v.fail(BlockID(b), id, "reference to retired or invalid instruction")
			}
			ins := f.Instrs[id]

			if _, isArg := ins.(*Arg); isArg {
				return v.fail(BlockID(b), id, "parameter value placed in a block")
			}
			if _, dup := v.defBlock[id]; dup {
				return v.fail(BlockID(b), id, "instruction placed in more than one block position")
			}
			v.defBlock[id] = BlockID(b)
			v.defIndex[id] = i

			last := i == len(block.Code)-1
			if ins.IsTerminator() != last {
				if last {
					return v.fail(BlockID(b), id, "block %q does not end in a terminator", block.Label)
				}
				return v.fail(BlockID(b), id, "terminator before the end of block %q", block.Label)
			}

			switch t := ins.(type) {
			case *Br:
				if !v.validBlock(t.Target) {
					return v.fail(BlockID(b), id, "branch to invalid block %d", t.Target)
				}
			case *Cbr:
				if !v.validBlock(t.Then) || !v.validBlock(t.Else) {
					return v.fail(BlockID(b), id, "conditional branch to invalid block")
				}
			}
		}
	}
	return nil
}

func (v *verifier) validBlock(b BlockID) bool {
	return b >= 0 && int(b) < len(v.f.Blocks)
}

// computeDominators runs the standard iterative dataflow over the reachable
// CFG. Function CFGs are small; the quadratic worst case is irrelevant.
func (v *verifier) computeDominators() {
	f := v.f
	n := len(f.Blocks)

	preds := make([][]BlockID, n)
	reachable := make([]bool, n)
	work := []BlockID{f.Entry}
	reachable[f.Entry] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range f.Successors(b) {
			preds[s] = append(preds[s], b)
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}

	v.dom = make([]map[BlockID]bool, n)
	all := make(map[BlockID]bool, n)
	for b := 0; b < n; b++ {
		if reachable[b] {
			all[BlockID(b)] = true
		}
	}
	for b := 0; b < n; b++ {
		if !reachable[b] {
			continue
		}
		if BlockID(b) == f.Entry {
			v.dom[b] = map[BlockID]bool{f.Entry: true}
			continue
		}
		v.dom[b] = copyBlockSet(all)
	}

	for changed := true; changed; {
		changed = false
		for b := 0; b < n; b++ {
			if !reachable[b] || BlockID(b) == f.Entry {
				continue
			}
			next := copyBlockSet(all)
			for _, p := range preds[b] {
				next = intersectBlockSets(next, v.dom[p])
			}
			next[BlockID(b)] = true
			if len(next) != len(v.dom[b]) {
				v.dom[b] = next
				changed = true
			}
		}
	}
}

func copyBlockSet(s map[BlockID]bool) map[BlockID]bool {
	out := make(map[BlockID]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersectBlockSets(a, b map[BlockID]bool) map[BlockID]bool {
	out := make(map[BlockID]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// checkBlock verifies the instructions of one block: operand availability
// and the per-opcode typing rules.
func (v *verifier) checkBlock(b BlockID) error {
	f := v.f

	for i, id := range f.Blocks[b].Code {
		ins := f.Instrs[id]

		for _, op := range ins.Operands() {
			if err := v.checkOperand(b, id, i, op); err != nil {
				return err
			}
		}
		if err := v.checkTyping(b, id, ins); err != nil {
			return err
		}
	}
	return nil
}

// checkOperand enforces definition-before-use: a value must come from a
// parameter, from earlier in the same block, or from a strictly dominating
// block. Uses inside unreachable blocks are skipped, by definition nothing
// observes them.
func (v *verifier) checkOperand(b BlockID, user ValueID, userIdx int, op ValueID) error {
	f := v.f

	if op < 0 || int(op) >= len(f.Instrs) || f.Instrs[op] == nil {
		return v.fail(b, user, "operand v%d does not exist", op)
	}
	if !HasResult(f.Instrs[op]) {
		return v.fail(b, user, "operand v%d produces no value", op)
	}
	if _, isArg := f.Instrs[op].(*Arg); isArg {
		return nil
	}
	if v.dom[b] == nil {
		return nil
	}

	defB, placed := v.defBlock[op]
	if !placed {
		return v.fail(b, user, "operand v%d is not placed in any block", op)
	}
	if defB == b {
		if v.defIndex[op] >= userIdx {
			return v.fail(b, user, "use of v%d before its definition", op)
		}
		return nil
	}
	if !v.dom[b][defB] {
		return v.fail(b, user, "use of v%d from a block that does not dominate this one", op)
	}
	return nil
}

func (v *verifier) checkTyping(b BlockID, id ValueID, ins Instruction) error {
	f := v.f
	types := f.Types

	pointee := func(val ValueID) (TypeID, bool) {
		t := f.ValueType(val)
		if t == NoType {
			return NoType, false
		}
		shape := types.Get(t)
		if shape.Kind != TypePointer {
			return NoType, false
		}
		return shape.Elem, true
	}

	switch x := ins.(type) {
	case *Bin:
		if f.ValueType(x.L) != x.Type || f.ValueType(x.R) != x.Type {
			return v.fail(b, id, "binary operand types do not match result type %s", types.String(x.Type))
		}
	case *Cmp:
		if f.ValueType(x.L) != f.ValueType(x.R) {
			return v.fail(b, id, "comparison of values of different types")
		}
		if x.Type != types.Bool() {
			return v.fail(b, id, "comparison result type is not bool")
		}
	case *GetLocal:
		if x.Local < 0 || int(x.Local) >= len(f.Locals) {
			return v.fail(b, id, "reference to undeclared local %d", x.Local)
		}
		if x.Type != types.Pointer(f.Locals[x.Local].Type) {
			return v.fail(b, id, "get_local result type is not ptr %s", types.String(f.Locals[x.Local].Type))
		}
	case *GetElemPtr:
		base, ok := pointee(x.Base)
		if !ok {
			return v.fail(b, id, "get_elem_ptr base is not a pointer")
		}
		_, elem, err := types.ElemOffset(base, x.Path)
		if err != nil {
			return v.fail(b, id, "get_elem_ptr path: %v", err)
		}
		if x.Type != types.Pointer(elem) {
			return v.fail(b, id, "get_elem_ptr result type is not ptr %s", types.String(elem))
		}
	case *Load:
		elem, ok := pointee(x.Addr)
		if !ok {
			return v.fail(b, id, "load address is not a pointer")
		}
		if x.Type != elem {
			return v.fail(b, id, "load type %s does not match pointee %s", types.String(x.Type), types.String(elem))
		}
	case *Store:
		elem, ok := pointee(x.Addr)
		if !ok {
			return v.fail(b, id, "store address is not a pointer")
		}
		if f.ValueType(x.Val) != elem {
			return v.fail(b, id, "store of %s through ptr %s", types.String(f.ValueType(x.Val)), types.String(elem))
		}
	case *MemCopyVal:
		dst, okD := pointee(x.Dst)
		src, okS := pointee(x.Src)
		if !okD || !okS {
			return v.fail(b, id, "mem_copy_val operand is not a pointer")
		}
		if dst != src {
			return v.fail(b, id, "mem_copy_val between ptr %s and ptr %s", types.String(dst), types.String(src))
		}
	case *Asm:
		if x.Result == "" && x.Type != NoType {
			return v.fail(b, id, "asm block declares a result type without a result register")
		}
		if x.Result != "" && x.Type == NoType {
			return v.fail(b, id, "asm block declares result register %q without a type", x.Result)
		}
	case *Cbr:
		if f.ValueType(x.Cond) != types.Bool() {
			return v.fail(b, id, "conditional branch on non-bool value")
		}
	case *Ret:
		if x.Val == NoValue {
			if f.Ret != types.Unit() {
				return v.fail(b, id, "empty return from function returning %s", types.String(f.Ret))
			}
		} else if f.ValueType(x.Val) != f.Ret {
			return v.fail(b, id, "return of %s from function returning %s", types.String(f.ValueType(x.Val)), types.String(f.Ret))
		}
	}
	return nil
}

// verifyCalls checks call sites against their callees' signatures.
func verifyCalls(m *Module, f *Function) error {
	for b := range f.Blocks {
		for _, id := range f.Blocks[b].Code {
			call, ok := f.Instrs[id].(*Call)
			if !ok {
				continue
			}

			callee := m.Func(call.Callee)
			if callee == nil {
				return &VerifyError{Fn: f.Name, Block: BlockID(b), Value: id, Msg: fmt.Sprintf("call to unknown function %q", call.Callee)}
			}
			if len(call.Args) != len(callee.Params) {
				return &VerifyError{Fn: f.Name, Block: BlockID(b), Value: id,
					Msg: fmt.Sprintf("call to %q with %d arguments, want %d", call.Callee, len(call.Args), len(callee.Params))}
			}
			for i, arg := range call.Args {
				want := callee.Params[i].Type
				if m.Types.IsAggregate(want) {
					want = m.Types.Pointer(want)
				}
				if f.ValueType(arg) != want {
					return &VerifyError{Fn: f.Name, Block: BlockID(b), Value: id,
						Msg: fmt.Sprintf("argument %d of call to %q has type %s, want %s", i, call.Callee, m.Types.String(f.ValueType(arg)), m.Types.String(want))}
				}
			}

			wantRet := NoType
			if callee.Ret != m.Types.Unit() {
				wantRet = callee.Ret
			}
			if call.Type != wantRet {
				return &VerifyError{Fn: f.Name, Block: BlockID(b), Value: id,
					Msg: fmt.Sprintf("call result type does not match %q return type", call.Callee)}
			}
		}
	}
	return nil
}
