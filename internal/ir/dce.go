package ir

// Dead code elimination. Liveness runs backward over the value/use graph
// and is extended to locals: an instruction is live when it is intrinsically
// side-effecting or when a live instruction consumes one of its values, and
// a local is live when the addresses derived from it are observed by a live
// instruction. Everything else goes, including whole unreachable blocks.
//
// Calls are never removed here, whatever happens to their result: proving a
// callee pure is someone else's job. Opaque asm blocks are kept when their
// side-effect tag is set, and otherwise treated as plain values.

// maxDceIterations caps the outer fixed-point loop. Liveness over an
// acyclic use graph converges long before this; the cap is a safety valve,
// not a tuning knob.
const maxDceIterations = 100

// Dce removes dead instructions, locals and blocks from a function until
// nothing more can be removed. It reports whether the function changed.
func Dce(f *Function) bool {
	changed := false
	for i := 0; i < maxDceIterations; i++ {
		if !dceOnce(f) {
			break
		}
		changed = true
	}
	return changed
}

// dceOnce runs one round of block reachability, instruction liveness and
// local liveness. Removing an unread load can strand a store, and removing
// that store can strand a local, so the caller iterates to a fixed point.
func dceOnce(f *Function) bool {
	changed := removeUnreachableBlocks(f)

	f.RebuildUses()
	observed := observedLocals(f)

	// Seed with everything intrinsically side-effecting.
	live := make([]bool, len(f.Instrs))
	var work []ValueID

	seed := func(id ValueID) {
		if !live[id] {
			live[id] = true
			work = append(work, id)
		}
	}

	for b := range f.Blocks {
		for _, id := range f.Blocks[b].Code {
			switch x := f.Instrs[id].(type) {
			case *Call:
				seed(id)
			case *Asm:
				if x.Impure {
					seed(id)
				}
			case *Store:
				if storesToObservedMemory(f, x.Addr, observed) {
					seed(id)
				}
			case *MemCopyVal:
				if storesToObservedMemory(f, x.Dst, observed) {
					seed(id)
				}
			default:
				if f.Instrs[id].IsTerminator() {
					seed(id)
				}
			}
		}
	}

	// Propagate liveness backward through operands. This also covers the
	// asm case: a non-side-effecting asm block becomes live exactly when
	// its declared result feeds a live instruction.
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		for _, op := range f.Instrs[id].Operands() {
			if op >= 0 && !live[op] {
				live[op] = true
				work = append(work, op)
			}
		}
	}

	// Sweep dead instructions, preserving the order of survivors.
	for b := range f.Blocks {
		block := &f.Blocks[b]
		kept := block.Code[:0]
		for _, id := range block.Code {
			if live[id] {
				kept = append(kept, id)
				continue
			}
			f.Instrs[id] = nil
			changed = true
		}
		block.Code = kept
	}

	if removeDeadLocals(f) {
		changed = true
	}
	return changed
}

// storesToObservedMemory decides whether a store/copy destination can be
// observed. A destination that provably roots at a local whose address is
// never read escapes nothing; anything else (pointer parameters, loaded
// pointers) is kept.
func storesToObservedMemory(f *Function, addr ValueID, observed map[LocalID]bool) bool {
	local, ok := rootLocal(f, addr)
	if !ok {
		return true
	}
	return observed[local]
}

// rootLocal traces an address back through get_elem_ptr chains to the local
// it was derived from, if any.
func rootLocal(f *Function, addr ValueID) (LocalID, bool) {
	for {
		switch x := f.Instrs[addr].(type) {
		case *GetLocal:
			return x.Local, true
		case *GetElemPtr:
			addr = x.Base
		default:
			return 0, false
		}
	}
}

// observedLocals finds locals whose contents or address can reach an
// observer. Using a derived address purely as the destination of a store or
// mem_copy_val observes nothing; every other use (a load, a call argument,
// an asm input, storing the pointer itself) does.
func observedLocals(f *Function) map[LocalID]bool {
	observed := make(map[LocalID]bool)

	for b := range f.Blocks {
		for _, id := range f.Blocks[b].Code {
			ins := f.Instrs[id]
			for _, op := range ins.Operands() {
				local, ok := rootLocal(f, op)
				if !ok {
					continue
				}

				switch x := ins.(type) {
				case *GetElemPtr:
					// Derived pointer; its own uses decide.
					continue
				case *Store:
					if op == x.Addr && op != x.Val {
						continue
					}
				case *MemCopyVal:
					if op == x.Dst && op != x.Src {
						continue
					}
				}
				observed[local] = true
			}
		}
	}
	return observed
}

// removeDeadLocals drops locals no surviving instruction references and
// renumbers the remainder.
func removeDeadLocals(f *Function) bool {
	referenced := make([]bool, len(f.Locals))
	for b := range f.Blocks {
		for _, id := range f.Blocks[b].Code {
			if g, ok := f.Instrs[id].(*GetLocal); ok {
				referenced[g.Local] = true
			}
		}
	}

	remap := make([]LocalID, len(f.Locals))
	kept := f.Locals[:0]
	changed := false
	for i := range f.Locals {
		if !referenced[i] {
			remap[i] = -1
			changed = true
			continue
		}
		remap[i] = LocalID(len(kept))
		kept = append(kept, f.Locals[i])
	}
	if !changed {
		return false
	}
	f.Locals = kept

	for b := range f.Blocks {
		for _, id := range f.Blocks[b].Code {
			if g, ok := f.Instrs[id].(*GetLocal); ok {
				g.Local = remap[g.Local]
			}
		}
	}
	return true
}

// removeUnreachableBlocks drops blocks no terminator can reach and
// renumbers the rest, the same reachability sweep the block level always
// needs before instruction liveness makes sense.
func removeUnreachableBlocks(f *Function) bool {
	reachable := make([]bool, len(f.Blocks))
	work := []BlockID{f.Entry}
	reachable[f.Entry] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range f.Successors(b) {
			if !reachable[s] {
				reachable[s] = true
				work = append(work, s)
			}
		}
	}

	all := true
	for _, r := range reachable {
		all = all && r
	}
	if all {
		return false
	}

	remap := make([]BlockID, len(f.Blocks))
	kept := f.Blocks[:0]
	for b := range f.Blocks {
		if !reachable[b] {
			remap[b] = -1
			for _, id := range f.Blocks[b].Code {
				f.Instrs[id] = nil
			}
			continue
		}
		remap[b] = BlockID(len(kept))
		kept = append(kept, f.Blocks[b])
	}
	f.Blocks = kept
	f.Entry = remap[f.Entry]

	for b := range f.Blocks {
		term, ok := f.Terminator(BlockID(b))
		if !ok {
			continue
		}
		switch t := term.(type) {
		case *Br:
			t.Target = remap[t.Target]
		case *Cbr:
			t.Then = remap[t.Then]
			t.Else = remap[t.Else]
		}
	}
	return true
}
