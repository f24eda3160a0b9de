package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"sable/internal/ir"
)

var fileParser = participle.MustBuild[File](
	participle.Lexer(irLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

// SourceMap remembers where functions and instructions came from, so
// diagnostics can point back into the .sir file.
type SourceMap struct {
	Funcs  map[string]lexer.Position
	Values map[string]map[ir.ValueID]lexer.Position // function name -> value -> pos
}

// Parse lowers textual IR into a module. Value names must be defined before
// they are used in textual order; the verifier is not run here.
func Parse(path, source string) (*ir.Module, *SourceMap, error) {
	file, err := fileParser.ParseString(path, source)
	if err != nil {
		return nil, nil, err
	}

	m := ir.NewModule(file.Name)
	sm := &SourceMap{
		Funcs:  make(map[string]lexer.Position),
		Values: make(map[string]map[ir.ValueID]lexer.Position),
	}
	var calls []callPatch
	for _, fd := range file.Funcs {
		if err := lowerFunc(m, sm, fd, &calls); err != nil {
			return nil, nil, err
		}
	}
	if err := patchCalls(m, calls); err != nil {
		return nil, nil, err
	}
	return m, sm, nil
}

// callPatch defers call result typing until every function is lowered, so
// calls may reference functions defined later in the file.
type callPatch struct {
	f     *ir.Function
	id    ir.ValueID
	pos   lexer.Position
	named bool
}

func patchCalls(m *ir.Module, calls []callPatch) error {
	for _, cp := range calls {
		call := cp.f.Instrs[cp.id].(*ir.Call)
		callee := m.Func(call.Callee)
		if callee == nil {
			return fmt.Errorf("%s: call to unknown function %q", cp.pos, call.Callee)
		}
		unit := callee.Ret == m.Types.Unit()
		if cp.named && unit {
			return fmt.Errorf("%s: call to %s returns nothing", cp.pos, call.Callee)
		}
		if !cp.named && !unit {
			return fmt.Errorf("%s: result of call to %s is unnamed", cp.pos, call.Callee)
		}
		if !unit {
			call.Type = callee.Ret
		}
	}
	return nil
}

// ParseFile reads and lowers a .sir file.
func ParseFile(path string, source []byte) (*ir.Module, *SourceMap, error) {
	return Parse(path, string(source))
}

func lowerFunc(m *ir.Module, sm *SourceMap, fd *Func, calls *[]callPatch) error {
	types := m.Types

	ret := types.Unit()
	if fd.Ret != nil {
		r, err := lowerType(types, fd.Ret)
		if err != nil {
			return fmt.Errorf("%s: return type of %s: %w", fd.Pos, fd.Name, err)
		}
		ret = r
	}

	if m.Func(fd.Name) != nil {
		return fmt.Errorf("%s: duplicate function %s", fd.Pos, fd.Name)
	}
	f := m.NewFunction(fd.Name, ret, fd.Entry)
	sm.Funcs[fd.Name] = fd.Pos
	positions := make(map[ir.ValueID]lexer.Position)
	sm.Values[fd.Name] = positions

	names := make(map[string]ir.ValueID)
	for _, pd := range fd.Params {
		t, err := lowerType(types, pd.Type)
		if err != nil {
			return fmt.Errorf("%s: parameter %s of %s: %w", fd.Pos, pd.Name, fd.Name, err)
		}
		if _, dup := names[pd.Name]; dup {
			return fmt.Errorf("%s: duplicate parameter %s in %s", fd.Pos, pd.Name, fd.Name)
		}
		names[pd.Name] = f.AddParam(pd.Name, t)
	}

	locals := make(map[string]ir.LocalID)
	for _, ld := range fd.Locals {
		t, err := lowerType(types, ld.Type)
		if err != nil {
			return fmt.Errorf("%s: local %s of %s: %w", fd.Pos, ld.Name, fd.Name, err)
		}
		if _, dup := locals[ld.Name]; dup {
			return fmt.Errorf("%s: duplicate local %s in %s", fd.Pos, ld.Name, fd.Name)
		}
		locals[ld.Name] = f.NewLocal(ld.Name, t, ld.Mut)
	}

	blocks := make(map[string]ir.BlockID)
	for _, bd := range fd.Blocks {
		if _, dup := blocks[bd.Label]; dup {
			return fmt.Errorf("%s: duplicate block label %s in %s", bd.Pos, bd.Label, fd.Name)
		}
		blocks[bd.Label] = f.NewBlock(bd.Label)
	}
	if len(fd.Blocks) == 0 {
		return fmt.Errorf("%s: function %s has no blocks", fd.Pos, fd.Name)
	}

	lw := &lowerer{
		f:         f,
		types:     types,
		names:     names,
		locals:    locals,
		blocks:    blocks,
		positions: positions,
		calls:     calls,
	}
	for _, bd := range fd.Blocks {
		for _, id := range bd.Code {
			if err := lw.instr(blocks[bd.Label], id); err != nil {
				return err
			}
		}
	}
	return nil
}

type lowerer struct {
	f         *ir.Function
	types     *ir.TypePool
	names     map[string]ir.ValueID
	locals    map[string]ir.LocalID
	blocks    map[string]ir.BlockID
	positions map[ir.ValueID]lexer.Position
	calls     *[]callPatch
}

func (lw *lowerer) value(pos lexer.Position, name string) (ir.ValueID, error) {
	v, ok := lw.names[name]
	if !ok {
		return ir.NoValue, fmt.Errorf("%s: unknown value %q", pos, name)
	}
	return v, nil
}

func (lw *lowerer) block(pos lexer.Position, label string) (ir.BlockID, error) {
	b, ok := lw.blocks[label]
	if !ok {
		return 0, fmt.Errorf("%s: unknown block label %q", pos, label)
	}
	return b, nil
}

func (lw *lowerer) instr(b ir.BlockID, id *Instr) error {
	ins, err := lw.build(id.Pos, id.Op)
	if err != nil {
		return err
	}

	v := lw.f.Append(b, ins)
	lw.positions[v] = id.Pos

	// Calls settle their result type after the whole file is lowered, so
	// whether they produce a value is checked there, not here.
	if _, isCall := ins.(*ir.Call); isCall {
		*lw.calls = append(*lw.calls, callPatch{f: lw.f, id: v, pos: id.Pos, named: id.Result != nil})
	} else if id.Result == nil && ir.HasResult(ins) {
		return fmt.Errorf("%s: instruction result is unnamed", id.Pos)
	} else if id.Result != nil && !ir.HasResult(ins) {
		return fmt.Errorf("%s: instruction produces no value to bind to %s", id.Pos, *id.Result)
	}

	if id.Result != nil {
		if _, dup := lw.names[*id.Result]; dup {
			return fmt.Errorf("%s: value %s defined twice", id.Pos, *id.Result)
		}
		lw.names[*id.Result] = v
	}
	return nil
}

func (lw *lowerer) build(pos lexer.Position, op *Op) (ir.Instruction, error) {
	switch {
	case op.Const != nil:
		t, err := lowerType(lw.types, op.Const.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		n, err := strconv.ParseUint(op.Const.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad constant %q", pos, op.Const.Value)
		}
		return &ir.Const{Type: t, Value: n}, nil

	case op.Bin != nil:
		l, err := lw.value(pos, op.Bin.L)
		if err != nil {
			return nil, err
		}
		r, err := lw.value(pos, op.Bin.R)
		if err != nil {
			return nil, err
		}
		kind, err := binKind(op.Bin.Op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return &ir.Bin{Op: kind, Type: lw.f.ValueType(l), L: l, R: r}, nil

	case op.Cmp != nil:
		l, err := lw.value(pos, op.Cmp.L)
		if err != nil {
			return nil, err
		}
		r, err := lw.value(pos, op.Cmp.R)
		if err != nil {
			return nil, err
		}
		kind, err := cmpKind(op.Cmp.Op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return &ir.Cmp{Op: kind, Type: lw.types.Bool(), L: l, R: r}, nil

	case op.Cast != nil:
		arg, err := lw.value(pos, op.Cast.Arg)
		if err != nil {
			return nil, err
		}
		t, err := lowerType(lw.types, op.Cast.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return &ir.Cast{Arg: arg, Type: t}, nil

	case op.GetLoc != nil:
		l, ok := lw.locals[op.GetLoc.Local]
		if !ok {
			return nil, fmt.Errorf("%s: unknown local %q", pos, op.GetLoc.Local)
		}
		return &ir.GetLocal{Local: l, Type: lw.types.Pointer(lw.f.Locals[l].Type)}, nil

	case op.Gep != nil:
		base, err := lw.value(pos, op.Gep.Base)
		if err != nil {
			return nil, err
		}
		path := make([]int, len(op.Gep.Path))
		for i, s := range op.Gep.Path {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%s: bad path index %q", pos, s)
			}
			path[i] = n
		}
		baseType := lw.f.ValueType(base)
		pointee, err := pointeeOf(lw.types, baseType)
		if err != nil {
			return nil, fmt.Errorf("%s: get_elem_ptr base: %w", pos, err)
		}
		_, elem, err := lw.types.ElemOffset(pointee, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}
		return &ir.GetElemPtr{Base: base, Path: path, Type: lw.types.Pointer(elem)}, nil

	case op.Load != nil:
		addr, err := lw.value(pos, op.Load.Addr)
		if err != nil {
			return nil, err
		}
		pointee, err := pointeeOf(lw.types, lw.f.ValueType(addr))
		if err != nil {
			return nil, fmt.Errorf("%s: load address: %w", pos, err)
		}
		return &ir.Load{Addr: addr, Type: pointee}, nil

	case op.Store != nil:
		val, err := lw.value(pos, op.Store.Val)
		if err != nil {
			return nil, err
		}
		addr, err := lw.value(pos, op.Store.Addr)
		if err != nil {
			return nil, err
		}
		return &ir.Store{Val: val, Addr: addr}, nil

	case op.MemCopy != nil:
		dst, err := lw.value(pos, op.MemCopy.Dst)
		if err != nil {
			return nil, err
		}
		src, err := lw.value(pos, op.MemCopy.Src)
		if err != nil {
			return nil, err
		}
		return &ir.MemCopyVal{Dst: dst, Src: src}, nil

	case op.Call != nil:
		args := make([]ir.ValueID, len(op.Call.Args))
		for i, a := range op.Call.Args {
			v, err := lw.value(pos, a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		// Result type is filled in by patchCalls once the callee exists.
		return &ir.Call{Callee: op.Call.Callee, Args: args, Type: ir.NoType}, nil

	case op.Asm != nil:
		inputs := make([]ir.AsmInput, len(op.Asm.Inputs))
		for i, in := range op.Asm.Inputs {
			v, err := lw.value(pos, in.Value)
			if err != nil {
				return nil, err
			}
			inputs[i] = ir.AsmInput{Name: in.Name, Value: v}
		}
		ops := make([]ir.AsmOp, len(op.Asm.Ops))
		for i, o := range op.Asm.Ops {
			ops[i] = ir.AsmOp{Name: o.Name, Args: append([]string(nil), o.Args...)}
		}
		result := ""
		resultType := ir.NoType
		if op.Asm.Ret != nil {
			result = op.Asm.Ret.Reg
			t, err := lowerType(lw.types, op.Asm.Ret.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pos, err)
			}
			resultType = t
		}
		return ir.NewAsm(inputs, result, resultType, ops), nil

	case op.Br != nil:
		target, err := lw.block(pos, op.Br.Target)
		if err != nil {
			return nil, err
		}
		return &ir.Br{Target: target}, nil

	case op.Cbr != nil:
		cond, err := lw.value(pos, op.Cbr.Cond)
		if err != nil {
			return nil, err
		}
		then, err := lw.block(pos, op.Cbr.Then)
		if err != nil {
			return nil, err
		}
		els, err := lw.block(pos, op.Cbr.Else)
		if err != nil {
			return nil, err
		}
		return &ir.Cbr{Cond: cond, Then: then, Else: els}, nil

	case op.Ret != nil:
		if op.Ret.Val == nil {
			return &ir.Ret{Val: ir.NoValue}, nil
		}
		v, err := lw.value(pos, *op.Ret.Val)
		if err != nil {
			return nil, err
		}
		return &ir.Ret{Val: v}, nil

	case op.Revert != nil:
		code, err := lw.value(pos, op.Revert.Code)
		if err != nil {
			return nil, err
		}
		return &ir.Revert{Code: code}, nil
	}
	return nil, fmt.Errorf("%s: empty instruction", pos)
}

func pointeeOf(types *ir.TypePool, t ir.TypeID) (ir.TypeID, error) {
	typ := types.Get(t)
	if typ.Kind != ir.TypePointer {
		return ir.NoType, fmt.Errorf("expected a pointer, got %s", types.String(t))
	}
	return typ.Elem, nil
}

func binKind(name string) (ir.BinKind, error) {
	kinds := map[string]ir.BinKind{
		"add": ir.BinAdd, "sub": ir.BinSub, "mul": ir.BinMul, "div": ir.BinDiv,
		"mod": ir.BinMod, "and": ir.BinAnd, "or": ir.BinOr, "xor": ir.BinXor,
		"lsl": ir.BinLsh, "lsr": ir.BinRsh,
	}
	k, ok := kinds[name]
	if !ok {
		return 0, fmt.Errorf("unknown binary op %q", name)
	}
	return k, nil
}

func cmpKind(name string) (ir.CmpKind, error) {
	kinds := map[string]ir.CmpKind{
		"eq": ir.CmpEq, "ne": ir.CmpNe, "lt": ir.CmpLt,
		"le": ir.CmpLe, "gt": ir.CmpGt, "ge": ir.CmpGe,
	}
	k, ok := kinds[name]
	if !ok {
		return 0, fmt.Errorf("unknown comparison %q", name)
	}
	return k, nil
}

func lowerType(types *ir.TypePool, t *Type) (ir.TypeID, error) {
	switch {
	case t.Ptr != nil:
		p, err := lowerType(types, t.Ptr)
		if err != nil {
			return ir.NoType, err
		}
		return types.Pointer(p), nil

	case t.Enum != nil:
		variants := make([]ir.TypeID, len(t.Enum))
		for i, v := range t.Enum {
			id, err := lowerType(types, v)
			if err != nil {
				return ir.NoType, err
			}
			variants[i] = id
		}
		return types.Enum(variants...), nil

	case t.Struct != nil:
		fields := make([]ir.TypeID, len(t.Struct))
		for i, f := range t.Struct {
			id, err := lowerType(types, f)
			if err != nil {
				return ir.NoType, err
			}
			fields[i] = id
		}
		return types.Struct(fields...), nil

	case t.Array != nil:
		elem, err := lowerType(types, t.Array.Elem)
		if err != nil {
			return ir.NoType, err
		}
		n, err := strconv.Atoi(t.Array.Count)
		if err != nil || n <= 0 {
			return ir.NoType, fmt.Errorf("bad array length %q", t.Array.Count)
		}
		return types.Array(elem, n), nil

	case t.Blob != nil:
		n, err := strconv.Atoi(*t.Blob)
		if err != nil || n <= 0 {
			return ir.NoType, fmt.Errorf("bad blob size %q", *t.Blob)
		}
		return types.Blob(n), nil
	}

	switch t.Name {
	case "unit":
		return types.Unit(), nil
	case "bool":
		return types.Bool(), nil
	case "b256":
		return types.B256(), nil
	case "u8", "u16", "u32", "u64":
		bits, _ := strconv.Atoi(strings.TrimPrefix(t.Name, "u"))
		return types.Uint(bits), nil
	}
	return ir.NoType, fmt.Errorf("unknown type %q", t.Name)
}
