package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAddCaller returns a module with u64 add(a, b) and an entry point
// calling it.
func buildAddCaller(t *testing.T) (*Module, *Function) {
	t.Helper()
	m := NewModule("t")
	u64 := m.Types.Uint(64)
	addFunction(m)

	caller := m.NewFunction("main", u64, true)
	x := caller.AddParam("x", u64)
	entry := caller.NewBlock("entry")
	c := caller.Append(entry, &Const{Type: u64, Value: 10})
	r := caller.Append(entry, &Call{Callee: "add", Args: []ValueID{x, c}, Type: u64})
	doubled := caller.Append(entry, &Bin{Op: BinAdd, Type: u64, L: r, R: r})
	caller.Append(entry, &Ret{Val: doubled})

	require.NoError(t, VerifyModule(m))
	return m, caller
}

func TestInlineStraightLineCall(t *testing.T) {
	m, caller := buildAddCaller(t)

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, VerifyModule(m))

	// The call is gone; its arena slot now loads the spliced result, so
	// the doubling instruction kept its operands untouched.
	assert.Equal(t, 0, countInstr[*Call](caller))
	assert.Equal(t, 1, countInstr[*Load](caller))
	assert.Equal(t, 1, countInstr[*Store](caller))

	// Result travels through a dedicated local.
	found := false
	for _, l := range caller.Locals {
		if l.Name == "add_ret" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInlineIsIdempotentOnce(t *testing.T) {
	m, _ := buildAddCaller(t)

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = Inline(m, InlineAll())
	require.NoError(t, err)
	assert.False(t, changed)
}

// Aggregate arguments are bound by copy: the clone must write through a
// fresh local, never through the caller's storage.
func TestInlineCopiesAggregateArguments(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)
	pair := m.Types.Struct(u64, u64)

	// fn bump(p: { u64, u64 }) -> u64 { p.0 = p.0 + 1; ret p.0 }
	callee := m.NewFunction("bump", u64, false)
	p := callee.AddParam("p", pair)
	ce := callee.NewBlock("entry")
	field := callee.Append(ce, &GetElemPtr{Base: p, Path: []int{0}, Type: m.Types.Pointer(u64)})
	v := callee.Append(ce, &Load{Addr: field, Type: u64})
	one := callee.Append(ce, &Const{Type: u64, Value: 1})
	sum := callee.Append(ce, &Bin{Op: BinAdd, Type: u64, L: v, R: one})
	callee.Append(ce, &Store{Val: sum, Addr: field})
	callee.Append(ce, &Ret{Val: sum})

	caller := m.NewFunction("main", u64, true)
	local := caller.NewLocal("arg", pair, true)
	entry := caller.NewBlock("entry")
	addr := caller.Append(entry, &GetLocal{Local: local, Type: m.Types.Pointer(pair)})
	r := caller.Append(entry, &Call{Callee: "bump", Args: []ValueID{addr}, Type: u64})
	caller.Append(entry, &Ret{Val: r})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	// Exactly one copy into the freshly bound parameter local.
	assert.Equal(t, 1, countInstr[*MemCopyVal](caller))

	// The cloned body must address the copy, not the caller's local: no
	// surviving get_elem_ptr may be based on the caller's own pointer.
	for b := range caller.Blocks {
		for _, id := range caller.Blocks[b].Code {
			if gep, ok := caller.Instrs[id].(*GetElemPtr); ok {
				assert.NotEqual(t, addr, gep.Base,
					"inlined body addresses the caller's storage directly")
			}
		}
	}

	// The copy is sourced from the caller's pointer.
	for b := range caller.Blocks {
		for _, id := range caller.Blocks[b].Code {
			if cp, ok := caller.Instrs[id].(*MemCopyVal); ok {
				assert.Equal(t, addr, cp.Src)
				assert.NotEqual(t, addr, cp.Dst)
			}
		}
	}
}

// A callee that leaks its parameter's address must see a different address
// than the caller's own storage once inlined; the comparison below must not
// collapse to comparing the same pointer with itself.
func TestInlineParameterAddressDiffersFromArgument(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)
	inner := m.Types.Struct(u64, u64)
	outer := m.Types.Struct(inner, m.Types.Struct(u64, u64))

	// fn where(p: outer) -> u64 { ret cast p to u64 }
	callee := m.NewFunction("where", u64, false)
	p := callee.AddParam("p", outer)
	ce := callee.NewBlock("entry")
	paddr := callee.Append(ce, &Cast{Arg: p, Type: u64})
	callee.Append(ce, &Ret{Val: paddr})

	caller := m.NewFunction("main", m.Types.Bool(), true)
	local := caller.NewLocal("b", outer, true)
	entry := caller.NewBlock("entry")
	mine := caller.Append(entry, &GetLocal{Local: local, Type: m.Types.Pointer(outer)})
	myAddr := caller.Append(entry, &Cast{Arg: mine, Type: u64})
	theirs := caller.Append(entry, &Call{Callee: "where", Args: []ValueID{mine}, Type: u64})
	same := caller.Append(entry, &Cmp{Op: CmpEq, Type: m.Types.Bool(), L: myAddr, R: theirs})
	caller.Append(entry, &Ret{Val: same})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	// The cloned address-taking cast must read the copy's pointer, not the
	// caller's.
	casts := 0
	for b := range caller.Blocks {
		for _, id := range caller.Blocks[b].Code {
			cast, ok := caller.Instrs[id].(*Cast)
			if !ok || id == myAddr {
				continue
			}
			casts++
			assert.NotEqual(t, mine, cast.Arg, "callee observes the caller's own address")
		}
	}
	assert.Equal(t, 1, casts)
	assert.Equal(t, 1, countInstr[*MemCopyVal](caller))
}

func TestInlineSkipsDirectRecursion(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)

	f := m.NewFunction("loop", u64, false)
	a := f.AddParam("a", u64)
	entry := f.NewBlock("entry")
	r := f.Append(entry, &Call{Callee: "loop", Args: []ValueID{a}, Type: u64})
	f.Append(entry, &Ret{Val: r})
	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, countInstr[*Call](f))
}

func TestInlineSkipsMutualRecursion(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)

	ping := m.NewFunction("ping", u64, false)
	a := ping.AddParam("a", u64)
	pe := ping.NewBlock("entry")
	pr := ping.Append(pe, &Call{Callee: "pong", Args: []ValueID{a}, Type: u64})
	ping.Append(pe, &Ret{Val: pr})

	pong := m.NewFunction("pong", u64, false)
	b := pong.AddParam("b", u64)
	qe := pong.NewBlock("entry")
	qr := pong.Append(qe, &Call{Callee: "ping", Args: []ValueID{b}, Type: u64})
	pong.Append(qe, &Ret{Val: qr})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, countInstr[*Call](ping))
	assert.Equal(t, 1, countInstr[*Call](pong))
}

func TestInlineSizeBudget(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)
	boolT := m.Types.Bool()

	// Three blocks: over a two-block budget.
	big := m.NewFunction("big", u64, false)
	ba := big.AddParam("a", u64)
	be := big.NewBlock("entry")
	bt := big.NewBlock("then")
	bf := big.NewBlock("else")
	cond := big.Append(be, &Cmp{Op: CmpEq, Type: boolT, L: ba, R: ba})
	big.Append(be, &Cbr{Cond: cond, Then: bt, Else: bf})
	big.Append(bt, &Ret{Val: ba})
	c := big.Append(bf, &Const{Type: u64, Value: 0})
	big.Append(bf, &Ret{Val: c})

	// One block, few instructions, one word of stack.
	small := m.NewFunction("small", u64, false)
	sa := small.AddParam("a", u64)
	se := small.NewBlock("entry")
	l := small.NewLocal("tmp", u64, true)
	sp := small.Append(se, &GetLocal{Local: l, Type: m.Types.Pointer(u64)})
	small.Append(se, &Store{Val: sa, Addr: sp})
	small.Append(se, &Ret{Val: sa})

	caller := m.NewFunction("main", u64, true)
	x := caller.AddParam("x", u64)
	entry := caller.NewBlock("entry")
	r1 := caller.Append(entry, &Call{Callee: "big", Args: []ValueID{x}, Type: u64})
	r2 := caller.Append(entry, &Call{Callee: "small", Args: []ValueID{r1}, Type: u64})
	caller.Append(entry, &Ret{Val: r2})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, SizeBudget(2, 20, 10))
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	// Only the small callee fits the budget.
	remaining := 0
	for b := range caller.Blocks {
		for _, id := range caller.Blocks[b].Code {
			if call, ok := caller.Instrs[id].(*Call); ok {
				remaining++
				assert.Equal(t, "big", call.Callee)
			}
		}
	}
	assert.Equal(t, 1, remaining)
}

func TestInlineBudgetRejectsPerConstraint(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)

	callee := m.NewFunction("wide", u64, false)
	a := callee.AddParam("a", u64)
	ce := callee.NewBlock("entry")
	callee.NewLocal("buf", m.Types.Array(u64, 8), true) // 64 bytes of stack
	p := callee.Append(ce, &GetLocal{Local: 0, Type: m.Types.Pointer(m.Types.Array(u64, 8))})
	e0 := callee.Append(ce, &GetElemPtr{Base: p, Path: []int{0}, Type: m.Types.Pointer(u64)})
	callee.Append(ce, &Store{Val: a, Addr: e0})
	callee.Append(ce, &Ret{Val: a})

	assert.True(t, qualifies(callee, SizeBudget(1, 10, 64)))
	assert.False(t, qualifies(callee, SizeBudget(1, 10, 63)), "stack budget must bind")
	assert.False(t, qualifies(callee, SizeBudget(1, 3, 64)), "instruction budget must bind")
	assert.False(t, qualifies(callee, SizeBudget(0, 10, 64)), "block budget must bind")
	assert.True(t, qualifies(callee, InlineAll()))
}

func TestInlineUnitCallee(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)

	callee := m.NewFunction("touch", m.Types.Unit(), false)
	a := callee.AddParam("out", m.Types.Struct(u64, u64))
	ce := callee.NewBlock("entry")
	field := callee.Append(ce, &GetElemPtr{Base: a, Path: []int{1}, Type: m.Types.Pointer(u64)})
	c := callee.Append(ce, &Const{Type: u64, Value: 7})
	callee.Append(ce, &Store{Val: c, Addr: field})
	callee.Append(ce, &Ret{Val: NoValue})

	caller := m.NewFunction("main", m.Types.Unit(), true)
	l := caller.NewLocal("s", m.Types.Struct(u64, u64), true)
	entry := caller.NewBlock("entry")
	p := caller.Append(entry, &GetLocal{Local: l, Type: m.Types.Pointer(m.Types.Struct(u64, u64))})
	caller.Append(entry, &Call{Callee: "touch", Args: []ValueID{p}, Type: NoType})
	caller.Append(entry, &Ret{Val: NoValue})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	assert.Equal(t, 0, countInstr[*Call](caller))
	assert.Equal(t, 0, countInstr[*Load](caller))
}

func TestInlineMultiReturnCallee(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)
	boolT := m.Types.Bool()

	callee := m.NewFunction("pick", u64, false)
	a := callee.AddParam("a", u64)
	b := callee.AddParam("b", u64)
	ce := callee.NewBlock("entry")
	ct := callee.NewBlock("then")
	cf := callee.NewBlock("else")
	cond := callee.Append(ce, &Cmp{Op: CmpLt, Type: boolT, L: a, R: b})
	callee.Append(ce, &Cbr{Cond: cond, Then: ct, Else: cf})
	callee.Append(ct, &Ret{Val: a})
	callee.Append(cf, &Ret{Val: b})

	caller := m.NewFunction("main", u64, true)
	x := caller.AddParam("x", u64)
	y := caller.AddParam("y", u64)
	entry := caller.NewBlock("entry")
	r := caller.Append(entry, &Call{Callee: "pick", Args: []ValueID{x, y}, Type: u64})
	caller.Append(entry, &Ret{Val: r})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	// Both returns became stores into the result local.
	assert.Equal(t, 2, countInstr[*Store](caller))
	assert.Equal(t, 1, countInstr[*Load](caller))
	assert.Equal(t, 0, countInstr[*Call](caller))
}

func TestInlineProcessesCalleesFirst(t *testing.T) {
	m := NewModule("t")
	u64 := m.Types.Uint(64)

	leaf := m.NewFunction("leaf", u64, false)
	la := leaf.AddParam("a", u64)
	le := leaf.NewBlock("entry")
	one := leaf.Append(le, &Const{Type: u64, Value: 1})
	sum := leaf.Append(le, &Bin{Op: BinAdd, Type: u64, L: la, R: one})
	leaf.Append(le, &Ret{Val: sum})

	mid := m.NewFunction("mid", u64, false)
	ma := mid.AddParam("a", u64)
	me := mid.NewBlock("entry")
	mr := mid.Append(me, &Call{Callee: "leaf", Args: []ValueID{ma}, Type: u64})
	mid.Append(me, &Ret{Val: mr})

	top := m.NewFunction("main", u64, true)
	ta := top.AddParam("a", u64)
	te := top.NewBlock("entry")
	tr := top.Append(te, &Call{Callee: "mid", Args: []ValueID{ta}, Type: u64})
	top.Append(te, &Ret{Val: tr})

	require.NoError(t, VerifyModule(m))

	changed, err := Inline(m, InlineAll())
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, VerifyModule(m))

	assert.Equal(t, 0, countInstr[*Call](top))
	assert.Equal(t, 0, countInstr[*Call](mid))
}

func TestOptimizePipeline(t *testing.T) {
	m, caller := buildAddCaller(t)

	require.NoError(t, Optimize(m, Options{Policy: InlineAll()}))
	require.NoError(t, VerifyModule(m))

	assert.Equal(t, 0, countInstr[*Call](caller))
}
