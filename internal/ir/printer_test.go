package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintFunction(t *testing.T) {
	m := NewModule("demo")
	u64 := m.Types.Uint(64)
	f := m.NewFunction("main", u64, true)
	x := f.AddParam("x", u64)
	acc := f.NewLocal("acc", u64, true)

	entry := f.NewBlock("entry")
	c := f.Append(entry, &Const{Type: u64, Value: 2})
	sum := f.Append(entry, &Bin{Op: BinAdd, Type: u64, L: x, R: c})
	p := f.Append(entry, &GetLocal{Local: acc, Type: m.Types.Pointer(u64)})
	f.Append(entry, &Store{Val: sum, Addr: p})
	v := f.Append(entry, &Load{Addr: p, Type: u64})
	f.Append(entry, &Ret{Val: v})

	require.NoError(t, Verify(f))

	var printer Printer
	want := `entry main(x: u64) -> u64 {
  local mut u64 acc

  entry():
    v1 = const u64 2
    v2 = add x, v1
    v3 = get_local acc
    store v2, v3
    v5 = load v3
    ret v5
}
`
	assert.Equal(t, want, printer.PrintFunction(f))
}

func TestPrintControlFlowAndCalls(t *testing.T) {
	m := NewModule("demo")
	u64 := m.Types.Uint(64)
	boolT := m.Types.Bool()
	addFunction(m)

	f := m.NewFunction("pick", u64, false)
	a := f.AddParam("a", u64)
	b := f.AddParam("b", u64)

	entry := f.NewBlock("entry")
	then := f.NewBlock("then")
	els := f.NewBlock("else")

	cond := f.Append(entry, &Cmp{Op: CmpLt, Type: boolT, L: a, R: b})
	f.Append(entry, &Cbr{Cond: cond, Then: then, Else: els})
	r := f.Append(then, &Call{Callee: "add", Args: []ValueID{a, b}, Type: u64})
	f.Append(then, &Ret{Val: r})
	f.Append(els, &Ret{Val: b})

	require.NoError(t, VerifyModule(m))

	var printer Printer
	want := `fn pick(a: u64, b: u64) -> u64 {
  entry():
    v2 = cmp lt a, b
    cbr v2, then, else

  then():
    v4 = call add(a, b)
    ret v4

  else():
    ret b
}
`
	assert.Equal(t, want, printer.PrintFunction(f))
}

func TestPrintAsmAndUnit(t *testing.T) {
	m := NewModule("demo")
	u64 := m.Types.Uint(64)
	f := m.NewFunction("probe", m.Types.Unit(), false)
	a := f.AddParam("a", u64)

	entry := f.NewBlock("entry")
	f.Append(entry, NewAsm(
		[]AsmInput{{Name: "x", Value: a}}, "r", u64,
		[]AsmOp{
			{Name: "lw", Args: []string{"r", "x", "i0"}},
			{Name: "sww", Args: []string{"x", "zero", "r"}},
		}))
	f.Append(entry, &Ret{Val: NoValue})

	require.NoError(t, Verify(f))

	var printer Printer
	want := `fn probe(a: u64) {
  entry():
    v1 = asm(x: a) -> u64 r {
      lw r x i0;
      sww x zero r;
    }
    ret
}
`
	assert.Equal(t, want, printer.PrintFunction(f))
}

func TestPrintModuleHeader(t *testing.T) {
	m := NewModule("demo")
	u64 := m.Types.Uint(64)
	f := m.NewFunction("id", u64, false)
	a := f.AddParam("a", u64)
	entry := f.NewBlock("entry")
	f.Append(entry, &Ret{Val: a})

	var printer Printer
	out := printer.Print(m)
	assert.Contains(t, out, "module demo\n")
	assert.Contains(t, out, "fn id(a: u64) -> u64 {")
}
