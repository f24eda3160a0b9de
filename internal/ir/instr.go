package ir

// Instruction kinds of the mid-level IR. Passes discriminate with type
// switches, the way a pass wants to see exactly the operations it cares
// about; the interface itself stays small.

// Instruction is one operation in a Function's arena.
type Instruction interface {
	// Operands lists the value inputs, NoValue entries excluded.
	Operands() []ValueID
	// ResultType is the type of the produced Value, or NoType when the
	// instruction produces nothing.
	ResultType() TypeID
	// IsTerminator reports whether the instruction transfers control.
	IsTerminator() bool
}

// HasResult reports whether an instruction produces a Value.
func HasResult(ins Instruction) bool {
	return ins.ResultType() != NoType
}

// BinKind is a pure binary arithmetic/bitwise operation.
type BinKind int

const (
	BinAdd BinKind = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinLsh
	BinRsh
)

var binNames = [...]string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "lsl", "lsr"}

func (k BinKind) String() string { return binNames[k] }

// CmpKind is a pure comparison producing a bool.
type CmpKind int

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var cmpNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (k CmpKind) String() string { return cmpNames[k] }

// Arg is the pseudo-instruction representing a declared parameter. It lives
// in the arena but belongs to no block.
type Arg struct {
	Index int
	Type  TypeID
}

// Const materializes an immediate of a scalar type.
type Const struct {
	Type  TypeID
	Value uint64
}

// Bin is a pure binary operation; both operands and the result share Type.
type Bin struct {
	Op   BinKind
	Type TypeID
	L, R ValueID
}

// Cmp compares two values of the same type; the result is bool.
type Cmp struct {
	Op   CmpKind
	Type TypeID // result type; always the pool's bool
	L, R ValueID
}

// Cast converts a scalar value to another scalar type.
type Cast struct {
	Arg  ValueID
	Type TypeID
}

// GetLocal takes the address of a Local; the result is ptr-to-local-type.
type GetLocal struct {
	Local LocalID
	Type  TypeID
}

// GetElemPtr computes the address of a field/element through a static
// offset path rooted at a base pointer. Type is ptr-to-element.
type GetElemPtr struct {
	Base ValueID
	Path []int
	Type TypeID
}

// Load reads the pointee of an address.
type Load struct {
	Addr ValueID
	Type TypeID
}

// Store writes a value through an address.
type Store struct {
	Val  ValueID
	Addr ValueID
}

// MemCopyVal copies the bytes of one aggregate to another address. Both
// operands are pointers to the same type.
type MemCopyVal struct {
	Dst ValueID
	Src ValueID
}

// Call invokes another function of the module by name. Type is NoType for
// unit-returning callees.
type Call struct {
	Callee string
	Args   []ValueID
	Type   TypeID
}

// AsmInput binds a declared register name of an opaque block to a value.
type AsmInput struct {
	Name  string
	Value ValueID
}

// AsmOp is one raw VM opcode inside an opaque block. The IR does not model
// its semantics; only the mnemonic matters, for side-effect classification.
type AsmOp struct {
	Name string
	Args []string
}

// Asm is an opaque block of raw VM opcodes with declared inputs and,
// optionally, a named result register. Impure is fixed at construction from
// the opcode classification table and never re-derived.
type Asm struct {
	Inputs []AsmInput
	Result string // declared result register; "" when the block yields nothing
	Type   TypeID // NoType when Result is ""
	Ops    []AsmOp
	Impure bool
}

// Br transfers control unconditionally.
type Br struct {
	Target BlockID
}

// Cbr transfers control on a bool condition.
type Cbr struct {
	Cond ValueID
	Then BlockID
	Else BlockID
}

// Ret leaves the function with an optional value (NoValue for unit).
type Ret struct {
	Val ValueID
}

// Revert aborts the function activation with a code.
type Revert struct {
	Code ValueID
}

func (a *Arg) Operands() []ValueID { return nil }
func (a *Arg) ResultType() TypeID  { return a.Type }
func (a *Arg) IsTerminator() bool  { return false }

func (c *Const) Operands() []ValueID { return nil }
func (c *Const) ResultType() TypeID  { return c.Type }
func (c *Const) IsTerminator() bool  { return false }

func (b *Bin) Operands() []ValueID { return []ValueID{b.L, b.R} }
func (b *Bin) ResultType() TypeID  { return b.Type }
func (b *Bin) IsTerminator() bool  { return false }

func (c *Cmp) Operands() []ValueID { return []ValueID{c.L, c.R} }
func (c *Cmp) ResultType() TypeID  { return c.Type }
func (c *Cmp) IsTerminator() bool  { return false }

func (c *Cast) Operands() []ValueID { return []ValueID{c.Arg} }
func (c *Cast) ResultType() TypeID  { return c.Type }
func (c *Cast) IsTerminator() bool  { return false }

func (g *GetLocal) Operands() []ValueID { return nil }
func (g *GetLocal) ResultType() TypeID  { return g.Type }
func (g *GetLocal) IsTerminator() bool  { return false }

func (g *GetElemPtr) Operands() []ValueID { return []ValueID{g.Base} }
func (g *GetElemPtr) ResultType() TypeID  { return g.Type }
func (g *GetElemPtr) IsTerminator() bool  { return false }

func (l *Load) Operands() []ValueID { return []ValueID{l.Addr} }
func (l *Load) ResultType() TypeID  { return l.Type }
func (l *Load) IsTerminator() bool  { return false }

func (s *Store) Operands() []ValueID { return []ValueID{s.Val, s.Addr} }
func (s *Store) ResultType() TypeID  { return NoType }
func (s *Store) IsTerminator() bool  { return false }

func (m *MemCopyVal) Operands() []ValueID { return []ValueID{m.Dst, m.Src} }
func (m *MemCopyVal) ResultType() TypeID  { return NoType }
func (m *MemCopyVal) IsTerminator() bool  { return false }

func (c *Call) Operands() []ValueID { return c.Args }
func (c *Call) ResultType() TypeID  { return c.Type }
func (c *Call) IsTerminator() bool  { return false }

func (a *Asm) Operands() []ValueID {
	ops := make([]ValueID, len(a.Inputs))
	for i, in := range a.Inputs {
		ops[i] = in.Value
	}
	return ops
}
func (a *Asm) ResultType() TypeID { return a.Type }
func (a *Asm) IsTerminator() bool { return false }

func (b *Br) Operands() []ValueID { return nil }
func (b *Br) ResultType() TypeID  { return NoType }
func (b *Br) IsTerminator() bool  { return true }

func (c *Cbr) Operands() []ValueID { return []ValueID{c.Cond} }
func (c *Cbr) ResultType() TypeID  { return NoType }
func (c *Cbr) IsTerminator() bool  { return true }

func (r *Ret) Operands() []ValueID {
	if r.Val == NoValue {
		return nil
	}
	return []ValueID{r.Val}
}
func (r *Ret) ResultType() TypeID { return NoType }
func (r *Ret) IsTerminator() bool { return true }

func (r *Revert) Operands() []ValueID { return []ValueID{r.Code} }
func (r *Revert) ResultType() TypeID  { return NoType }
func (r *Revert) IsTerminator() bool  { return true }
