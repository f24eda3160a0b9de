package ir

// The sable mid-level IR. A Module owns Functions and a shared TypePool;
// a Function owns Locals, Blocks and an instruction arena. Values are in
// SSA form: every Value is produced by exactly one Instruction and the two
// share an identity, the dense arena index ValueID. Passes therefore clone,
// remap and compare by integer id rather than chasing Go pointers.

import "fmt"

type (
	// ValueID identifies an Instruction and the Value it produces. It is a
	// dense index into Function.Instrs.
	ValueID int

	// BlockID is a dense index into Function.Blocks.
	BlockID int

	// LocalID is a dense index into Function.Locals.
	LocalID int

	// TypeID is a dense index into the Module's TypePool.
	TypeID int
)

const (
	// NoValue marks an absent value operand (e.g. a unit return).
	NoValue ValueID = -1

	// NoType marks the absence of a produced value.
	NoType TypeID = -1
)

// Module is an ordered collection of Functions sharing one TypePool.
type Module struct {
	Name  string
	Types *TypePool
	Funcs []*Function
}

// NewModule creates an empty module with a fresh type pool.
func NewModule(name string) *Module {
	return &Module{Name: name, Types: NewTypePool()}
}

// NewFunction appends a function to the module. Entry-point functions print
// as "entry" rather than "fn" in the textual form.
func (m *Module) NewFunction(name string, ret TypeID, entryPoint bool) *Function {
	f := &Function{
		Name:       name,
		EntryPoint: entryPoint,
		Ret:        ret,
		Types:      m.Types,
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Func looks up a function by name, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Param is a declared function parameter. Value is the Arg instruction that
// represents it inside the body; for aggregate-typed parameters the Value
// carries a pointer to the argument's storage while Type stays the declared
// aggregate type.
type Param struct {
	Name  string
	Type  TypeID
	Value ValueID
}

// Local is a named stack slot owned by exactly one Function.
type Local struct {
	Name    string
	Type    TypeID
	Mutable bool
}

// Block is an ordered instruction sequence ending in exactly one terminator.
// Code holds arena indices; predecessors are implicit in the terminators of
// other blocks.
type Block struct {
	Label string
	Code  []ValueID
}

// Function is a name, parameters, a return type and the instruction graph.
// It is created once by the front end (or the textual parser) and mutated in
// place by passes.
type Function struct {
	Name       string
	EntryPoint bool
	Params     []Param
	Ret        TypeID
	Locals     []Local
	Blocks     []Block
	Entry      BlockID
	Instrs     []Instruction // arena; ValueID indexes this; nil slots are retired
	Types      *TypePool

	uses [][]ValueID // uses[v] = instructions consuming v; see RebuildUses
}

// append adds an instruction to the arena and returns its ValueID.
func (f *Function) appendInstr(ins Instruction) ValueID {
	id := ValueID(len(f.Instrs))
	f.Instrs = append(f.Instrs, ins)
	return id
}

// AddParam declares a parameter and materializes its Arg value. Aggregate
// parameters are passed as a pointer to the argument's storage, so their
// SSA value is pointer-typed.
func (f *Function) AddParam(name string, typ TypeID) ValueID {
	valueType := typ
	if f.Types.IsAggregate(typ) {
		valueType = f.Types.Pointer(typ)
	}

	v := f.appendInstr(&Arg{Index: len(f.Params), Type: valueType})
	f.Params = append(f.Params, Param{Name: name, Type: typ, Value: v})
	return v
}

// NewLocal declares a stack slot. The name is made unique within the
// function if it is already taken, which keeps cloned callee locals apart
// from the caller's own.
func (f *Function) NewLocal(name string, typ TypeID, mutable bool) LocalID {
	f.Locals = append(f.Locals, Local{Name: f.uniqueLocalName(name), Type: typ, Mutable: mutable})
	return LocalID(len(f.Locals) - 1)
}

func (f *Function) uniqueLocalName(base string) string {
	taken := func(name string) bool {
		for _, l := range f.Locals {
			if l.Name == name {
				return true
			}
		}
		return false
	}

	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !taken(name) {
			return name
		}
	}
}

// NewBlock appends an empty block with a unique label.
func (f *Function) NewBlock(label string) BlockID {
	taken := func(name string) bool {
		for _, b := range f.Blocks {
			if b.Label == name {
				return true
			}
		}
		return false
	}

	unique := label
	for i := 1; taken(unique); i++ {
		unique = fmt.Sprintf("%s_%d", label, i)
	}

	f.Blocks = append(f.Blocks, Block{Label: unique})
	return BlockID(len(f.Blocks) - 1)
}

// Append places a new instruction at the end of a block and returns its
// ValueID.
func (f *Function) Append(b BlockID, ins Instruction) ValueID {
	id := f.appendInstr(ins)
	f.Blocks[b].Code = append(f.Blocks[b].Code, id)
	return id
}

// Terminator returns the final instruction of a block, if the block is
// non-empty.
func (f *Function) Terminator(b BlockID) (Instruction, bool) {
	code := f.Blocks[b].Code
	if len(code) == 0 {
		return nil, false
	}
	return f.Instrs[code[len(code)-1]], true
}

// NumInstrs counts the instructions currently placed in blocks. Retired
// arena slots and Arg values do not count.
func (f *Function) NumInstrs() int {
	n := 0
	for i := range f.Blocks {
		n += len(f.Blocks[i].Code)
	}
	return n
}

// ValueType returns the type of the value produced at v, or NoType.
func (f *Function) ValueType(v ValueID) TypeID {
	if v < 0 || int(v) >= len(f.Instrs) || f.Instrs[v] == nil {
		return NoType
	}
	return f.Instrs[v].ResultType()
}

// RebuildUses recomputes the use lists from scratch. Passes call this once
// on entry; afterwards Uses answers "is this value dead" in O(1).
func (f *Function) RebuildUses() {
	f.uses = make([][]ValueID, len(f.Instrs))
	for i := range f.Blocks {
		for _, id := range f.Blocks[i].Code {
			ins := f.Instrs[id]
			if ins == nil {
				continue
			}
			for _, op := range ins.Operands() {
				if op >= 0 {
					f.uses[op] = append(f.uses[op], id)
				}
			}
		}
	}
}

// Uses returns the instructions consuming v, as of the last RebuildUses.
func (f *Function) Uses(v ValueID) []ValueID {
	if int(v) >= len(f.uses) {
		return nil
	}
	return f.uses[v]
}

// Successors returns the blocks a block's terminator can transfer to.
func (f *Function) Successors(b BlockID) []BlockID {
	term, ok := f.Terminator(b)
	if !ok {
		return nil
	}
	switch t := term.(type) {
	case *Br:
		return []BlockID{t.Target}
	case *Cbr:
		return []BlockID{t.Then, t.Else}
	}
	return nil
}

// ParamByValue maps an Arg value back to its parameter index, or -1.
func (f *Function) ParamByValue(v ValueID) int {
	for i := range f.Params {
		if f.Params[i].Value == v {
			return i
		}
	}
	return -1
}
