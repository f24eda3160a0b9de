package ir

// Side-effect classification for opaque asm blocks. The IR does not model
// the embedded opcodes individually; it only needs to know whether any of
// them can touch observable VM state. The tag is computed once, when the
// block is constructed, and carried on the Asm instruction from then on.
//
// The opcode table is closed and explicit. A mnemonic missing from both
// sets classifies as impure: unknown opcodes fail safe.

// pureAsmOps are opcodes that only read registers/memory and write their
// destination register.
var pureAsmOps = map[string]struct{}{
	"add":  {},
	"addi": {},
	"sub":  {},
	"subi": {},
	"mul":  {},
	"muli": {},
	"div":  {},
	"divi": {},
	"mod":  {},
	"and":  {},
	"andi": {},
	"or":   {},
	"ori":  {},
	"xor":  {},
	"xori": {},
	"sll":  {},
	"slli": {},
	"srl":  {},
	"srli": {},
	"eq":   {},
	"lt":   {},
	"gt":   {},
	"move": {},
	"movi": {},
	"not":  {},
	"lb":   {},
	"lw":   {},
	"noop": {},
}

// impureAsmOps are opcodes known to mutate shared VM state, emit
// observable output, or transfer control to other code.
var impureAsmOps = map[string]struct{}{
	"sb":   {},
	"sw":   {},
	"sww":  {},
	"swwq": {},
	"mcp":  {},
	"mcl":  {},
	"call": {},
	"ecal": {},
	"log":  {},
	"logd": {},
	"mint": {},
	"burn": {},
	"tr":   {},
	"tro":  {},
	"incr": {},
	"rvrt": {},
}

// ClassifyAsmOps reports whether an opcode sequence must be treated as
// side-effecting.
func ClassifyAsmOps(ops []AsmOp) bool {
	for _, op := range ops {
		if _, ok := pureAsmOps[op.Name]; ok {
			continue
		}
		// Known-impure and unknown opcodes alike.
		return true
	}
	return false
}

// NewAsm builds an opaque block with its side-effect tag fixed at
// construction. resultType must be NoType when result is empty.
func NewAsm(inputs []AsmInput, result string, resultType TypeID, ops []AsmOp) *Asm {
	if result == "" {
		resultType = NoType
	}
	return &Asm{
		Inputs: inputs,
		Result: result,
		Type:   resultType,
		Ops:    ops,
		Impure: ClassifyAsmOps(ops),
	}
}
