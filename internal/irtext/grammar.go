// Package irtext parses and checks the textual form of sable IR modules
// (.sir files). The grammar mirrors what ir.Printer emits, so printed
// modules round-trip.
package irtext

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var irLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `//[^\n]*`},

		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Integer", Pattern: `0x[0-9a-fA-F]+|[0-9]+`},

		// Must come before Punct so "-" never tokenizes alone.
		{Name: "Arrow", Pattern: `->`},
		{Name: "Punct", Pattern: `[{}()\[\];:,=<>]`},

		{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	},
})

type File struct {
	Name  string  `parser:"\"module\" @Ident"`
	Funcs []*Func `parser:"@@*"`
}

type Func struct {
	Pos lexer.Position

	Entry  bool       `parser:"( @\"entry\" | \"fn\" )"`
	Name   string     `parser:"@Ident \"(\""`
	Params []*Param   `parser:"[ @@ { \",\" @@ } ] \")\""`
	Ret    *Type      `parser:"[ Arrow @@ ]"`
	Locals []*Local   `parser:"\"{\" @@*"`
	Blocks []*BlockDl `parser:"@@* \"}\""`
}

type Param struct {
	Name string `parser:"@Ident \":\""`
	Type *Type  `parser:"@@"`
}

type Local struct {
	Mut  bool   `parser:"\"local\" [ @\"mut\" ]"`
	Type *Type  `parser:"@@"`
	Name string `parser:"@Ident"`
}

type BlockDl struct {
	Pos lexer.Position

	Label string   `parser:"@Ident \"(\" \")\" \":\""`
	Code  []*Instr `parser:"@@*"`
}

type Instr struct {
	Pos lexer.Position

	Result *string `parser:"[ @Ident \"=\" ]"`
	Op     *Op     `parser:"@@"`
}

type Op struct {
	Const   *ConstOp   `parser:"  @@"`
	Cmp     *CmpOp     `parser:"| @@"`
	Cast    *CastOp    `parser:"| @@"`
	GetLoc  *GetLocOp  `parser:"| @@"`
	Gep     *GepOp     `parser:"| @@"`
	Load    *LoadOp    `parser:"| @@"`
	Store   *StoreOp   `parser:"| @@"`
	MemCopy *MemCopyOp `parser:"| @@"`
	Call    *CallOp    `parser:"| @@"`
	Asm     *AsmBlk    `parser:"| @@"`
	Br      *BrOp      `parser:"| @@"`
	Cbr     *CbrOp     `parser:"| @@"`
	Ret     *RetOp     `parser:"| @@"`
	Revert  *RevertOp  `parser:"| @@"`
	Bin     *BinOp     `parser:"| @@"`
}

type ConstOp struct {
	Type  *Type  `parser:"\"const\" @@"`
	Value string `parser:"@Integer"`
}

type BinOp struct {
	Op string `parser:"@(\"add\" | \"sub\" | \"mul\" | \"div\" | \"mod\" | \"and\" | \"or\" | \"xor\" | \"lsl\" | \"lsr\")"`
	L  string `parser:"@Ident \",\""`
	R  string `parser:"@Ident"`
}

type CmpOp struct {
	Op string `parser:"\"cmp\" @(\"eq\" | \"ne\" | \"lt\" | \"le\" | \"gt\" | \"ge\")"`
	L  string `parser:"@Ident \",\""`
	R  string `parser:"@Ident"`
}

type CastOp struct {
	Arg  string `parser:"\"cast\" @Ident"`
	Type *Type  `parser:"\"to\" @@"`
}

type GetLocOp struct {
	Local string `parser:"\"get_local\" @Ident"`
}

type GepOp struct {
	Base string   `parser:"\"get_elem_ptr\" @Ident"`
	Path []string `parser:"( \",\" @Integer )+"`
}

type LoadOp struct {
	Addr string `parser:"\"load\" @Ident"`
}

type StoreOp struct {
	Val  string `parser:"\"store\" @Ident \",\""`
	Addr string `parser:"@Ident"`
}

type MemCopyOp struct {
	Dst string `parser:"\"mem_copy_val\" @Ident \",\""`
	Src string `parser:"@Ident"`
}

type CallOp struct {
	Callee string   `parser:"\"call\" @Ident \"(\""`
	Args   []string `parser:"[ @Ident { \",\" @Ident } ] \")\""`
}

type AsmBlk struct {
	Inputs []*AsmIn    `parser:"\"asm\" \"(\" [ @@ { \",\" @@ } ] \")\""`
	Ret    *AsmRet     `parser:"[ Arrow @@ ]"`
	Ops    []*AsmInstr `parser:"\"{\" @@* \"}\""`
}

type AsmIn struct {
	Name  string `parser:"@Ident \":\""`
	Value string `parser:"@Ident"`
}

type AsmRet struct {
	Type *Type  `parser:"@@"`
	Reg  string `parser:"@Ident"`
}

type AsmInstr struct {
	Name string   `parser:"@Ident"`
	Args []string `parser:"@(Ident | Integer)* \";\""`
}

type BrOp struct {
	Target string `parser:"\"br\" @Ident"`
}

type CbrOp struct {
	Cond string `parser:"\"cbr\" @Ident \",\""`
	Then string `parser:"@Ident \",\""`
	Else string `parser:"@Ident"`
}

type RetOp struct {
	Kw  bool    `parser:"@\"ret\""`
	Val *string `parser:"[ @Ident (?! \"(\" ) ]"`
}

type RevertOp struct {
	Code string `parser:"\"rvrt\" @Ident"`
}

type Type struct {
	Ptr    *Type   `parser:"  \"ptr\" @@"`
	Enum   []*Type `parser:"| \"enum\" \"{\" @@ { \",\" @@ } \"}\""`
	Struct []*Type `parser:"| \"{\" @@ { \",\" @@ } \"}\""`
	Array  *Array  `parser:"| @@"`
	Blob   *string `parser:"| \"blob\" \"<\" @Integer \">\""`
	Name   string  `parser:"| @Ident"`
}

type Array struct {
	Elem  *Type  `parser:"\"[\" @@ \";\""`
	Count string `parser:"@Integer \"]\""`
}
