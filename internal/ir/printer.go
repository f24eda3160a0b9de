package ir

import (
	"fmt"
	"strings"
)

// Printer renders a module in the textual form the parser accepts. Output
// is deterministic: functions, blocks and instructions appear in their
// slice order, and value names depend only on arena indices.
type Printer struct {
	sb    strings.Builder
	types *TypePool
	fn    *Function
}

// Print renders the whole module.
func (p *Printer) Print(m *Module) string {
	p.sb.Reset()
	p.types = m.Types
	fmt.Fprintf(&p.sb, "module %s\n", m.Name)
	for _, f := range m.Funcs {
		p.sb.WriteString("\n")
		p.printFunction(f)
	}
	return p.sb.String()
}

// PrintFunction renders one function.
func (p *Printer) PrintFunction(f *Function) string {
	p.sb.Reset()
	p.types = f.Types
	p.printFunction(f)
	return p.sb.String()
}

func (p *Printer) printFunction(f *Function) {
	p.fn = f

	kw := "fn"
	if f.EntryPoint {
		kw = "entry"
	}
	params := make([]string, len(f.Params))
	for i, param := range f.Params {
		params[i] = fmt.Sprintf("%s: %s", param.Name, p.types.String(param.Type))
	}
	fmt.Fprintf(&p.sb, "%s %s(%s)", kw, f.Name, strings.Join(params, ", "))
	if f.Ret != p.types.Unit() {
		fmt.Fprintf(&p.sb, " -> %s", p.types.String(f.Ret))
	}
	p.sb.WriteString(" {\n")

	for _, l := range f.Locals {
		p.sb.WriteString("  local ")
		if l.Mutable {
			p.sb.WriteString("mut ")
		}
		fmt.Fprintf(&p.sb, "%s %s\n", p.types.String(l.Type), l.Name)
	}
	if len(f.Locals) > 0 {
		p.sb.WriteString("\n")
	}

	for bi := range f.Blocks {
		if bi > 0 {
			p.sb.WriteString("\n")
		}
		fmt.Fprintf(&p.sb, "  %s():\n", f.Blocks[bi].Label)
		for _, id := range f.Blocks[bi].Code {
			ins := f.Instrs[id]
			if ins == nil {
				continue
			}
			p.sb.WriteString("    ")
			p.printInstr(id, ins)
			p.sb.WriteString("\n")
		}
	}
	p.sb.WriteString("}\n")
}

// value names an operand: parameters print by name, everything else by
// arena index.
func (p *Printer) value(v ValueID) string {
	if i := p.fn.ParamByValue(v); i >= 0 {
		return p.fn.Params[i].Name
	}
	return fmt.Sprintf("v%d", v)
}

func (p *Printer) values(vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = p.value(v)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) printInstr(id ValueID, ins Instruction) {
	if HasResult(ins) {
		fmt.Fprintf(&p.sb, "v%d = ", id)
	}

	switch x := ins.(type) {
	case *Const:
		fmt.Fprintf(&p.sb, "const %s %d", p.types.String(x.Type), x.Value)
	case *Bin:
		fmt.Fprintf(&p.sb, "%s %s, %s", x.Op, p.value(x.L), p.value(x.R))
	case *Cmp:
		fmt.Fprintf(&p.sb, "cmp %s %s, %s", x.Op, p.value(x.L), p.value(x.R))
	case *Cast:
		fmt.Fprintf(&p.sb, "cast %s to %s", p.value(x.Arg), p.types.String(x.Type))
	case *GetLocal:
		fmt.Fprintf(&p.sb, "get_local %s", p.fn.Locals[x.Local].Name)
	case *GetElemPtr:
		p.sb.WriteString("get_elem_ptr ")
		p.sb.WriteString(p.value(x.Base))
		for _, step := range x.Path {
			fmt.Fprintf(&p.sb, ", %d", step)
		}
	case *Load:
		fmt.Fprintf(&p.sb, "load %s", p.value(x.Addr))
	case *Store:
		fmt.Fprintf(&p.sb, "store %s, %s", p.value(x.Val), p.value(x.Addr))
	case *MemCopyVal:
		fmt.Fprintf(&p.sb, "mem_copy_val %s, %s", p.value(x.Dst), p.value(x.Src))
	case *Call:
		fmt.Fprintf(&p.sb, "call %s(%s)", x.Callee, p.values(x.Args))
	case *Asm:
		p.printAsm(x)
	case *Br:
		fmt.Fprintf(&p.sb, "br %s", p.fn.Blocks[x.Target].Label)
	case *Cbr:
		fmt.Fprintf(&p.sb, "cbr %s, %s, %s", p.value(x.Cond), p.fn.Blocks[x.Then].Label, p.fn.Blocks[x.Else].Label)
	case *Ret:
		if x.Val == NoValue {
			p.sb.WriteString("ret")
		} else {
			fmt.Fprintf(&p.sb, "ret %s", p.value(x.Val))
		}
	case *Revert:
		fmt.Fprintf(&p.sb, "rvrt %s", p.value(x.Code))
	default:
		fmt.Fprintf(&p.sb, "<unknown %T>", ins)
	}
}

func (p *Printer) printAsm(x *Asm) {
	inputs := make([]string, len(x.Inputs))
	for i, in := range x.Inputs {
		inputs[i] = fmt.Sprintf("%s: %s", in.Name, p.value(in.Value))
	}
	fmt.Fprintf(&p.sb, "asm(%s)", strings.Join(inputs, ", "))
	if x.Result != "" {
		fmt.Fprintf(&p.sb, " -> %s %s", p.types.String(x.Type), x.Result)
	}
	p.sb.WriteString(" {\n")
	for _, op := range x.Ops {
		p.sb.WriteString("      ")
		p.sb.WriteString(op.Name)
		for _, a := range op.Args {
			p.sb.WriteString(" ")
			p.sb.WriteString(a)
		}
		p.sb.WriteString(";\n")
	}
	p.sb.WriteString("    }")
}
