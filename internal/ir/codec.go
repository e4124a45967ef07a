package ir

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// An embedding compiler owns a module's real on-disk format; cmd/previrt
// still needs some way to round-trip a module for standalone runs outside a
// live compiler pipeline, so this codec provides a textual fallback. The
// format is a convenience, not a contract.

type valueDoc struct {
	Kind  string     `yaml:"kind"`
	Width int        `yaml:"width,omitempty"`
	IVal  int64      `yaml:"ival,omitempty"`
	FVal  float64    `yaml:"fval,omitempty"`
	Name  string     `yaml:"name,omitempty"`
	Index int        `yaml:"index,omitempty"`
	Type  typeDoc    `yaml:"type"`
	Elems []valueDoc `yaml:"elems,omitempty"`
}

type typeDoc struct {
	Name string   `yaml:"name,omitempty"`
	Elem *typeDoc `yaml:"elem,omitempty"`
	Sig  *sigDoc  `yaml:"sig,omitempty"`
}

type sigDoc struct {
	Params   []typeDoc `yaml:"params,omitempty"`
	Result   typeDoc   `yaml:"result"`
	Variadic bool      `yaml:"variadic,omitempty"`
}

func toTypeDoc(t Type) typeDoc {
	d := typeDoc{Name: t.Name}
	if t.Elem != nil {
		e := toTypeDoc(*t.Elem)
		d.Elem = &e
	}
	if t.Sig != nil {
		d.Sig = toSigDoc(*t.Sig)
	}
	return d
}

func toSigDoc(s Signature) *sigDoc {
	sd := &sigDoc{Result: toTypeDoc(s.Result), Variadic: s.Variadic}
	sd.Params = make([]typeDoc, len(s.Params))
	for i, p := range s.Params {
		sd.Params[i] = toTypeDoc(p)
	}
	return sd
}

func fromTypeDoc(d typeDoc) Type {
	t := Type{Name: d.Name}
	if d.Elem != nil {
		e := fromTypeDoc(*d.Elem)
		t.Elem = &e
	}
	if d.Sig != nil {
		t.Sig = fromSigDoc(d.Sig)
	}
	return t
}

func fromSigDoc(d *sigDoc) *Signature {
	s := &Signature{Result: fromTypeDoc(d.Result), Variadic: d.Variadic}
	s.Params = make([]Type, len(d.Params))
	for i, p := range d.Params {
		s.Params[i] = fromTypeDoc(p)
	}
	return s
}

func toValueDoc(v Value) valueDoc {
	if v == nil {
		return valueDoc{Kind: "none"}
	}
	switch val := v.(type) {
	case ConstInt:
		return valueDoc{Kind: "int", Width: val.Width, IVal: val.Val}
	case ConstFloat:
		return valueDoc{Kind: "float", Width: val.Width, FVal: val.Val}
	case ConstNull:
		return valueDoc{Kind: "null", Type: toTypeDoc(val.PtrType)}
	case ConstUndef:
		return valueDoc{Kind: "undef", Type: toTypeDoc(val.T)}
	case GlobalRef:
		return valueDoc{Kind: "global", Name: val.Name, Type: toTypeDoc(val.T)}
	case ConstAggregate:
		elems := make([]valueDoc, len(val.Elems))
		for i, e := range val.Elems {
			elems[i] = toValueDoc(e)
		}
		return valueDoc{Kind: "aggregate", Type: toTypeDoc(val.T), Elems: elems}
	case ParamRef:
		return valueDoc{Kind: "param", Index: val.Index, Name: val.Name, Type: toTypeDoc(val.T)}
	case InstrRef:
		return valueDoc{Kind: "instr", Name: val.Name, Type: toTypeDoc(val.T)}
	default:
		return valueDoc{Kind: "none"}
	}
}

func fromValueDoc(d valueDoc) Value {
	switch d.Kind {
	case "int":
		return ConstInt{Width: d.Width, Val: d.IVal}
	case "float":
		return ConstFloat{Width: d.Width, Val: d.FVal}
	case "null":
		return ConstNull{PtrType: fromTypeDoc(d.Type)}
	case "undef":
		return ConstUndef{T: fromTypeDoc(d.Type)}
	case "global":
		return GlobalRef{Name: d.Name, T: fromTypeDoc(d.Type)}
	case "aggregate":
		elems := make([]Value, len(d.Elems))
		for i, e := range d.Elems {
			elems[i] = fromValueDoc(e)
		}
		return ConstAggregate{T: fromTypeDoc(d.Type), Elems: elems}
	case "param":
		return ParamRef{Index: d.Index, Name: d.Name, T: fromTypeDoc(d.Type)}
	case "instr":
		return InstrRef{Name: d.Name, T: fromTypeDoc(d.Type)}
	default:
		return nil
	}
}

type instrDoc struct {
	Op       string     `yaml:"op"`
	Name     string     `yaml:"name,omitempty"`
	Type     typeDoc    `yaml:"type"`
	Callee   *valueDoc  `yaml:"callee,omitempty"`
	Args     []valueDoc `yaml:"args,omitempty"`
	CallConv string     `yaml:"callConv,omitempty"`
	Attrs    []string   `yaml:"attrs,omitempty"`
	DebugLoc string     `yaml:"debugLoc,omitempty"`
	Invoke   *invokeDoc `yaml:"invoke,omitempty"`
	Cond     *valueDoc  `yaml:"cond,omitempty"`
	Targets  []string   `yaml:"targets,omitempty"`
	RetVal   *valueDoc  `yaml:"retVal,omitempty"`
	Operands []valueDoc `yaml:"operands,omitempty"`
}

type invokeDoc struct {
	Normal string `yaml:"normal"`
	Unwind string `yaml:"unwind"`
}

func toInstrDoc(i *Instruction) instrDoc {
	d := instrDoc{Op: string(i.Op), Name: i.Name, Type: toTypeDoc(i.Type), CallConv: i.CallConv,
		Attrs: i.Attrs, DebugLoc: i.DebugLoc, Targets: i.Targets}
	if i.Callee != nil {
		v := toValueDoc(i.Callee)
		d.Callee = &v
	}
	for _, a := range i.Args {
		d.Args = append(d.Args, toValueDoc(a))
	}
	if i.Invoke != nil {
		d.Invoke = &invokeDoc{Normal: i.Invoke.Normal, Unwind: i.Invoke.Unwind}
	}
	if i.Cond != nil {
		v := toValueDoc(i.Cond)
		d.Cond = &v
	}
	if i.RetVal != nil {
		v := toValueDoc(i.RetVal)
		d.RetVal = &v
	}
	for _, o := range i.Operands {
		d.Operands = append(d.Operands, toValueDoc(o))
	}
	return d
}

func fromInstrDoc(d instrDoc) *Instruction {
	i := &Instruction{Op: Opcode(d.Op), Name: d.Name, Type: fromTypeDoc(d.Type), CallConv: d.CallConv,
		Attrs: d.Attrs, DebugLoc: d.DebugLoc, Targets: d.Targets}
	if d.Callee != nil {
		i.Callee = fromValueDoc(*d.Callee)
	}
	for _, a := range d.Args {
		i.Args = append(i.Args, fromValueDoc(a))
	}
	if d.Invoke != nil {
		i.Invoke = &InvokeEdges{Normal: d.Invoke.Normal, Unwind: d.Invoke.Unwind}
	}
	if d.Cond != nil {
		i.Cond = fromValueDoc(*d.Cond)
	}
	if d.RetVal != nil {
		i.RetVal = fromValueDoc(*d.RetVal)
	}
	for _, o := range d.Operands {
		i.Operands = append(i.Operands, fromValueDoc(o))
	}
	return i
}

type blockDoc struct {
	Name   string     `yaml:"name"`
	Instrs []instrDoc `yaml:"instrs"`
}

type paramDoc struct {
	Name string  `yaml:"name"`
	Type typeDoc `yaml:"type"`
}

type functionDoc struct {
	Name      string     `yaml:"name"`
	Params    []paramDoc `yaml:"params,omitempty"`
	Result    typeDoc    `yaml:"result"`
	Variadic  bool       `yaml:"variadic,omitempty"`
	Intrinsic bool       `yaml:"intrinsic,omitempty"`
	Linkage   string     `yaml:"linkage"`
	Blocks    []blockDoc `yaml:"blocks,omitempty"`
}

type globalDoc struct {
	Name           string    `yaml:"name"`
	Type           typeDoc   `yaml:"type"`
	Linkage        string    `yaml:"linkage"`
	HasInitializer bool      `yaml:"hasInitializer,omitempty"`
	Initializer    *valueDoc `yaml:"initializer,omitempty"`
}

type aliasDoc struct {
	Name    string `yaml:"name"`
	Aliasee string `yaml:"aliasee"`
	Linkage string `yaml:"linkage"`
}

type moduleDoc struct {
	Name      string        `yaml:"name"`
	Functions []functionDoc `yaml:"functions,omitempty"`
	Globals   []globalDoc   `yaml:"globals,omitempty"`
	Aliases   []aliasDoc    `yaml:"aliases,omitempty"`
}

var linkageNames = map[Linkage]string{
	External: "external", Internal: "internal", ExternalWeak: "external-weak",
	WeakODR: "weak-odr", Appending: "appending", OtherLinkage: "other",
}

var linkageValues = map[string]Linkage{
	"external": External, "internal": Internal, "external-weak": ExternalWeak,
	"weak-odr": WeakODR, "appending": Appending, "other": OtherLinkage,
}

// StoreModule serializes m to path as YAML.
func StoreModule(path string, m *Module) error {
	doc := moduleDoc{Name: m.Name}
	for _, f := range m.OrderedFunctions() {
		fd := functionDoc{Name: f.Name, Result: toTypeDoc(f.Result), Variadic: f.Variadic, Intrinsic: f.Intrinsic, Linkage: linkageNames[f.Linkage]}
		for _, p := range f.Params {
			fd.Params = append(fd.Params, paramDoc{Name: p.Name, Type: toTypeDoc(p.Type)})
		}
		for _, b := range f.Blocks {
			bd := blockDoc{Name: b.Name}
			for _, i := range b.Instrs {
				bd.Instrs = append(bd.Instrs, toInstrDoc(i))
			}
			fd.Blocks = append(fd.Blocks, bd)
		}
		doc.Functions = append(doc.Functions, fd)
	}
	for _, g := range m.OrderedGlobals() {
		gd := globalDoc{Name: g.Name, Type: toTypeDoc(g.Type), Linkage: linkageNames[g.Linkage], HasInitializer: g.HasInitializer}
		if g.Initializer != nil {
			v := toValueDoc(g.Initializer)
			gd.Initializer = &v
		}
		doc.Globals = append(doc.Globals, gd)
	}
	for _, name := range m.AliasOrder {
		a := m.Aliases[name]
		doc.Aliases = append(doc.Aliases, aliasDoc{Name: a.Name, Aliasee: a.Aliasee, Linkage: linkageNames[a.Linkage]})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store module %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadModule parses a module previously written by StoreModule.
func LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", path, err)
	}
	var doc moduleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("load module %s: %w", path, err)
	}

	m := NewModule(doc.Name)
	for _, fd := range doc.Functions {
		f := &Function{Name: fd.Name, Result: fromTypeDoc(fd.Result), Variadic: fd.Variadic, Intrinsic: fd.Intrinsic, Linkage: linkageValues[fd.Linkage]}
		for _, pd := range fd.Params {
			f.Params = append(f.Params, Param{Name: pd.Name, Type: fromTypeDoc(pd.Type)})
		}
		for _, bd := range fd.Blocks {
			b := &BasicBlock{Name: bd.Name}
			for _, id := range bd.Instrs {
				b.Instrs = append(b.Instrs, fromInstrDoc(id))
			}
			f.Blocks = append(f.Blocks, b)
		}
		m.AddFunction(f)
	}
	for _, gd := range doc.Globals {
		g := &Global{Name: gd.Name, Type: fromTypeDoc(gd.Type), Linkage: linkageValues[gd.Linkage], HasInitializer: gd.HasInitializer}
		if gd.Initializer != nil {
			g.Initializer = fromValueDoc(*gd.Initializer)
		}
		m.AddGlobal(g)
	}
	for _, ad := range doc.Aliases {
		m.AddAlias(&Alias{Name: ad.Name, Aliasee: ad.Aliasee, Linkage: linkageValues[ad.Linkage]})
	}
	return m, nil
}
