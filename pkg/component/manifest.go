package component

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// manifestVersion is the schema version every serialized document carries.
// Loaders reject a mismatch with ErrManifestMalformed.
const manifestVersion = 1

type argDoc struct {
	Kind  string   `yaml:"kind"`
	Width int      `yaml:"width,omitempty"`
	IVal  int64    `yaml:"ival,omitempty"`
	FVal  float64  `yaml:"fval,omitempty"`
	Name  string   `yaml:"name,omitempty"`
	Elems []argDoc `yaml:"elems,omitempty"`
}

func toArgDoc(a ConcreteArgument) argDoc {
	switch a.Kind {
	case ArgInt:
		return argDoc{Kind: "int", Width: a.IntWidth, IVal: a.IntVal}
	case ArgFloat:
		return argDoc{Kind: "float", Width: a.FloatWidth, FVal: a.FloatVal}
	case ArgNull:
		return argDoc{Kind: "null"}
	case ArgUndef:
		return argDoc{Kind: "undef"}
	case ArgGlobal:
		return argDoc{Kind: "global", Name: a.GlobalName}
	case ArgAggregate:
		elems := make([]argDoc, len(a.AggregateElems))
		for i, e := range a.AggregateElems {
			elems[i] = toArgDoc(e)
		}
		return argDoc{Kind: "aggregate", Elems: elems}
	default:
		return argDoc{Kind: "unknown"}
	}
}

func fromArgDoc(d argDoc) (ConcreteArgument, error) {
	switch d.Kind {
	case "int":
		return Int(d.Width, d.IVal), nil
	case "float":
		return Float(d.Width, d.FVal), nil
	case "null":
		return Null(), nil
	case "undef":
		return Undef(), nil
	case "global":
		return Global(d.Name), nil
	case "aggregate":
		elems := make([]ConcreteArgument, len(d.Elems))
		for i, e := range d.Elems {
			ca, err := fromArgDoc(e)
			if err != nil {
				return ConcreteArgument{}, err
			}
			elems[i] = ca
		}
		return Aggregate(elems...), nil
	case "unknown", "":
		return Unknown(), nil
	default:
		return ConcreteArgument{}, fmt.Errorf("manifest: unrecognized argument kind %q: %w", d.Kind, ErrManifestMalformed)
	}
}

type callInfoDoc struct {
	Callee string   `yaml:"callee"`
	Args   []argDoc `yaml:"args"`
}

type interfaceDoc struct {
	Version    int                      `yaml:"version"`
	Calls      map[string][]callInfoDoc `yaml:"calls"`
	References []string                 `yaml:"references"`
}

type rewriteDoc struct {
	Witness []argDoc `yaml:"witness"`
	Target  string   `yaml:"target"`
	ArgPerm []int    `yaml:"argPerm"`
}

type transformDoc struct {
	Version  int                     `yaml:"version"`
	Iface    interfaceDoc            `yaml:"interface"`
	Rewrites map[string][]rewriteDoc `yaml:"rewrites"`
}

func toInterfaceDoc(ci *ComponentInterface) interfaceDoc {
	doc := interfaceDoc{Version: manifestVersion, Calls: make(map[string][]callInfoDoc)}
	for _, callee := range ci.CalledNames() {
		for _, c := range ci.Calls[callee] {
			args := make([]argDoc, len(c.Args))
			for i, a := range c.Args {
				args[i] = toArgDoc(a)
			}
			doc.Calls[callee] = append(doc.Calls[callee], callInfoDoc{Callee: c.Callee, Args: args})
		}
	}
	for name := range ci.References {
		doc.References = append(doc.References, name)
	}
	return doc
}

func fromInterfaceDoc(doc interfaceDoc) (*ComponentInterface, error) {
	if doc.Version != manifestVersion {
		return nil, fmt.Errorf("manifest: interface version %d, want %d: %w", doc.Version, manifestVersion, ErrManifestMalformed)
	}
	ci := NewInterface()
	for callee, infos := range doc.Calls {
		for _, info := range infos {
			args := make([]ConcreteArgument, len(info.Args))
			for i, ad := range info.Args {
				a, err := fromArgDoc(ad)
				if err != nil {
					return nil, err
				}
				args[i] = a
			}
			ci.RecordCall(CallInfo{Callee: callee, Args: args})
		}
	}
	for _, name := range doc.References {
		ci.RecordReference(name)
	}
	return ci, nil
}

// LoadInterface parses a single interface manifest file. On a malformed or
// version-mismatched document it returns ErrManifestMalformed (wrapped);
// callers treat that as "this pass becomes inert".
func LoadInterface(path string) (*ComponentInterface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load interface %s: %w", path, ErrManifestMalformed)
	}
	var doc interfaceDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("load interface %s: %w", path, ErrManifestMalformed)
	}
	return fromInterfaceDoc(doc)
}

// LoadInterfaces loads every path concurrently (bounded by NumCPU) and
// merges the results into one interface. A single malformed file is skipped
// rather than aborting the whole load.
func LoadInterfaces(ctx context.Context, paths []string) (*ComponentInterface, error) {
	results := make([]*ComponentInterface, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			ci, err := LoadInterface(p)
			if err != nil {
				return nil // malformed file: skip, do not fail the whole load
			}
			results[i] = ci
			return nil
		})
	}
	_ = g.Wait() // per-file errors are already swallowed above

	merged := NewInterface()
	for _, ci := range results {
		if ci != nil {
			merged.Merge(ci)
		}
	}
	return merged, nil
}

// StoreInterface serializes ci to path as YAML.
func StoreInterface(path string, ci *ComponentInterface) error {
	data, err := yaml.Marshal(toInterfaceDoc(ci))
	if err != nil {
		return fmt.Errorf("store interface %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadTransform parses a single rewrite-manifest file. On failure it
// returns (nil, err) rather than a partially populated transform, so
// downstream passes become no-ops.
func LoadTransform(path string) (*ComponentInterfaceTransform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load transform %s: %w", path, ErrManifestMalformed)
	}
	var doc transformDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("load transform %s: %w", path, ErrManifestMalformed)
	}
	if doc.Version != manifestVersion {
		return nil, fmt.Errorf("load transform %s: version %d, want %d: %w", path, doc.Version, manifestVersion, ErrManifestMalformed)
	}
	iface, err := fromInterfaceDoc(doc.Iface)
	if err != nil {
		return nil, err
	}
	t := NewTransform()
	t.Iface = iface
	for fn, rewrites := range doc.Rewrites {
		for _, rd := range rewrites {
			witness := make([]ConcreteArgument, len(rd.Witness))
			for i, wd := range rd.Witness {
				w, err := fromArgDoc(wd)
				if err != nil {
					return nil, err
				}
				witness[i] = w
			}
			t.RecordRewrite(CallRewrite{Function: fn, Witness: witness, Target: rd.Target, ArgPerm: rd.ArgPerm})
		}
	}
	return t, nil
}

// LoadTransforms loads every path concurrently and merges the rewrites in
// path order, so earlier files take priority under LookupRewrite's
// first-match-wins rule.
func LoadTransforms(ctx context.Context, paths []string) (*ComponentInterfaceTransform, error) {
	results := make([]*ComponentInterfaceTransform, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			t, err := LoadTransform(p)
			if err != nil {
				return nil
			}
			results[i] = t
			return nil
		})
	}
	_ = g.Wait()

	merged := NewTransform()
	for _, t := range results {
		if t != nil {
			merged.Merge(t)
		}
	}
	return merged, nil
}

// StoreTransform serializes t to path as YAML.
func StoreTransform(path string, iface *ComponentInterface, t *ComponentInterfaceTransform) error {
	doc := transformDoc{Version: manifestVersion, Rewrites: make(map[string][]rewriteDoc)}
	if iface != nil {
		doc.Iface = toInterfaceDoc(iface)
	}
	for _, r := range t.Rewrites {
		witness := make([]argDoc, len(r.Witness))
		for i, w := range r.Witness {
			witness[i] = toArgDoc(w)
		}
		doc.Rewrites[r.Function] = append(doc.Rewrites[r.Function], rewriteDoc{Witness: witness, Target: r.Target, ArgPerm: r.ArgPerm})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store transform %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
