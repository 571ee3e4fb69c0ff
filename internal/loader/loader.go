// Package loader reads verification programs written in YAML. Contracts
// and statements use a small s-expression syntax:
//
//	version: "1.0"
//	fields:
//	  val: Int
//	  next: Ref(Node)
//	predicates:
//	  Node:
//	    self: Ref(Node)
//	    body: (&& (acc self.val) (acc self.next) (acc (Node self.next)))
//	procedures:
//	  - name: bump
//	    locals:
//	      x: Ref(Node)
//	    blocks:
//	      - label: entry
//	        stmts:
//	          - inhale (acc (Node x))
//	          - x.val := 1
//	          - exhale (acc (Node x))
package loader

import (
	"fmt"
	"go/token"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/vir"
)

// SupportedVersions is the range of program format versions accepted.
const SupportedVersions = "^1.0"

// Program is a decoded program file.
type Program struct {
	Filename   string
	Version    *semver.Version
	Fields     map[string]vir.Type
	Predicates vir.PredicateTable
	Procedures []*cfg.Procedure
}

// Procedure returns the procedure with the given name.
func (p *Program) Procedure(name string) (*cfg.Procedure, bool) {
	for _, proc := range p.Procedures {
		if proc.Name == name {
			return proc, true
		}
	}
	return nil, false
}

// Error is a decoding error at a position of the input file.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

type fileSpec struct {
	Version    string     `yaml:"version"`
	Fields     yaml.Node  `yaml:"fields"`
	Predicates yaml.Node  `yaml:"predicates"`
	Procedures []procSpec `yaml:"procedures"`
}

type predSpec struct {
	Self string `yaml:"self"`
	Body string `yaml:"body"`
}

type procSpec struct {
	Name   string      `yaml:"name"`
	Locals yaml.Node   `yaml:"locals"`
	Blocks []blockSpec `yaml:"blocks"`
}

type blockSpec struct {
	Label string      `yaml:"label"`
	Stmts []yaml.Node `yaml:"stmts"`
	Goto  []string    `yaml:"goto"`
}

// Load reads and decodes the program file at path.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes a program. filename is used in positions only.
func Parse(filename string, data []byte) (*Program, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%s: decoding program: %w", filename, err)
	}
	d := &decoder{filename: filename}
	return d.program(&spec)
}

type decoder struct {
	filename string
}

func (d *decoder) pos(n *yaml.Node) token.Position {
	return token.Position{Filename: d.filename, Line: n.Line, Column: n.Column}
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return &Error{Pos: d.pos(n), Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) program(spec *fileSpec) (*Program, error) {
	version, err := checkVersion(spec.Version)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.filename, err)
	}
	prog := &Program{
		Filename:   d.filename,
		Version:    version,
		Fields:     make(map[string]vir.Type),
		Predicates: make(vir.PredicateTable),
	}

	err = d.eachPair(&spec.Fields, func(key, value *yaml.Node) error {
		t, err := parseType(value.Value)
		if err != nil {
			return d.errorf(value, "field %s: %v", key.Value, err)
		}
		prog.Fields[key.Value] = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := d.predicates(prog, &spec.Predicates); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for i := range spec.Procedures {
		proc, err := d.procedure(prog, &spec.Procedures[i])
		if err != nil {
			return nil, err
		}
		if seen[proc.Name] {
			return nil, fmt.Errorf("%s: duplicate procedure %q", d.filename, proc.Name)
		}
		seen[proc.Name] = true
		prog.Procedures = append(prog.Procedures, proc)
	}
	return prog, nil
}

func checkVersion(raw string) (*semver.Version, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing version, want %s", SupportedVersions)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, err
	}
	if !c.Check(v) {
		return nil, fmt.Errorf("unsupported version %s, want %s", v, SupportedVersions)
	}
	return v, nil
}

// eachPair walks a mapping node in document order. A missing node is an
// empty mapping.
func (d *decoder) eachPair(n *yaml.Node, fn func(key, value *yaml.Node) error) error {
	if n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return d.errorf(n, "expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i], n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) predicates(prog *Program, n *yaml.Node) error {
	names := make(map[string]bool)
	if err := d.eachPair(n, func(key, _ *yaml.Node) error {
		names[key.Value] = true
		return nil
	}); err != nil {
		return err
	}

	return d.eachPair(n, func(key, value *yaml.Node) error {
		var spec predSpec
		if err := value.Decode(&spec); err != nil {
			return d.errorf(value, "predicate %s: %v", key.Value, err)
		}
		selfType, err := parseType(spec.Self)
		if err != nil {
			return d.errorf(value, "predicate %s: self: %v", key.Value, err)
		}
		self := vir.LocalVar{Name: "self", Type: selfType}
		pred := &vir.Predicate{Name: key.Value, Self: self}
		if spec.Body != "" {
			p := &exprParser{scope: newScope(prog.Fields, self), preds: names}
			body, err := p.parseExpr(spec.Body)
			if err != nil {
				return d.errorf(value, "predicate %s: %v", key.Value, err)
			}
			pred.Body = body
		}
		prog.Predicates[key.Value] = pred
		return nil
	})
}

func (d *decoder) procedure(prog *Program, spec *procSpec) (*cfg.Procedure, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%s: procedure without a name", d.filename)
	}
	var locals []vir.LocalVar
	err := d.eachPair(&spec.Locals, func(key, value *yaml.Node) error {
		t, err := parseType(value.Value)
		if err != nil {
			return d.errorf(value, "local %s: %v", key.Value, err)
		}
		locals = append(locals, vir.LocalVar{Name: key.Value, Type: t})
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(prog.Predicates))
	for name := range prog.Predicates {
		names[name] = true
	}
	sp := &stmtParser{
		exprParser: exprParser{scope: newScope(prog.Fields, locals...), preds: names},
		fields:     prog.Fields,
	}

	specs := make([]cfg.BlockSpec, 0, len(spec.Blocks))
	for _, b := range spec.Blocks {
		block := cfg.BlockSpec{Label: b.Label, Succs: b.Goto}
		for i := range b.Stmts {
			n := &b.Stmts[i]
			if n.Kind != yaml.ScalarNode {
				return nil, d.errorf(n, "statement must be a string")
			}
			s, err := sp.parseStmt(n.Value, d.pos(n))
			if err != nil {
				return nil, d.errorf(n, "%s: %v", spec.Name, err)
			}
			block.Stmts = append(block.Stmts, s)
		}
		specs = append(specs, block)
	}

	proc, err := cfg.NewProcedure(spec.Name, locals, specs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.filename, err)
	}
	return proc, nil
}
