package cfg

import (
	"fmt"

	"github.com/gnolang/permcheck/internal/vir"
)

// BlockID is the declaration index of a block.
type BlockID int

// Block is a basic block.
type Block struct {
	ID    BlockID
	Label string
	Stmts []vir.Stmt
	Succs []BlockID
}

// Edge is a control transfer between two blocks.
type Edge struct {
	From BlockID
	To   BlockID
}

func (e Edge) String() string {
	return fmt.Sprintf("%d->%d", e.From, e.To)
}

// Procedure is a procedure body with its local variables.
type Procedure struct {
	Name   string
	Locals []vir.LocalVar
	Blocks []*Block
	Entry  BlockID

	preds map[BlockID][]BlockID
}

// BlockSpec describes a block by label before IDs are assigned.
type BlockSpec struct {
	Label string
	Stmts []vir.Stmt
	Succs []string
}

// NewProcedure builds a procedure from block specs. The first block is the
// entry. Successor labels must name declared blocks.
func NewProcedure(name string, locals []vir.LocalVar, specs []BlockSpec) (*Procedure, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("procedure %s has no blocks", name)
	}
	ids := make(map[string]BlockID, len(specs))
	for i, spec := range specs {
		if _, dup := ids[spec.Label]; dup {
			return nil, fmt.Errorf("procedure %s: duplicate block label %q", name, spec.Label)
		}
		ids[spec.Label] = BlockID(i)
	}

	proc := &Procedure{Name: name, Locals: locals}
	for i, spec := range specs {
		block := &Block{ID: BlockID(i), Label: spec.Label, Stmts: spec.Stmts}
		for _, succ := range spec.Succs {
			id, ok := ids[succ]
			if !ok {
				return nil, fmt.Errorf("procedure %s: block %q jumps to unknown block %q", name, spec.Label, succ)
			}
			block.Succs = append(block.Succs, id)
		}
		proc.Blocks = append(proc.Blocks, block)
	}
	proc.index()
	return proc, nil
}

func (p *Procedure) index() {
	p.preds = make(map[BlockID][]BlockID, len(p.Blocks))
	for _, b := range p.Blocks {
		for _, s := range b.Succs {
			p.preds[s] = append(p.preds[s], b.ID)
		}
	}
}

// Block returns the block with the given ID.
func (p *Procedure) Block(id BlockID) *Block {
	return p.Blocks[id]
}

// Succs returns the successors of a block in declaration order of its jumps.
func (p *Procedure) Succs(id BlockID) []BlockID {
	return p.Blocks[id].Succs
}

// Preds returns the predecessors of a block in declaration order.
func (p *Procedure) Preds(id BlockID) []BlockID {
	if p.preds == nil {
		p.index()
	}
	return p.preds[id]
}

// Edges returns every edge, ordered by source then jump order.
func (p *Procedure) Edges() []Edge {
	var out []Edge
	for _, b := range p.Blocks {
		for _, s := range b.Succs {
			out = append(out, Edge{From: b.ID, To: s})
		}
	}
	return out
}

// Reachable returns the blocks reachable from the entry.
func (p *Procedure) Reachable() map[BlockID]bool {
	seen := map[BlockID]bool{p.Entry: true}
	stack := []BlockID{p.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range p.Succs(id) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// BackEdges returns the edges that close a cycle in a depth-first traversal
// from the entry, visiting successors in jump order.
func (p *Procedure) BackEdges() map[Edge]bool {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(p.Blocks))
	back := make(map[Edge]bool)

	type frame struct {
		id   BlockID
		next int
	}
	stack := []frame{{id: p.Entry}}
	state[p.Entry] = onStack
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := p.Succs(top.id)
		if top.next == len(succs) {
			state[top.id] = done
			stack = stack[:len(stack)-1]
			continue
		}
		s := succs[top.next]
		top.next++
		switch state[s] {
		case unvisited:
			state[s] = onStack
			stack = append(stack, frame{id: s})
		case onStack:
			back[Edge{From: top.id, To: s}] = true
		}
	}
	return back
}

// LoopHeads returns the targets of back-edges.
func (p *Procedure) LoopHeads() map[BlockID]bool {
	heads := make(map[BlockID]bool)
	for e := range p.BackEdges() {
		heads[e.To] = true
	}
	return heads
}

// ForwardOrder returns the reachable blocks so that every block comes after
// all of its forward predecessors. Among ready blocks the one declared first
// wins.
func (p *Procedure) ForwardOrder() []BlockID {
	back := p.BackEdges()
	reach := p.Reachable()

	pending := make(map[BlockID]int)
	for id := range reach {
		for _, pred := range p.Preds(id) {
			if reach[pred] && !back[Edge{From: pred, To: id}] {
				pending[id]++
			}
		}
	}

	order := make([]BlockID, 0, len(reach))
	placed := make(map[BlockID]bool, len(reach))
	for len(order) < len(reach) {
		next := BlockID(-1)
		for _, b := range p.Blocks {
			if reach[b.ID] && !placed[b.ID] && pending[b.ID] == 0 {
				next = b.ID
				break
			}
		}
		if next < 0 {
			// Only possible if the forward graph had a cycle, which the
			// back-edge removal rules out.
			break
		}
		placed[next] = true
		order = append(order, next)
		for _, s := range p.Succs(next) {
			if !back[Edge{From: next, To: s}] {
				pending[s]--
			}
		}
	}
	return order
}
