// # Description
//
// Package cfg provides the control flow graph (CFG) of a procedure in the
// verification IR.
//
// ## Control Flow Graph (CFG)
//
// A procedure body is a list of basic blocks in declaration order. Each block
// holds straight-line statements and names the blocks control may continue
// to. A block without successors returns from the procedure.
//
// ## Package Functionality
//
//  1. Construction: `NewProcedure` validates successor labels and indexes blocks.
//  2. Traversal: `Preds`, `Succs`, `BackEdges` and `ForwardOrder` give the
//     deterministic order used by the fold/unfold fixed point: blocks in
//     declaration order, each after all of its forward predecessors, with
//     loop back-edges resolved last.
//  3. Output: `PrintDot` renders the graph for GraphViz.
package cfg
