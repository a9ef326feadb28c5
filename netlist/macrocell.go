package netlist

import (
	"fmt"

	"github.com/rqou/xc2par/objpool"
)

// Macrocell is the closed set of classifications a macrocell-shaped node
// (an Xor, a Reg, an IOBuf, or an InBuf) can fall into (spec.md §3
// "Macrocell classification").
type Macrocell interface {
	isMacrocell()
}

// PinOutput wraps an IOBuf node driving a pad.
type PinOutput struct{ Node objpool.Handle }

func (PinOutput) isMacrocell() {}

// PinInputUnreg wraps an InBuf node feeding combinational logic only.
type PinInputUnreg struct{ Node objpool.Handle }

func (PinInputUnreg) isMacrocell() {}

// PinInputReg wraps an InBuf node feeding a register.
type PinInputReg struct{ Node objpool.Handle }

func (PinInputReg) isMacrocell() {}

// BuriedComb wraps an Xor node with no register consumer.
type BuriedComb struct{ Node objpool.Handle }

func (BuriedComb) isMacrocell() {}

// BuriedReg wraps a Reg node fed by an Xor with no pin, with HasCombFB set
// when the driving Xor's output has sinks besides that Reg.
type BuriedReg struct {
	Node      objpool.Handle
	HasCombFB bool
}

func (BuriedReg) isMacrocell() {}

// GatherMacrocells classifies every macrocell-shaped node in g, in the
// four-pass order spec.md §4.3 requires: PinOutput, then
// BuriedComb/BuriedReg, then PinInputReg, then PinInputUnreg. Later
// placement code relies on this exact order (greedy seating processes
// macrocells in gather order, spec.md §4.5).
func GatherMacrocells(g *Graph) ([]Macrocell, error) {
	var ret []Macrocell
	encounteredXors := map[objpool.Handle]bool{}

	// Pass 1: IOBUFs.
	for _, nodeIdx := range g.Nodes.Handles() {
		node := g.Nodes.Get(nodeIdx)
		io, ok := node.Variant.(IOBuf)
		if !ok {
			continue
		}
		ret = append(ret, PinOutput{Node: nodeIdx})

		if io.Input == nil {
			continue
		}
		src := g.Nets.Get(*io.Input).Source
		if src == nil {
			return nil, fmt.Errorf("%w: IOBuf %s input net has no driver", ErrBadShape, node.Name)
		}
		driver := g.Nodes.Get(src.Node)
		switch dv := driver.Variant.(type) {
		case Xor:
			// Combinatorial output.
			encounteredXors[src.Node] = true
		case Reg:
			// Registered output: look at what drives the register's D/T.
			regSrc := g.Nets.Get(dv.DTInput).Source
			if regSrc == nil {
				return nil, fmt.Errorf("%w: register %s data input has no driver", ErrBadShape, driver.Name)
			}
			regDriver := g.Nodes.Get(regSrc.Node)
			switch regDriver.Variant.(type) {
			case Xor:
				encounteredXors[regSrc.Node] = true
			case IOBuf:
				if nodeIdx != regSrc.Node {
					return nil, fmt.Errorf("%w: IOBuf %s feeds a register whose data input comes from a different IOBuf", ErrBadShape, node.Name)
				}
				// Feedback-only; nothing to remember.
			default:
				return nil, fmt.Errorf("%w: IOBuf %s registered path does not terminate in an Xor or feedback", ErrBadShape, node.Name)
			}
		default:
			return nil, fmt.Errorf("%w: IOBuf %s input is driven by neither an Xor nor a Reg", ErrBadShape, node.Name)
		}
	}

	// Pass 2: buried macrocells.
	for _, nodeIdx := range g.Nodes.Handles() {
		node := g.Nodes.Get(nodeIdx)
		xor, ok := node.Variant.(Xor)
		if !ok || encounteredXors[nodeIdx] {
			continue
		}

		var regIdx *objpool.Handle
		sinks := g.Nets.Get(xor.Output).Sinks
		for _, sink := range sinks {
			if _, ok := g.Nodes.Get(sink.Node).Variant.(Reg); ok {
				idx := sink.Node
				regIdx = &idx
			}
		}

		if regIdx == nil {
			ret = append(ret, BuriedComb{Node: nodeIdx})
		} else {
			ret = append(ret, BuriedReg{Node: *regIdx, HasCombFB: len(sinks) > 1})
		}
	}

	// Pass 3: registered IBUFs.
	for _, nodeIdx := range g.Nodes.Handles() {
		node := g.Nodes.Get(nodeIdx)
		in, ok := node.Variant.(InBuf)
		if !ok {
			continue
		}
		if drivesReg(g, in.Output) {
			ret = append(ret, PinInputReg{Node: nodeIdx})
		}
	}

	// Pass 4: unregistered IBUFs.
	for _, nodeIdx := range g.Nodes.Handles() {
		node := g.Nodes.Get(nodeIdx)
		in, ok := node.Variant.(InBuf)
		if !ok {
			continue
		}
		if !drivesReg(g, in.Output) {
			ret = append(ret, PinInputUnreg{Node: nodeIdx})
		}
	}

	return ret, nil
}

func drivesReg(g *Graph, net objpool.Handle) bool {
	for _, sink := range g.Nets.Get(net).Sinks {
		if _, ok := g.Nodes.Get(sink.Node).Variant.(Reg); ok {
			return true
		}
	}
	return false
}
