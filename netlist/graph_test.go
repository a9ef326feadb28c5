package netlist

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeNetlist(t *testing.T, src string) *JSONNetlist {
	t.Helper()
	var nl JSONNetlist
	if err := json.Unmarshal([]byte(src), &nl); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	return &nl
}

func TestNoTopModuleFails(t *testing.T) {
	nl := decodeNetlist(t, `{"modules":{"top":{"attributes":{},"ports":{},"cells":{},"netnames":{}}}}`)
	_, err := NewIntermediateGraph(nl)
	if !errors.Is(err, ErrNoTop) {
		t.Fatalf("err = %v, want ErrNoTop", err)
	}
}

func TestMultipleTopModulesFails(t *testing.T) {
	nl := decodeNetlist(t, `{"modules":{
		"a":{"attributes":{"top":1},"ports":{},"cells":{},"netnames":{}},
		"b":{"attributes":{"top":1},"ports":{},"cells":{},"netnames":{}}
	}}`)
	_, err := NewIntermediateGraph(nl)
	if !errors.Is(err, ErrMultipleTop) {
		t.Fatalf("err = %v, want ErrMultipleTop", err)
	}
}

func TestMultiDriverFails(t *testing.T) {
	nl := decodeNetlist(t, `{"modules":{"top":{
		"attributes":{"top":1},
		"ports":{},
		"cells":{
			"u1":{"type":"IBUF","parameters":{},"connections":{"O":[1]}},
			"u2":{"type":"IBUF","parameters":{},"connections":{"O":[1]}}
		},
		"netnames":{}
	}}}`)
	_, err := NewIntermediateGraph(nl)
	if !errors.Is(err, ErrMultiDriver) {
		t.Fatalf("err = %v, want ErrMultiDriver", err)
	}
}

func TestUndrivenNetFails(t *testing.T) {
	nl := decodeNetlist(t, `{"modules":{"top":{
		"attributes":{"top":1},
		"ports":{},
		"cells":{
			"u1":{"type":"ORTERM","parameters":{"WIDTH":1},"connections":{"IN":[1],"OUT":[2]}}
		},
		"netnames":{}
	}}}`)
	_, err := NewIntermediateGraph(nl)
	if !errors.Is(err, ErrUndriven) {
		t.Fatalf("err = %v, want ErrUndriven", err)
	}
}

func TestUnsupportedCellFails(t *testing.T) {
	nl := decodeNetlist(t, `{"modules":{"top":{
		"attributes":{"top":1},
		"ports":{},
		"cells":{
			"u1":{"type":"NOT_A_REAL_CELL","parameters":{},"connections":{}}
		},
		"netnames":{}
	}}}`)
	_, err := NewIntermediateGraph(nl)
	if !errors.Is(err, ErrUnsupportedCell) {
		t.Fatalf("err = %v, want ErrUnsupportedCell", err)
	}
}

// singleInverterNetlist is the spec.md §8 scenario 2 fixture: one IBuf
// feeding an AndTerm (complement polarity) into an OrTerm into an Xor
// into an IOBuf's pad driver.
const singleInverterNetlist = `{"modules":{"top":{
	"attributes":{"top":1},
	"ports":{},
	"cells":{
		"uibuf":{"type":"IBUF","parameters":{},"connections":{"O":[1]}},
		"uand":{"type":"ANDTERM","parameters":{"TRUE_INP":0,"COMP_INP":1},"connections":{"IN":[],"IN_B":[1],"OUT":[2]}},
		"uor":{"type":"ORTERM","parameters":{"WIDTH":1},"connections":{"IN":[2],"OUT":[3]}},
		"uxor":{"type":"MACROCELL_XOR","parameters":{"INVERT_OUT":0},"connections":{"IN_ORTERM":[3],"OUT":[4]}},
		"uiobuf":{"type":"IOBUFE","parameters":{},"connections":{"I":[4]}}
	},
	"netnames":{}
}}}`

func TestSingleInverterGatherOrder(t *testing.T) {
	nl := decodeNetlist(t, singleInverterNetlist)
	g, err := NewIntermediateGraph(nl)
	if err != nil {
		t.Fatalf("NewIntermediateGraph: %v", err)
	}

	mcells, err := GatherMacrocells(g)
	if err != nil {
		t.Fatalf("GatherMacrocells: %v", err)
	}
	// The Xor driving the IOBuf's pad combinatorially is "remembered" in
	// pass 1 and never separately emitted in pass 2 — it is the same
	// physical macrocell as the PinOutput, not a second one.
	if len(mcells) != 2 {
		t.Fatalf("len(mcells) = %d, want 2 (IOBuf+Xor combined, IBuf)", len(mcells))
	}
	if _, ok := mcells[0].(PinOutput); !ok {
		t.Fatalf("mcells[0] = %T, want PinOutput (pass 1 runs first)", mcells[0])
	}
	if _, ok := mcells[1].(PinInputUnreg); !ok {
		t.Fatalf("mcells[1] = %T, want PinInputUnreg (pass 4 runs last)", mcells[1])
	}

	andNode := findNodeByName(g, "uand")
	and := andNode.Variant.(AndTerm)
	if len(and.InputsComp) != 1 {
		t.Fatalf("uand.InputsComp has %d entries, want 1", len(and.InputsComp))
	}
	faninNet := g.Nets.Get(and.InputsComp[0])
	if faninNet.Source == nil {
		t.Fatalf("ANDTERM fanin net has no driver")
	}
	if _, ok := g.Nodes.Get(faninNet.Source.Node).Variant.(ZiaDummyBuf); !ok {
		t.Fatalf("ANDTERM fanin was not interposed with a ZiaDummyBuf")
	}
}

func findNodeByName(g *Graph, name string) *Node {
	for _, h := range g.Nodes.Handles() {
		n := g.Nodes.Get(h)
		if n.Name == name {
			return n
		}
	}
	return nil
}
