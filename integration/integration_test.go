// Package integration exercises the full pipeline — JSON decode,
// intermediate graph construction, input graph conversion, and PAR — the
// way cmd/xc2par drives it, following jyane-jnes's integration/ package
// pattern of a small end-to-end fixture test sitting above the unit tests
// of the packages it composes.
package integration

import (
	"encoding/json"
	"testing"

	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/par"
	"github.com/rqou/xc2par/xc2device"
)

const singleInverterFixture = `{"modules":{"top":{
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

func TestSingleInverterEndToEnd(t *testing.T) {
	var nl netlist.JSONNetlist
	if err := json.Unmarshal([]byte(singleInverterFixture), &nl); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	ig, err := netlist.NewIntermediateGraph(&nl)
	if err != nil {
		t.Fatalf("NewIntermediateGraph: %v", err)
	}

	dev := xc2device.XC2C32A
	g, err := par.FromIntermediate(ig, dev)
	if err != nil {
		t.Fatalf("FromIntermediate: %v", err)
	}

	if sanity := par.DoSanityCheck(g, dev); sanity != par.SanityOk {
		t.Fatalf("DoSanityCheck = %v, want Ok", sanity)
	}

	res := par.Run(g, dev)
	if res.Kind != par.Success {
		t.Fatalf("Run = %+v, want Success", res)
	}

	seated := 0
	for _, h := range g.MCs.Handles() {
		if g.MCs.Get(h).Loc != nil {
			seated++
		}
	}
	if seated != g.MCs.Len() {
		t.Fatalf("%d of %d macrocells were seated, want all of them", seated, g.MCs.Len())
	}
}
