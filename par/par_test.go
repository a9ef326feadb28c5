package par

import (
	"testing"

	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

func emptyGraph() *InputGraph {
	return &InputGraph{
		Dev:      xc2device.XC2C32A,
		MCs:      objpool.New[Macrocell](),
		PTerms:   objpool.New[PTerm](),
		BufgClks: objpool.New[BufgClk](),
		BufgGTSs: objpool.New[BufgGTS](),
		BufgGSRs: objpool.New[BufgGSR](),
	}
}

func intPtr(i int) *int { return &i }

// pinInputCapacity is how many pin-input macrocells the device can seat:
// one per (FB, slot) pair plus the dedicated-input pad.
func pinInputCapacity(dev xc2device.Device) int {
	return xc2device.NumFunctionBlocks(dev)*xc2device.MCSPerFB(dev) + 1
}

// addSaturatingFanins builds a design whose single combinatorial
// macrocell's product term needs n distinct ZIA fanins, mixing pin
// inputs and buried feedback sources so the design still seats. Returns
// the consuming macrocell.
func addSaturatingFanins(g *InputGraph, dev xc2device.Device, n int) objpool.Handle {
	numPins := pinInputCapacity(dev)
	if numPins > n {
		numPins = n
	}
	var inputs []PTermInput
	for i := 0; i < numPins; i++ {
		h := g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, IO: &IOFacet{}})
		inputs = append(inputs, PTermInput{Kind: PTermInputPin, MC: h})
	}
	for i := numPins; i < n; i++ {
		h := g.MCs.Insert(Macrocell{Type: TypeBuriedComb})
		inputs = append(inputs, PTermInput{Kind: PTermInputXor, MC: h})
	}
	pt := g.PTerms.Insert(PTerm{InputsTrue: inputs})
	return g.MCs.Insert(Macrocell{Type: TypeBuriedComb, Xor: &XorFacet{OrTermInputs: []objpool.Handle{pt}}})
}

// Scenario 1 (spec.md §8): an empty design passes sanity and PAR
// succeeds trivially, placing nothing.
func TestEmptyDesignSucceeds(t *testing.T) {
	g := emptyGraph()
	dev := xc2device.XC2C32A

	if r := DoSanityCheck(g, dev); r != SanityOk {
		t.Fatalf("DoSanityCheck = %v, want Ok", r)
	}

	res := Run(g, dev)
	if res.Kind != Success {
		t.Fatalf("Run = %+v, want Success", res)
	}
	if len(res.FBs) != xc2device.NumFunctionBlocks(dev) {
		t.Fatalf("len(res.FBs) = %d, want one per function block", len(res.FBs))
	}
	for fb, fbres := range res.FBs {
		for row, sig := range fbres.ZIA {
			if sig != xc2device.One {
				t.Fatalf("FB %d row %d = %v, want the open sentinel for an empty design", fb, row, sig)
			}
		}
	}
}

// Scenario 2 (spec.md §8): a single inverter's macrocell seats into FB 0
// slot 0's non-pin-input column, the IBuf pairs into a pin-input column,
// and exactly one ZIA row carries the IBuf's signal once the FB packs.
func TestSingleInverterPlacesAndRoutes(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	ibuf := g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, IO: &IOFacet{}})
	pt := g.PTerms.Insert(PTerm{InputsComp: []PTermInput{{Kind: PTermInputPin, MC: ibuf}}})
	comb := g.MCs.Insert(Macrocell{
		Type: TypeBuriedComb,
		Xor:  &XorFacet{OrTermInputs: []objpool.Handle{pt}},
	})

	res := Run(g, dev)
	if res.Kind != Success {
		t.Fatalf("Run = %+v, want Success", res)
	}

	combMC := g.MCs.Get(comb)
	if combMC.Loc == nil || combMC.Loc.FB != 0 || combMC.Loc.I != 0 {
		t.Fatalf("combinational macrocell at %+v, want FB 0 slot 0", combMC.Loc)
	}
	ibufMC := g.MCs.Get(ibuf)
	if ibufMC.Loc == nil {
		t.Fatalf("IBuf macrocell has no assigned location")
	}

	routedPT := g.PTerms.Get(pt)
	if routedPT.Loc == nil {
		t.Fatalf("product term was not packed into any FB")
	}
	if len(routedPT.InputsCompZIA) != 1 {
		t.Fatalf("expected exactly one ZIA row for the inverter's single fanin, got %d", len(routedPT.InputsCompZIA))
	}
	row := routedPT.InputsCompZIA[0]
	want := xc2device.IBufInput(0)
	found := false
	for _, sig := range xc2device.ZiaTableGetRow(dev, row) {
		if sig == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("ZIA row %d does not carry the IBuf signal %v", row, want)
	}

	nonSentinel := 0
	for _, fbres := range res.FBs {
		for _, sig := range fbres.ZIA {
			if sig != xc2device.One {
				nonSentinel++
			}
		}
	}
	if nonSentinel != 1 {
		t.Fatalf("%d non-sentinel ZIA rows across the device, want exactly 1", nonSentinel)
	}
}

// Scenario 3 (spec.md §8): two macrocells both requesting the same exact
// (FB, slot) and column is a placement collision, surfaced as
// FailureSanity.
func TestLOCClashFails(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	loc := func() *netlist.Location { return &netlist.Location{FB: 0, I: intPtr(0)} }
	g.MCs.Insert(Macrocell{Type: TypeBuriedComb, RequestedLoc: loc()})
	g.MCs.Insert(Macrocell{Type: TypeBuriedComb, RequestedLoc: loc()})

	res := Run(g, dev)
	if res.Kind != FailureSanity {
		t.Fatalf("Run = %+v, want FailureSanity", res)
	}
}

// The §4.5 pairing table: a buried combinatorial macrocell may share its
// slot with either kind of pin input, while a buried register may only
// back an unregistered pin input, and not even that when the register's
// own feedback path is in use.
func TestPairingLegality(t *testing.T) {
	dev := xc2device.XC2C32A
	slot0 := func() *netlist.Location { return &netlist.Location{FB: 0, I: intPtr(0)} }

	g := emptyGraph()
	g.MCs.Insert(Macrocell{Type: TypeBuriedComb, RequestedLoc: slot0()})
	g.MCs.Insert(Macrocell{Type: TypePinInputReg, RequestedLoc: slot0(), IO: &IOFacet{}})
	if res := Run(g, dev); res.Kind != Success {
		t.Fatalf("BuriedComb + PinInputReg should share a slot, got %+v", res)
	}

	g = emptyGraph()
	g.MCs.Insert(Macrocell{Type: TypeBuriedReg, RequestedLoc: slot0()})
	g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, RequestedLoc: slot0(), IO: &IOFacet{}})
	if res := Run(g, dev); res.Kind != Success {
		t.Fatalf("feedback-free BuriedReg + PinInputUnreg should share a slot, got %+v", res)
	}

	g = emptyGraph()
	g.MCs.Insert(Macrocell{Type: TypeBuriedReg, RequestedLoc: slot0()})
	g.MCs.Insert(Macrocell{Type: TypePinInputReg, RequestedLoc: slot0(), IO: &IOFacet{}})
	if res := Run(g, dev); res.Kind != FailureSanity {
		t.Fatalf("BuriedReg must not pair with a registered pin input, got %+v", res)
	}

	g = emptyGraph()
	g.MCs.Insert(Macrocell{Type: TypeBuriedReg, XorFeedbackUsed: true, RequestedLoc: slot0()})
	g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, RequestedLoc: slot0(), IO: &IOFacet{}})
	if res := Run(g, dev); res.Kind != FailureSanity {
		t.Fatalf("feedback-using BuriedReg must not pair with a pin input, got %+v", res)
	}
}

// A pin input beyond the paired columns' capacity overflows onto the
// dedicated-input pad, which lives one FB index past the real fabric.
func TestPinInputOverflowTakesDedicatedPad(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	n := pinInputCapacity(dev)
	for i := 0; i < n; i++ {
		g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, IO: &IOFacet{}})
	}

	res := Run(g, dev)
	if res.Kind != Success {
		t.Fatalf("Run = %+v, want Success", res)
	}

	dfb, dmc := xc2device.DedicatedInputLocation(dev)
	onPad := 0
	for _, h := range g.MCs.Handles() {
		loc := g.MCs.Get(h).Loc
		if loc == nil {
			t.Fatalf("macrocell %v has no assigned location", h)
		}
		if loc.FB == dfb && loc.I == dmc {
			onPad++
		}
	}
	if onPad != 1 {
		t.Fatalf("%d macrocells on the dedicated-input pad, want exactly 1", onPad)
	}

	g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, IO: &IOFacet{}})
	if res := Run(g, dev); res.Kind != FailureSanity {
		t.Fatalf("one pin input past the dedicated pad should fail placement, got %+v", res)
	}
}

// Scenario 4 (spec.md §8): a global clock buffer whose pinned index maps
// (via the device's fixed table) to a different FB than the driven
// macrocell's own LOC names is rejected during sanity.
func TestGlobalClockLOCMismatchFails(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	mc := g.MCs.Insert(Macrocell{
		Type:         TypeBuriedComb,
		RequestedLoc: &netlist.Location{FB: 1},
	})
	g.BufgClks.Insert(BufgClk{
		RequestedLoc: &netlist.Location{FB: 1, I: intPtr(0)},
		Input:        mc,
	})

	if r := DoSanityCheck(g, dev); r != SanityFailureGlobalNetWrongLoc {
		t.Fatalf("DoSanityCheck = %v, want FailureGlobalNetWrongLoc", r)
	}
}

// Scenario 5 (spec.md §8): a register with both a clock-enable product
// term and a distinct XOR-ANDTERM product term can never be satisfied —
// both claim the single PTC slot.
func TestSharedPTCConflictFails(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	src1 := g.MCs.Insert(Macrocell{Type: TypeBuriedComb})
	src2 := g.MCs.Insert(Macrocell{Type: TypeBuriedComb})
	ceTerm := g.PTerms.Insert(PTerm{InputsTrue: []PTermInput{{Kind: PTermInputXor, MC: src1}}})
	xorTerm := g.PTerms.Insert(PTerm{InputsTrue: []PTermInput{{Kind: PTermInputXor, MC: src2}}})

	g.MCs.Insert(Macrocell{
		Type: TypeBuriedReg,
		Reg:  &RegFacet{ClkInput: ClockAssignment{IsGCK: true}, CEInput: &ceTerm},
		Xor:  &XorFacet{AndTermInput: &xorTerm},
	})

	if r := DoSanityCheck(g, dev); r != SanityFailurePTCNeverSatisfiable {
		t.Fatalf("DoSanityCheck = %v, want FailurePTCNeverSatisfiable", r)
	}
}

// Scenario 6 (spec.md §8): a function block needing one more distinct
// fanin than the ZIA has rows can never route; the outer loop exhausts
// its iteration budget.
func TestSaturatedZIAExhaustsIterations(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full iteration budget")
	}
	dev := xc2device.XC2C32A
	g := emptyGraph()
	addSaturatingFanins(g, dev, xc2device.InputsPerAndTerm(dev)+1)

	res := RunSeeded(g, dev, 1)
	if res.Kind != FailureIterationsExceeded {
		t.Fatalf("Run = %+v, want FailureIterationsExceeded", res)
	}
}

// Too many macrocells for the device's combined two-column capacity is
// rejected before placement is attempted at all (sanity monotonicity,
// spec.md §8).
func TestTooManyMacrocellsFails(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()

	cap := 2 * xc2device.NumFunctionBlocks(dev) * xc2device.MCSPerFB(dev)
	for i := 0; i < cap+1; i++ {
		g.MCs.Insert(Macrocell{Type: TypeBuriedComb})
	}

	if r := DoSanityCheck(g, dev); r != SanityFailureTooManyMCs {
		t.Fatalf("DoSanityCheck = %v, want FailureTooManyMCs", r)
	}
}

// Determinism (spec.md §8): identical input and identical seed produce a
// byte-identical assignment across runs.
func TestDeterministicAcrossRuns(t *testing.T) {
	dev := xc2device.XC2C32A

	build := func() *InputGraph {
		g := emptyGraph()
		var fanins []PTermInput
		for i := 0; i < 3; i++ {
			ibuf := g.MCs.Insert(Macrocell{Type: TypePinInputUnreg, IO: &IOFacet{}})
			fanins = append(fanins, PTermInput{Kind: PTermInputPin, MC: ibuf})
		}
		pt := g.PTerms.Insert(PTerm{InputsTrue: fanins})
		g.MCs.Insert(Macrocell{Type: TypeBuriedComb, Xor: &XorFacet{OrTermInputs: []objpool.Handle{pt}}})
		return g
	}

	g1 := build()
	g2 := build()

	r1 := RunSeeded(g1, dev, 42)
	r2 := RunSeeded(g2, dev, 42)
	if r1.Kind != Success || r2.Kind != Success {
		t.Fatalf("both runs should succeed, got %+v and %+v", r1, r2)
	}

	for _, h := range g1.MCs.Handles() {
		m1, m2 := g1.MCs.Get(h), g2.MCs.Get(h)
		if *m1.Loc != *m2.Loc {
			t.Fatalf("handle %v: locations diverged between identically-seeded runs: %+v vs %+v", h, m1.Loc, m2.Loc)
		}
	}
	for _, h := range g1.PTerms.Handles() {
		p1, p2 := g1.PTerms.Get(h), g2.PTerms.Get(h)
		if *p1.Loc != *p2.Loc {
			t.Fatalf("handle %v: product-term slots diverged: %+v vs %+v", h, p1.Loc, p2.Loc)
		}
		for i := range p1.InputsTrueZIA {
			if p1.InputsTrueZIA[i] != p2.InputsTrueZIA[i] {
				t.Fatalf("handle %v: ZIA rows diverged", h)
			}
		}
	}
}

// Blame consistency (spec.md §8): re-evaluating a function block without
// a blamed macrocell's contribution should score exactly base minus that
// macrocell's blame.
func TestBlameConsistency(t *testing.T) {
	dev := xc2device.XC2C32A
	g := emptyGraph()
	mc := addSaturatingFanins(g, dev, xc2device.InputsPerAndTerm(dev)+2)

	p, ok := GreedyInitialPlacement(g, dev)
	if !ok {
		t.Fatalf("GreedyInitialPlacement failed")
	}

	fb, slot, found := p.locationOf(mc)
	if !found {
		t.Fatalf("macrocell not seated")
	}

	base := evaluateFB(g, p, dev, fb).score
	if base <= 0 {
		t.Fatalf("expected the saturated FB to fail, score = %d", base)
	}

	pairs := fbBlame(g, p, dev, fb, base)
	var blame int
	for _, be := range pairs {
		if be.mc == mc {
			blame = be.blame
		}
	}
	if blame <= 0 {
		t.Fatalf("expected positive blame for the offending macrocell, pairs = %+v", pairs)
	}

	p.clear(fb, slot, colNonPinInput)
	after := evaluateFB(g, p, dev, fb).score
	p.set(fb, slot, colNonPinInput, mc)

	if base-after != blame {
		t.Fatalf("blame %d inconsistent with re-pack drop %d", blame, base-after)
	}
}
