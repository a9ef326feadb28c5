package par

import (
	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

// fbEval is the outcome of scoring one function block's current seating:
// a non-negative badness (0 means fully legal) plus, on a zero score, the
// packed product-term slots and per-fanin ZIA rows ready to commit.
type fbEval struct {
	score int

	// present only when score == 0
	slots map[int]objpool.Handle // pterm array index -> pterm
	rows  map[PTermInput]int     // fanin -> ZIA row
}

type seatedMC struct {
	mc   objpool.Handle
	slot int
}

// seatedMacrocells returns fb's non-pin-input column occupants in slot
// order. Packing and the blame scan only ever look at this column; the
// control product terms on a registered pin input's RegFacet are not
// packed.
func seatedMacrocells(p *Placement, fb int) []seatedMC {
	var out []seatedMC
	for i, sp := range p.fbs[fb] {
		if s := sp.cols[colNonPinInput]; s.kind == seatOccupied {
			out = append(out, seatedMC{mc: s.mc, slot: i})
		}
	}
	return out
}

// evaluateFB scores how far function block fb is from a legal packing:
// control-term slot conflicts, shared-product-term overflow, and ZIA
// routing infeasibility (spec.md §4.6, §4.7). It never mutates the graph;
// callers commit a zero-score result explicitly via commitFB.
func evaluateFB(g *InputGraph, p *Placement, dev xc2device.Device, fb int) fbEval {
	numSlots := xc2device.AndTermsPerFB(dev)
	slots := make([]objpool.Handle, numSlots)
	used := make([]bool, numSlots)

	// Route the special product terms to their fixed slots. A slot
	// already holding a structurally different term is a conflict.
	conflicts := 0
	place := func(slot int, pt objpool.Handle) {
		if !used[slot] {
			slots[slot] = pt
			used[slot] = true
			return
		}
		if g.PTerms.Get(slots[slot]).key() != g.PTerms.Get(pt).key() {
			conflicts++
		}
	}

	seated := seatedMacrocells(p, fb)
	for _, sm := range seated {
		mc := g.MCs.Get(sm.mc)

		if mc.IO != nil && mc.IO.OE != nil && !mc.IO.OE.IsGTS {
			place(xc2device.GetPtb(sm.slot), mc.IO.OE.PTerm)
		}
		if mc.Xor != nil && mc.Xor.AndTermInput != nil {
			place(xc2device.GetPtc(sm.slot), *mc.Xor.AndTermInput)
		}
		if mc.Reg != nil {
			if mc.Reg.CEInput != nil {
				place(xc2device.GetPtc(sm.slot), *mc.Reg.CEInput)
			}
			if !mc.Reg.ClkInput.IsGCK {
				place(xc2device.GetPtc(sm.slot), mc.Reg.ClkInput.PTerm)
			}
			if mc.Reg.SetInput != nil && !mc.Reg.SetInput.IsGSR {
				place(xc2device.GetPta(sm.slot), mc.Reg.SetInput.PTerm)
			}
			if mc.Reg.ResetInput != nil && !mc.Reg.ResetInput.IsGSR {
				place(xc2device.GetPta(sm.slot), mc.Reg.ResetInput.PTerm)
			}
		}
	}
	if conflicts > 0 {
		return fbEval{score: conflicts}
	}

	// Pack the remaining OR-term inputs, sharing structurally equal
	// terms and taking the lowest free slot otherwise.
	existing := map[string]int{}
	for i := 0; i < numSlots; i++ {
		if used[i] {
			existing[g.PTerms.Get(slots[i]).key()] = i
		}
	}
	unfitted := 0
	for _, sm := range seated {
		mc := g.MCs.Get(sm.mc)
		if mc.Xor == nil {
			continue
		}
		for _, pt := range mc.Xor.OrTermInputs {
			k := g.PTerms.Get(pt).key()
			if _, ok := existing[k]; ok {
				continue
			}
			placed := false
			for i := 0; i < numSlots; i++ {
				if !used[i] {
					slots[i] = pt
					used[i] = true
					existing[k] = i
					placed = true
					break
				}
			}
			if !placed {
				unfitted++
			}
		}
	}
	if unfitted > 0 {
		return fbEval{score: unfitted}
	}

	slotMap := map[int]objpool.Handle{}
	for i := 0; i < numSlots; i++ {
		if used[i] {
			slotMap[i] = slots[i]
		}
	}

	rows, ziaBadness := routeZIA(g, p, dev, slotMap)
	if ziaBadness > 0 {
		return fbEval{score: ziaBadness}
	}
	return fbEval{score: 0, slots: slotMap, rows: rows}
}

// blameEntry is one seated macrocell's contribution to an FB's failure
// score: how much the score drops when the macrocell is tentatively
// removed (spec.md §4.8).
type blameEntry struct {
	slot  int
	mc    objpool.Handle
	blame int
}

// fbBlame computes fb's blame vector against a known failing base score,
// clearing each seated non-pin-input macrocell in turn and re-scoring.
// Every tentative edit is restored before returning.
func fbBlame(g *InputGraph, p *Placement, dev xc2device.Device, fb, base int) []blameEntry {
	var out []blameEntry
	for _, sm := range seatedMacrocells(p, fb) {
		p.clear(fb, sm.slot, colNonPinInput)
		after := evaluateFB(g, p, dev, fb).score
		p.set(fb, sm.slot, colNonPinInput, sm.mc)
		if d := base - after; d > 0 {
			out = append(out, blameEntry{slot: sm.slot, mc: sm.mc, blame: d})
		}
	}
	return out
}

// resolveZIAInput turns a classified product-term fanin into the device
// signal it must enter the ZIA as, given where its source macrocell
// currently sits. A Reg fanin whose macrocell has XorFeedbackUsed set
// loses the register feedback path and must come in
// through the IOB instead; a Pin fanin seated on the dedicated-input pad
// uses that pad's special signal rather than an IBuf number (spec.md
// §4.7 step 3).
func resolveZIAInput(g *InputGraph, p *Placement, dev xc2device.Device, in PTermInput) (xc2device.ZIAInput, bool) {
	srcFB, srcSlot, ok := p.locationOf(in.MC)
	if !ok {
		// During a blame scan the source may be the very macrocell
		// tentatively cleared; its back-pointer still names its seat.
		loc := g.MCs.Get(in.MC).Loc
		if loc == nil {
			return xc2device.ZIAInput{}, false
		}
		srcFB, srcSlot = loc.FB, loc.I
	}

	switch in.Kind {
	case PTermInputXor:
		return xc2device.MacrocellInput(srcFB, srcSlot), true
	case PTermInputReg:
		if g.MCs.Get(in.MC).XorFeedbackUsed {
			iob, ok := xc2device.FbMcNumToIobNum(dev, srcFB, srcSlot)
			if !ok {
				return xc2device.ZIAInput{}, false
			}
			return xc2device.IBufInput(iob), true
		}
		return xc2device.MacrocellInput(srcFB, srcSlot), true
	case PTermInputPin:
		dfb, dmc := xc2device.DedicatedInputLocation(dev)
		if srcFB == dfb && srcSlot == dmc {
			return xc2device.DedicatedInput, true
		}
		iob, ok := xc2device.FbMcNumToIobNum(dev, srcFB, srcSlot)
		if !ok {
			return xc2device.ZIAInput{}, false
		}
		return xc2device.IBufInput(iob), true
	default:
		panic("par: unhandled PTermInputKind in resolveZIAInput")
	}
}

// routeZIA assigns every distinct fanin of the packed product terms a ZIA
// row whose table carries the fanin's signal, backtracking on conflicts.
// Fanins are collected in first-seen order over the slot array, which is
// also the search order; most_routed tracks the deepest prefix ever
// routed so a failure's badness is monotone in how close the attempt
// came (spec.md §4.7, §9).
func routeZIA(g *InputGraph, p *Placement, dev xc2device.Device, slotMap map[int]objpool.Handle) (map[PTermInput]int, int) {
	numSlots := xc2device.AndTermsPerFB(dev)
	var fanins []PTermInput
	seen := map[PTermInput]bool{}
	collect := func(ins []PTermInput) {
		for _, in := range ins {
			if !seen[in] {
				seen[in] = true
				fanins = append(fanins, in)
			}
		}
	}
	for i := 0; i < numSlots; i++ {
		if pt, ok := slotMap[i]; ok {
			pterm := g.PTerms.Get(pt)
			collect(pterm.InputsTrue)
			collect(pterm.InputsComp)
		}
	}

	numRows := xc2device.InputsPerAndTerm(dev)
	if len(fanins) > numRows {
		return nil, len(fanins) - numRows
	}

	// Candidate rows per fanin. An unresolvable signal simply has no
	// candidates, so the search fails at its index.
	candidates := make([][]int, len(fanins))
	for i, in := range fanins {
		if sig, ok := resolveZIAInput(g, p, dev, in); ok {
			candidates[i] = xc2device.ZiaRowsCarrying(dev, sig)
		}
	}

	assignment := map[PTermInput]int{}
	rowTaken := make([]bool, numRows)
	mostRouted := 0

	var backtrack func(idx int) bool
	backtrack = func(idx int) bool {
		if idx == len(fanins) {
			return true
		}
		for _, row := range candidates[idx] {
			if rowTaken[row] {
				continue
			}
			rowTaken[row] = true
			assignment[fanins[idx]] = row
			if idx+1 > mostRouted {
				mostRouted = idx + 1
			}
			if backtrack(idx + 1) {
				return true
			}
			rowTaken[row] = false
			delete(assignment, fanins[idx])
		}
		return false
	}

	if backtrack(0) {
		return assignment, 0
	}
	return nil, len(fanins) - mostRouted
}

// commitFB writes a zero-score fbEval back into the graph — every
// product term structurally equal to a packed one gets the packed slot
// as its location, and its fanins get their routed ZIA rows for
// downstream bit encoding — and returns the FB's crossbar configuration,
// one signal per row with the sentinel One in every open row.
func commitFB(g *InputGraph, p *Placement, dev xc2device.Device, fb int, eval fbEval) []xc2device.ZIAInput {
	ziaRows := make([]xc2device.ZIAInput, xc2device.InputsPerAndTerm(dev))
	for i := range ziaRows {
		ziaRows[i] = xc2device.One
	}
	for in, row := range eval.rows {
		if sig, ok := resolveZIAInput(g, p, dev, in); ok {
			ziaRows[row] = sig
		}
	}

	packed := map[string]int{}
	for slot, pt := range eval.slots {
		packed[g.PTerms.Get(pt).key()] = slot
	}
	g.PTerms.Each(func(h objpool.Handle, pterm *PTerm) {
		slot, ok := packed[pterm.key()]
		if !ok {
			return
		}
		pterm.Loc = &AssignedLocation{FB: fb, I: slot}
		pterm.InputsTrueZIA = make([]int, len(pterm.InputsTrue))
		for i, in := range pterm.InputsTrue {
			pterm.InputsTrueZIA[i] = eval.rows[in]
		}
		pterm.InputsCompZIA = make([]int, len(pterm.InputsComp))
		for i, in := range pterm.InputsComp {
			pterm.InputsCompZIA[i] = eval.rows[in]
		}
	})

	return ziaRows
}
