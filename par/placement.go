package par

import (
	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

type seatKind int

const (
	seatEmpty seatKind = iota
	seatBanned
	seatOccupied
)

type seat struct {
	kind seatKind
	mc   objpool.Handle
}

// column distinguishes the two macrocells a single (FB, slot) index can
// carry: the fabric's non-pin-input logic cell and, stacked on top of
// it, the pin-input capture cell that shares the same slot's dedicated
// product terms and IOB.
type column int

const (
	colNonPinInput column = iota
	colPinInput
)

func otherColumn(c column) column {
	if c == colNonPinInput {
		return colPinInput
	}
	return colNonPinInput
}

func columnFor(t MacrocellType) column {
	if t.IsPinInput() {
		return colPinInput
	}
	return colNonPinInput
}

// slotPair is one (FB, slot) index: the non-pin-input occupant and the
// pin-input occupant that may be seated alongside it.
type slotPair struct {
	cols [2]seat
}

// Placement is the current (fb, slot, column) seating of every
// macrocell, kept independently of InputGraph.MCs[*].Loc so the outer
// loop can try a swap and roll it back without touching the graph until
// it commits.
type Placement struct {
	fbs [][]slotPair // fbs[fb][slot]
}

// newPlacement builds the empty seating array: one slotPair row per real
// function block, plus a pseudo-FB holding the dedicated-input pad. The
// pseudo-FB is banned everywhere except its pin-input column at the
// dedicated location, so the only thing that can ever land there is a
// pin-input macrocell taking the dedicated pad.
func newPlacement(dev xc2device.Device) *Placement {
	numFB := xc2device.NumFunctionBlocks(dev)
	mcsPerFB := xc2device.MCSPerFB(dev)
	fbs := make([][]slotPair, numFB+1)
	for i := range fbs {
		fbs[i] = make([]slotPair, mcsPerFB)
	}
	for i := range fbs[numFB] {
		fbs[numFB][i].cols[colNonPinInput] = seat{kind: seatBanned}
		fbs[numFB][i].cols[colPinInput] = seat{kind: seatBanned}
	}
	bfb, bmc := xc2device.DedicatedInputLocation(dev)
	fbs[bfb][bmc].cols[colPinInput] = seat{kind: seatEmpty}
	return &Placement{fbs: fbs}
}

func (p *Placement) get(fb, i int, col column) seat { return p.fbs[fb][i].cols[col] }

func (p *Placement) set(fb, i int, col column, h objpool.Handle) {
	p.fbs[fb][i].cols[col] = seat{kind: seatOccupied, mc: h}
}

func (p *Placement) clear(fb, i int, col column) {
	p.fbs[fb][i].cols[col] = seat{kind: seatEmpty}
}

// firstFreeColumn scans fb's slots in order for the first one whose col
// column is empty and, when the opposite column is already occupied,
// legally pairs with h under the fabric's column-sharing rules.
func (p *Placement) firstFreeColumn(g *InputGraph, fb int, h objpool.Handle) (int, bool) {
	col := columnFor(g.MCs.Get(h).Type)
	other := otherColumn(col)
	for i, sp := range p.fbs[fb] {
		if sp.cols[col].kind != seatEmpty {
			continue
		}
		if sp.cols[other].kind == seatOccupied && !canPair(g, col, h, sp.cols[other].mc) {
			continue
		}
		return i, true
	}
	return 0, false
}

// locationOf returns the (fb, slot) a macrocell currently occupies,
// regardless of which column it sits in.
func (p *Placement) locationOf(h objpool.Handle) (int, int, bool) {
	for fb, slots := range p.fbs {
		for i, sp := range slots {
			for _, s := range sp.cols {
				if s.kind == seatOccupied && s.mc == h {
					return fb, i, true
				}
			}
		}
	}
	return 0, 0, false
}

// pairLegal reports whether nonPin and pin may share a single (FB, slot)
// index. A buried combinational cell can always back a pin-input
// capture cell in the same slot. A buried register can only back an
// unregistered pin-input capture cell, and only when the register
// itself doesn't also read its own output back as feedback — that
// feedback path and the pin-input capture path would otherwise compete
// for the same physical routing the slot offers.
func pairLegal(g *InputGraph, nonPin, pin objpool.Handle) bool {
	nonPinMC := g.MCs.Get(nonPin)
	pinMC := g.MCs.Get(pin)
	switch nonPinMC.Type {
	case TypeBuriedComb:
		return pinMC.Type == TypePinInputUnreg || pinMC.Type == TypePinInputReg
	case TypeBuriedReg:
		return pinMC.Type == TypePinInputUnreg && !nonPinMC.XorFeedbackUsed
	default:
		return false
	}
}

// canPair checks pairLegal regardless of which of h/other is the
// pin-input occupant.
func canPair(g *InputGraph, col column, h, other objpool.Handle) bool {
	if col == colNonPinInput {
		return pairLegal(g, h, other)
	}
	return pairLegal(g, other, h)
}

// assignGlobalBuffers runs one global-buffer category's index
// assignment: a locked pass that claims every already-pinned index
// (failing on collision), then a free pass that gives every remaining
// buffer the first index whose fabric-derived (FB, slot) doesn't
// conflict with its driven macrocell's own LOC, tightening that
// macrocell's LOC to match. Each of the three buffer categories gets
// its own used-set and its own call to fabricLoc, visited exactly once
// by one generic routine instead of three copy-pasted loops.
func assignGlobalBuffers[T any](g *InputGraph, n int, bufs *objpool.Pool[T], reqLoc func(*T) *netlist.Location, setLoc func(*T, int), input func(*T) objpool.Handle, fabricLoc func(int) (int, int)) bool {
	used := make([]bool, n)

	handles := bufs.Handles()
	for _, h := range handles {
		buf := bufs.Get(h)
		if loc := reqLoc(buf); loc != nil && loc.I != nil {
			i := *loc.I
			if i < 0 || i >= n || used[i] {
				return false
			}
			used[i] = true
			setLoc(buf, i)
		}
	}

	for _, h := range handles {
		buf := bufs.Get(h)
		if loc := reqLoc(buf); loc != nil && loc.I != nil {
			continue // already handled in the locked pass
		}
		placed := false
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			fb, mc := fabricLoc(i)
			driven := g.MCs.Get(input(buf))
			if !locConsistentWithFabric(driven.RequestedLoc, fb, mc) {
				continue
			}
			used[i] = true
			setLoc(buf, i)
			tightenMacrocellLoc(driven, fb, mc)
			placed = true
			break
		}
		if !placed {
			return false
		}
	}
	return true
}

// AssignGlobalBuffers runs the three independent global-buffer index
// assignment passes before any macrocell is seated, so that every
// driven macrocell's LOC is fully resolved by the time macrocell
// placement begins.
func AssignGlobalBuffers(g *InputGraph, dev xc2device.Device) bool {
	okClk := assignGlobalBuffers(g, xc2device.NumBufgClk(dev), g.BufgClks,
		func(b *BufgClk) *netlist.Location { return b.RequestedLoc },
		func(b *BufgClk, i int) { b.Loc = &AssignedLocation{FB: 0, I: i} },
		func(b *BufgClk) objpool.Handle { return b.Input },
		func(i int) (int, int) { fb, mc, _ := xc2device.GetGck(dev, i); return fb, mc },
	)
	if !okClk {
		return false
	}
	okGTS := assignGlobalBuffers(g, xc2device.NumBufgGTS(dev), g.BufgGTSs,
		func(b *BufgGTS) *netlist.Location { return b.RequestedLoc },
		func(b *BufgGTS, i int) { b.Loc = &AssignedLocation{FB: 0, I: i} },
		func(b *BufgGTS) objpool.Handle { return b.Input },
		func(i int) (int, int) { fb, mc, _ := xc2device.GetGts(dev, i); return fb, mc },
	)
	if !okGTS {
		return false
	}
	okGSR := assignGlobalBuffers(g, xc2device.NumBufgGSR(dev), g.BufgGSRs,
		func(b *BufgGSR) *netlist.Location { return b.RequestedLoc },
		func(b *BufgGSR, i int) { b.Loc = &AssignedLocation{FB: 0, I: i} },
		func(b *BufgGSR) objpool.Handle { return b.Input },
		func(i int) (int, int) { fb, mc := xc2device.GetGsr(dev); return fb, mc },
	)
	return okGSR
}

// GreedyInitialPlacement seats every macrocell in gather order: an exact
// LOC goes to its named slot or the attempt fails outright, an FB-only
// LOC goes to the first free slot in that FB, and an unconstrained
// macrocell goes to the first free slot anywhere, in FB order. Each
// (FB, slot) index can carry a non-pin-input occupant and a pin-input
// occupant at once, so every seating step runs column-aware, and once
// the fully-LOCed macrocells are down a pairing legality scan rejects
// any explicit LOC combination the fabric can't actually share. Global
// buffer indices (and the LOC-tightening that follows from pinning one)
// are resolved by AssignGlobalBuffers before this runs.
func GreedyInitialPlacement(g *InputGraph, dev xc2device.Device) (*Placement, bool) {
	if !AssignGlobalBuffers(g, dev) {
		return nil, false
	}

	p := newPlacement(dev)
	numFB := xc2device.NumFunctionBlocks(dev)
	handles := g.MCs.Handles()

	// Seat every fully-LOCed (FB and slot) macrocell first, so a later
	// FB-only or unconstrained macrocell never steals a slot an exact
	// LOC needs.
	for _, h := range handles {
		m := g.MCs.Get(h)
		if m.RequestedLoc == nil || m.RequestedLoc.I == nil {
			continue
		}
		fb, i := m.RequestedLoc.FB, *m.RequestedLoc.I
		if fb < 0 || fb >= numFB || i < 0 || i >= xc2device.MCSPerFB(dev) {
			return nil, false
		}
		col := columnFor(m.Type)
		if p.get(fb, i, col).kind != seatEmpty {
			return nil, false
		}
		p.set(fb, i, col, h)
		m.Loc = &AssignedLocation{FB: fb, I: i}
	}

	// Pair legality scan: any slot whose two explicitly-LOCed occupants
	// can't actually share the slot's hardware fails placement outright,
	// rather than silently routing one of them wrong.
	for fb := 0; fb < numFB; fb++ {
		for i := 0; i < xc2device.MCSPerFB(dev); i++ {
			nonPin := p.get(fb, i, colNonPinInput)
			pin := p.get(fb, i, colPinInput)
			if nonPin.kind == seatOccupied && pin.kind == seatOccupied {
				if !pairLegal(g, nonPin.mc, pin.mc) {
					return nil, false
				}
			}
		}
	}

	// Seat every FB-only-LOC macrocell into the first free, legally
	// pairable slot of its named FB.
	for _, h := range handles {
		m := g.MCs.Get(h)
		if m.RequestedLoc == nil || m.RequestedLoc.I != nil {
			continue
		}
		fb := m.RequestedLoc.FB
		if fb < 0 || fb >= numFB {
			return nil, false
		}
		i, ok := p.firstFreeColumn(g, fb, h)
		if !ok {
			return nil, false
		}
		p.set(fb, i, columnFor(m.Type), h)
		m.Loc = &AssignedLocation{FB: fb, I: i}
	}

	// Seat every unconstrained macrocell into the first free slot
	// anywhere, in gather order. The scan covers the dedicated-input
	// pseudo-FB too: once the real pin-input columns run out, an
	// overflow pin input takes the dedicated pad.
	for _, h := range handles {
		m := g.MCs.Get(h)
		if m.RequestedLoc != nil {
			continue
		}
		placed := false
		for fb := range p.fbs {
			if i, ok := p.firstFreeColumn(g, fb, h); ok {
				p.set(fb, i, columnFor(m.Type), h)
				m.Loc = &AssignedLocation{FB: fb, I: i}
				placed = true
				break
			}
		}
		if !placed {
			return nil, false
		}
	}

	return p, true
}
