package par

import (
	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/xc2device"
)

// SanityResult is the closed set of reasons a design can be rejected
// before placement ever begins: seven failure variants plus Ok.
type SanityResult int

const (
	SanityOk SanityResult = iota
	SanityFailurePTCNeverSatisfiable
	SanityFailureGlobalNetWrongLoc
	SanityFailureTooManyMCs
	SanityFailureTooManyPTerms
	SanityFailureTooManyBufgClk
	SanityFailureTooManyBufgGTS
	SanityFailureTooManyBufgGSR
)

func (r SanityResult) String() string {
	switch r {
	case SanityOk:
		return "Ok"
	case SanityFailurePTCNeverSatisfiable:
		return "FailurePTCNeverSatisfiable"
	case SanityFailureGlobalNetWrongLoc:
		return "FailureGlobalNetWrongLoc"
	case SanityFailureTooManyMCs:
		return "FailureTooManyMCs"
	case SanityFailureTooManyPTerms:
		return "FailureTooManyPTerms"
	case SanityFailureTooManyBufgClk:
		return "FailureTooManyBufgClk"
	case SanityFailureTooManyBufgGTS:
		return "FailureTooManyBufgGTS"
	case SanityFailureTooManyBufgGSR:
		return "FailureTooManyBufgGSR"
	default:
		return "Unknown"
	}
}

// DoSanityCheck rejects designs that can never be placed regardless of
// search effort: too many macrocells or product terms for the device,
// too many global buffers of one kind, a global buffer LOC that doesn't
// name a real global buffer slot, or a macrocell whose clock-enable and
// XOR-ANDTERM inputs both claim the single PTC slot with different
// product terms (spec.md §4.1, §4.4).
func DoSanityCheck(g *InputGraph, dev xc2device.Device) SanityResult {
	// Conservative fail-early bound: two macrocells per (FB, slot) pair.
	// It ignores which macrocells can actually legally pair; placement
	// rejects the rest.
	numFB := xc2device.NumFunctionBlocks(dev)
	mcCap := 2 * numFB * xc2device.MCSPerFB(dev)
	if g.MCs.Len() > mcCap {
		return SanityFailureTooManyMCs
	}

	ptCap := numFB * xc2device.AndTermsPerFB(dev)
	uniq := map[string]bool{}
	for _, h := range g.PTerms.Handles() {
		uniq[g.PTerms.Get(h).key()] = true
	}
	if len(uniq) > ptCap {
		return SanityFailureTooManyPTerms
	}

	if g.BufgClks.Len() > xc2device.NumBufgClk(dev) {
		return SanityFailureTooManyBufgClk
	}
	if g.BufgGTSs.Len() > xc2device.NumBufgGTS(dev) {
		return SanityFailureTooManyBufgGTS
	}
	if g.BufgGSRs.Len() > xc2device.NumBufgGSR(dev) {
		return SanityFailureTooManyBufgGSR
	}

	numBufgClk := xc2device.NumBufgClk(dev)
	for _, h := range g.BufgClks.Handles() {
		buf := g.BufgClks.Get(h)
		loc := buf.RequestedLoc
		if loc == nil {
			continue
		}
		if loc.I == nil || *loc.I < 0 || *loc.I >= numBufgClk {
			return SanityFailureGlobalNetWrongLoc
		}
		fb, mc, _ := xc2device.GetGck(dev, *loc.I)
		if !locConsistentWithFabric(g.MCs.Get(buf.Input).RequestedLoc, fb, mc) {
			return SanityFailureGlobalNetWrongLoc
		}
		tightenMacrocellLoc(g.MCs.Get(buf.Input), fb, mc)
	}
	numBufgGTS := xc2device.NumBufgGTS(dev)
	for _, h := range g.BufgGTSs.Handles() {
		buf := g.BufgGTSs.Get(h)
		loc := buf.RequestedLoc
		if loc == nil {
			continue
		}
		if loc.I == nil || *loc.I < 0 || *loc.I >= numBufgGTS {
			return SanityFailureGlobalNetWrongLoc
		}
		fb, mc, _ := xc2device.GetGts(dev, *loc.I)
		if !locConsistentWithFabric(g.MCs.Get(buf.Input).RequestedLoc, fb, mc) {
			return SanityFailureGlobalNetWrongLoc
		}
		tightenMacrocellLoc(g.MCs.Get(buf.Input), fb, mc)
	}
	for _, h := range g.BufgGSRs.Handles() {
		buf := g.BufgGSRs.Get(h)
		loc := buf.RequestedLoc
		if loc == nil {
			continue
		}
		if loc.I != nil && *loc.I != 0 {
			return SanityFailureGlobalNetWrongLoc
		}
		fb, mc := xc2device.GetGsr(dev)
		if !locConsistentWithFabric(g.MCs.Get(buf.Input).RequestedLoc, fb, mc) {
			return SanityFailureGlobalNetWrongLoc
		}
		tightenMacrocellLoc(g.MCs.Get(buf.Input), fb, mc)
	}

	bad := false
	for _, h := range g.MCs.Handles() {
		m := g.MCs.Get(h)
		if m.Reg != nil && m.Reg.CEInput != nil && m.Xor != nil && m.Xor.AndTermInput != nil {
			ceKey := g.PTerms.Get(*m.Reg.CEInput).key()
			ptcKey := g.PTerms.Get(*m.Xor.AndTermInput).key()
			if ceKey != ptcKey {
				bad = true
			}
		}
	}
	if bad {
		return SanityFailurePTCNeverSatisfiable
	}

	return SanityOk
}

// locConsistentWithFabric reports whether a macrocell's user-supplied LOC
// agrees with the (fb, mc) the fabric's fixed buffer-to-macrocell mapping
// derives for a pinned global buffer index (spec.md §4.4, last bullet).
// A nil LOC imposes no conflict; an FB-only LOC conflicts only when it
// names a different FB, and a full LOC must also name slot mc. A
// consistent LOC is tightened below.
func locConsistentWithFabric(loc *netlist.Location, fb, mc int) bool {
	if loc == nil {
		return true
	}
	if loc.FB != fb {
		return false
	}
	if loc.I == nil {
		return true
	}
	return *loc.I == mc
}

// tightenMacrocellLoc sets a macrocell's requested location to the
// fabric-derived (fb, mc) when it isn't already exactly that, per spec.md
// §4.4's "side effect: when a global buffer LOC pins its index, the
// driven macrocell's LOC is tightened to the fabric-determined (FB,
// slot)".
func tightenMacrocellLoc(m *Macrocell, fb, mc int) {
	i := mc
	m.RequestedLoc = &netlist.Location{FB: fb, I: &i}
}
