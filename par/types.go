// Package par implements the place-and-route core: the sanity checker,
// greedy initial placer, per-function-block product-term/ZIA packer, and
// the stochastic min-conflicts outer loop that drives them (spec.md §4).
package par

import (
	"fmt"

	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

// AssignedLocation is a macrocell's or product term's seated (FB, slot).
// Unlike netlist.Location (user intent), this is PAR's own commitment,
// back-filled once placement/packing succeeds (spec.md §3).
type AssignedLocation struct {
	FB int
	I  int
}

// MacrocellType is the derived classification spec.md §3 computes by the
// fixed traversal of netlist.GatherMacrocells.
type MacrocellType int

const (
	TypePinOutput MacrocellType = iota
	TypePinInputUnreg
	TypePinInputReg
	TypeBuriedComb
	TypeBuriedReg
)

func (t MacrocellType) String() string {
	switch t {
	case TypePinOutput:
		return "PinOutput"
	case TypePinInputUnreg:
		return "PinInputUnreg"
	case TypePinInputReg:
		return "PinInputReg"
	case TypeBuriedComb:
		return "BuriedComb"
	case TypeBuriedReg:
		return "BuriedReg"
	default:
		return fmt.Sprintf("MacrocellType(%d)", int(t))
	}
}

// IsPinInput reports whether macrocells of this type are seated in the
// pin-input column of an FB slot (spec.md §4.5).
func (t MacrocellType) IsPinInput() bool {
	return t == TypePinInputReg || t == TypePinInputUnreg
}

// OEAssignment is a macrocell's output-enable source: either a seated
// product term or the global tri-state buffer.
type OEAssignment struct {
	IsGTS bool
	PTerm objpool.Handle
	GTS   objpool.Handle
}

// IOFacet is what survives to the fabric from an IOBuf/InBuf-shaped
// macrocell (spec.md §3).
type IOFacet struct {
	// HasInput is true when this pin macrocell actually drives the pad
	// from fabric logic (a PinOutput); false for a pure input capture
	// pin, matching netlist.IOBuf.Input being present.
	HasInput bool
	OE       *OEAssignment
}

// RSAssignment is a register's async set or reset source: a seated
// product term or the global set/reset buffer.
type RSAssignment struct {
	IsGSR bool
	PTerm objpool.Handle
	GSR   objpool.Handle
}

// ClockAssignment is a register's clock source: a seated product term or
// a global clock buffer.
type ClockAssignment struct {
	IsGCK bool
	PTerm objpool.Handle
	GCK   objpool.Handle
}

// RegDataSource is a register's D/T data input: always either this
// macrocell's own pin-capture path or its own XOR, never a product term
// (spec.md §3 "Facet fields... encode only what survives to the fabric").
type RegDataSource int

const (
	RegDataPin RegDataSource = iota
	RegDataXor
)

// RegFacet is what survives to the fabric from a Reg node.
type RegFacet struct {
	Mode       netlist.RegMode
	ClkInv     bool
	ClkDDR     bool
	InitState  bool
	SetInput   *RSAssignment
	ResetInput *RSAssignment
	CEInput    *objpool.Handle // product term, optional
	DTInput    RegDataSource
	ClkInput   ClockAssignment
}

// XorFacet is what survives to the fabric from an Xor node.
type XorFacet struct {
	OrTermInputs []objpool.Handle // product terms
	AndTermInput *objpool.Handle  // product term (the PTC role)
	InvertOut    bool
}

// Macrocell is one seat's worth of IO/register/XOR behavior (spec.md §3).
type Macrocell struct {
	Type MacrocellType
	Loc  *AssignedLocation

	RequestedLoc *netlist.Location
	IO           *IOFacet
	Reg          *RegFacet
	Xor          *XorFacet

	// XorFeedbackUsed is true when this macrocell is a buried register
	// whose driving Xor output has sinks besides the register
	// (netlist.BuriedReg.HasCombFB), or when some product term feeding
	// this macrocell's own Xor facet has a fanin that is this same
	// macrocell's Reg or Xor output — the macrocell reads its own
	// registered or combinational output back into its own logic cone.
	// spec.md §4.5's pairing table and §4.7's Reg-fanin exception both
	// depend on this without the distillation naming it explicitly (see
	// SPEC_FULL.md Supplemented Features).
	XorFeedbackUsed bool
}

// PTermInputKind is the closed set of sources an AND-term fanin can have.
type PTermInputKind int

const (
	PTermInputReg PTermInputKind = iota
	PTermInputXor
	PTermInputPin
)

// PTermInput is one classified AND-term fanin: a kind plus the macrocell
// it is sourced from.
type PTermInput struct {
	Kind PTermInputKind
	MC   objpool.Handle
}

// PTerm is one product term: its classified true/complement fanins, and,
// once routed, the ZIA row each fanin landed on (spec.md §3).
type PTerm struct {
	Loc        *AssignedLocation
	InputsTrue []PTermInput
	InputsComp []PTermInput

	InputsTrueZIA []int
	InputsCompZIA []int
}

// key returns a canonical string identifying this product term's fanin
// content, ignoring Loc/routing. Two PTerm objects with the same key are
// structurally interchangeable for packing purposes (spec.md §4.6 step 3,
// "look up the term by value... to exploit sharing"); Go slices are not
// map-keyable, so this is the equivalent of the original's derived
// structural Eq/Hash on the whole struct.
func (p *PTerm) key() string {
	s := ""
	for _, in := range p.InputsTrue {
		s += fmt.Sprintf("T%d:%d;", in.Kind, in.MC)
	}
	for _, in := range p.InputsComp {
		s += fmt.Sprintf("C%d:%d;", in.Kind, in.MC)
	}
	return s
}

// BufgClk, BufgGTS, and BufgGSR are global buffer nodes: a location and
// the macrocell they drive.
type BufgClk struct {
	Loc          *AssignedLocation
	RequestedLoc *netlist.Location
	Input        objpool.Handle
}

type BufgGTS struct {
	Loc          *AssignedLocation
	RequestedLoc *netlist.Location
	Input        objpool.Handle
	Invert       bool
}

type BufgGSR struct {
	Loc          *AssignedLocation
	RequestedLoc *netlist.Location
	Input        objpool.Handle
	Invert       bool
}

// InputGraph is the PAR-oriented view derived from the intermediate
// graph: one record per macrocell, one per product term, and separate
// pools for the three global buffer kinds (spec.md §3).
type InputGraph struct {
	Dev      xc2device.Device
	MCs      *objpool.Pool[Macrocell]
	PTerms   *objpool.Pool[PTerm]
	BufgClks *objpool.Pool[BufgClk]
	BufgGTSs *objpool.Pool[BufgGTS]
	BufgGSRs *objpool.Pool[BufgGSR]
}
