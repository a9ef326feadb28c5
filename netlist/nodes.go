package netlist

import "github.com/rqou/xc2par/objpool"

// RegMode is the closed set of register behaviors a Reg node may
// implement (spec.md §3).
type RegMode int

const (
	RegDFF RegMode = iota
	RegLatch
	RegTFF
	RegDFFCE
)

// NodeVariant is the closed set of intermediate-graph node primitives
// (spec.md §3). The unexported marker method seals the set to this
// package. The switch in hookNode handles all of AndTerm, OrTerm, Xor,
// Reg, BufgClk, BufgGTS, BufgGSR, IOBuf, InBuf, and ZiaDummyBuf, with a
// panicking default standing in for the compile-time exhaustiveness
// check spec.md §9 calls for — Go has no sealed-union exhaustiveness
// check, so the panic is this module's approximation of one: it fires at
// run time when a node of a variant that switch does not handle is
// hooked up.
type NodeVariant interface {
	isNodeVariant()
}

// AndTerm is a product-term AND gate. Every fanin, true or complement
// polarity, is itself the output of a ZiaDummyBuf (spec.md §3 invariant).
type AndTerm struct {
	InputsTrue []objpool.Handle
	InputsComp []objpool.Handle
	Output     objpool.Handle
}

func (AndTerm) isNodeVariant() {}

// OrTerm is a sum-term OR gate.
type OrTerm struct {
	Inputs []objpool.Handle
	Output objpool.Handle
}

func (OrTerm) isNodeVariant() {}

// Xor is a macrocell's XOR, combining an optional OR-term sum and an
// optional direct AND-term (the "XOR-ANDTERM" input used for clock
// enable sharing, spec.md §4.4).
type Xor struct {
	OrTermInput  *objpool.Handle
	AndTermInput *objpool.Handle
	InvertOut    bool
	Output       objpool.Handle
}

func (Xor) isNodeVariant() {}

// Reg is a macrocell register in one of RegMode's four shapes.
type Reg struct {
	Mode       RegMode
	ClkInv     bool
	ClkDDR     bool
	InitState  bool
	SetInput   *objpool.Handle
	ResetInput *objpool.Handle
	CEInput    *objpool.Handle
	DTInput    objpool.Handle
	ClkInput   objpool.Handle
	Output     objpool.Handle
}

func (Reg) isNodeVariant() {}

// BufgClk is a global clock distribution buffer.
type BufgClk struct {
	Input  objpool.Handle
	Output objpool.Handle
}

func (BufgClk) isNodeVariant() {}

// BufgGTS is a global tri-state (output enable) distribution buffer.
type BufgGTS struct {
	Input  objpool.Handle
	Output objpool.Handle
	Invert bool
}

func (BufgGTS) isNodeVariant() {}

// BufgGSR is the global set/reset distribution buffer.
type BufgGSR struct {
	Input  objpool.Handle
	Output objpool.Handle
	Invert bool
}

func (BufgGSR) isNodeVariant() {}

// IOBuf is a bidirectional IO cell: optional pin-driver input, optional
// output-enable, optional pad-reader output.
type IOBuf struct {
	Input              *objpool.Handle
	OE                 *objpool.Handle
	Output             *objpool.Handle
	SchmittTrigger     bool
	TerminationEnabled bool
	SlewIsFast         bool
	UsesDataGate       bool
}

func (IOBuf) isNodeVariant() {}

// InBuf is an input-only pad-to-fabric buffer.
type InBuf struct {
	Output             objpool.Handle
	SchmittTrigger     bool
	TerminationEnabled bool
	UsesDataGate       bool
}

func (InBuf) isNodeVariant() {}

// ZiaDummyBuf is a purely structural buffer interposed on every AndTerm
// fanin to reserve a ZIA-row routing decision (spec.md §3).
type ZiaDummyBuf struct {
	Input  objpool.Handle
	Output objpool.Handle
}

func (ZiaDummyBuf) isNodeVariant() {}

// Node is one intermediate-graph node: a tagged variant plus its source
// name and optional LOC constraint.
type Node struct {
	Name     string
	Variant  NodeVariant
	Location *Location
}

// Endpoint names a node's port, used both as a net's source and as one of
// its sinks.
type Endpoint struct {
	Node objpool.Handle
	Port string
}

// Net is an intermediate-graph net: at most one source, any number of
// sinks. Every net other than the two sentinel power nets has exactly one
// source (spec.md §3 invariant).
type Net struct {
	Name   *string
	Source *Endpoint
	Sinks  []Endpoint
}
