package netlist

import "errors"

// Structural errors from intermediate-graph construction (spec.md §7):
// immediate, non-recoverable, and returned to the caller rather than
// folded into the par.SanityResult enumeration.
var (
	ErrNoTop           = errors.New("netlist: no top-level module found")
	ErrMultipleTop     = errors.New("netlist: multiple top-level modules found")
	ErrMultiDriver     = errors.New("netlist: net has more than one driver")
	ErrUndriven        = errors.New("netlist: net has no driver")
	ErrBadLoc          = errors.New("netlist: malformed LOC constraint")
	ErrUnsupportedCell = errors.New("netlist: unsupported cell type")
	ErrBadConnection   = errors.New("netlist: cell connection is malformed")
	ErrBadShape        = errors.New("netlist: macrocell gathering found a mismatched graph shape")
)
