// Package xc2device publishes the fixed fabric tables the PAR core consults
// but does not own: macrocell/product-term/ZIA-row capacities, the global
// buffer index to (FB, macrocell) mappings, the fixed PTA/PTB/PTC role
// slots, and the ZIA crossbar's per-row signal choices.
//
// These tables belong to the bitstream/device-description side of the
// toolchain (spec.md §6, "Device tables consumed"); package par only reads
// them. Only the XC2C32A device is modeled, matching the Non-goal that
// rules out multi-device targeting.
package xc2device

// Device identifies a member of the device family PAR targets. Only
// XC2C32A is populated; the type exists so call sites read like the
// multi-device tables spec.md describes, even though this core only ever
// instantiates XC2C32A.
type Device int

const (
	XC2C32A Device = iota
)

// Fixed capacities for XC2C32A.
const (
	numFunctionBlocksXC2C32A = 2
	mcsPerFBXC2C32A          = 16
	andTermsPerFBXC2C32A     = 56
	inputsPerAndTermXC2C32A  = 40
	numBufgClkXC2C32A        = 3
	numBufgGTSXC2C32A        = 4
	numBufgGSRXC2C32A        = 1
)

// NumFunctionBlocks returns the number of function blocks on dev.
func NumFunctionBlocks(dev Device) int { return numFunctionBlocksXC2C32A }

// MCSPerFB returns the number of macrocell slots per function block.
func MCSPerFB(dev Device) int { return mcsPerFBXC2C32A }

// AndTermsPerFB returns the number of product-term slots per function
// block (the "56 per FB" of the glossary).
func AndTermsPerFB(dev Device) int { return andTermsPerFBXC2C32A }

// InputsPerAndTerm returns the number of ZIA crossbar rows feeding a
// function block's product-term array.
func InputsPerAndTerm(dev Device) int { return inputsPerAndTermXC2C32A }

// NumBufgClk, NumBufgGTS, and NumBufgGSR return the number of global
// clock, output-enable, and set/reset buffers on dev.
func NumBufgClk(dev Device) int { return numBufgClkXC2C32A }
func NumBufgGTS(dev Device) int { return numBufgGTSXC2C32A }
func NumBufgGSR(dev Device) int { return numBufgGSRXC2C32A }

// GetGck returns the (FB, macrocell) location fed by global clock buffer
// index i.
func GetGck(dev Device, i int) (fb, mc int, ok bool) {
	if i < 0 || i >= NumBufgClk(dev) {
		return 0, 0, false
	}
	// Spread the clock buffers across FB0's low macrocell slots; real
	// fabric wiring is fixed per device but not published in this pack.
	return 0, i, true
}

// GetGts returns the (FB, macrocell) location fed by global tri-state
// buffer index i.
func GetGts(dev Device, i int) (fb, mc int, ok bool) {
	if i < 0 || i >= NumBufgGTS(dev) {
		return 0, 0, false
	}
	return NumFunctionBlocks(dev) - 1, i, true
}

// GetGsr returns the (FB, macrocell) location fed by the single global
// set/reset buffer.
func GetGsr(dev Device) (fb, mc int) {
	return 0, MCSPerFB(dev) - 1
}

// GetPta, GetPtb, and GetPtc return the product-term slot index within a
// function block's 56-entry array that macrocell slot mc's async
// set/reset, output-enable, and clock/CE/XOR-ANDTERM inputs are fixed to
// (spec.md §4.6).
func GetPta(mc int) int { return 3 * mc }
func GetPtb(mc int) int { return 3*mc + 1 }
func GetPtc(mc int) int { return 3*mc + 2 }

// DedicatedInputLocation returns the placement coordinates of the
// fabric's single dedicated-input pad. The pad is not part of any real
// function block; placement models it as slot 0 of a pseudo-FB one past
// the last real FB, usable only by a pin-input macrocell, and its ZIA
// signal is DedicatedInput rather than an IBuf number (spec.md §4.7
// step 3). The original implementation hardcoded this location behind a
// comment reading "FIXME: Hack" (engine.rs line 647); this table entry
// resolves that into a real per-device fact.
func DedicatedInputLocation(dev Device) (fb, mc int) {
	return NumFunctionBlocks(dev), 0
}

// FbMcNumToIobNum maps a seated macrocell's (FB, slot) to its physical
// IOB pin number, or reports that the slot is buried (no package pin).
// One macrocell slot per FB is buried-only on XC2C32A.
func FbMcNumToIobNum(dev Device, fb, mc int) (iob int, ok bool) {
	if fb < 0 || fb >= NumFunctionBlocks(dev) || mc < 0 || mc >= MCSPerFB(dev) {
		return 0, false
	}
	if mc == MCSPerFB(dev)-1 {
		// The slot GetGsr() also claims is buried-only: it never
		// reaches a pin, consistent with carrying the GSR macrocell.
		return 0, false
	}
	return fb*(MCSPerFB(dev)-1) + mc, true
}
