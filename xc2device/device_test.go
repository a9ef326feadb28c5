package xc2device

import "testing"

func TestCapacitiesArePositive(t *testing.T) {
	dev := XC2C32A
	if NumFunctionBlocks(dev) <= 0 {
		t.Fatalf("NumFunctionBlocks = %d, want > 0", NumFunctionBlocks(dev))
	}
	if MCSPerFB(dev) <= 0 || AndTermsPerFB(dev) <= 0 || InputsPerAndTerm(dev) <= 0 {
		t.Fatalf("non-positive fabric capacity")
	}
}

func TestPtaPtbPtcAreDistinctAndInRange(t *testing.T) {
	dev := XC2C32A
	for mc := 0; mc < MCSPerFB(dev); mc++ {
		a, b, c := GetPta(mc), GetPtb(mc), GetPtc(mc)
		if a == b || b == c || a == c {
			t.Fatalf("mc %d: PTA/PTB/PTC must be distinct slots, got %d/%d/%d", mc, a, b, c)
		}
		for _, slot := range []int{a, b, c} {
			if slot < 0 || slot >= AndTermsPerFB(dev) {
				t.Fatalf("mc %d: slot %d out of range [0,%d)", mc, slot, AndTermsPerFB(dev))
			}
		}
	}
}

func TestFbMcNumToIobNumBuriedSlot(t *testing.T) {
	dev := XC2C32A
	if _, ok := FbMcNumToIobNum(dev, 0, MCSPerFB(dev)-1); ok {
		t.Fatalf("expected the last macrocell slot to be buried (no IOB)")
	}
	if _, ok := FbMcNumToIobNum(dev, 0, 0); !ok {
		t.Fatalf("expected macrocell slot 0 to have an IOB")
	}
}

func TestZiaRowsCarryingIsInverseOfZiaTableGetRow(t *testing.T) {
	dev := XC2C32A
	sig := MacrocellInput(0, 0)
	rows := ZiaRowsCarrying(dev, sig)
	if len(rows) == 0 {
		t.Fatalf("expected at least one candidate row for %v", sig)
	}
	for _, r := range rows {
		found := false
		for _, x := range ZiaTableGetRow(dev, r) {
			if x == sig {
				found = true
			}
		}
		if !found {
			t.Fatalf("row %d returned by ZiaRowsCarrying does not actually list %v", r, sig)
		}
	}
}

func TestZIAInputEquality(t *testing.T) {
	if MacrocellInput(1, 2) != MacrocellInput(1, 2) {
		t.Fatalf("expected structural equality for identical ZIAInput values")
	}
	if MacrocellInput(1, 2) == MacrocellInput(1, 3) {
		t.Fatalf("expected inequality for distinct macrocell signals")
	}
	if One == IBufInput(0) {
		t.Fatalf("sentinel One must not equal a real IBuf signal")
	}
}
