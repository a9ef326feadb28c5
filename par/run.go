package par

import (
	"math/rand"

	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

// ResultKind is the closed set of outcomes Run can return (spec.md §6).
type ResultKind int

const (
	Success ResultKind = iota
	FailureSanity
	FailureIterationsExceeded
)

// FBResult is one function block's share of a successful run: the ZIA
// crossbar configuration, one entry per row, with the sentinel One in
// every row left open. Macrocell and product-term locations are
// back-filled onto the input graph itself rather than copied out here.
type FBResult struct {
	ZIA []xc2device.ZIAInput
}

// Result is what Run returns. On success FBs holds one FBResult per
// device function block. The caller maps the result to whatever exit
// signal its own context requires; PAR itself has no notion of process
// exit codes (spec.md §6).
type Result struct {
	Kind   ResultKind
	Sanity SanityResult
	FBs    []FBResult
}

// maxIterations bounds the min-conflicts outer loop. The original
// engine.rs names this constant N_ITER; SPEC_FULL.md carries the same
// value forward.
const maxIterations = 1000

// defaultSeed is do_par's fixed XorShiftRng seed in the original,
// translated to a fixed seed for Go's math/rand so placement is fully
// reproducible for a given input graph (spec.md §9).
const defaultSeed = 1

// Run places and routes g onto dev: a sanity pre-check, a greedy initial
// placement, then a seeded min-conflicts local search over product-term
// and ZIA feasibility until every function block scores zero or the
// iteration budget is exhausted (spec.md §4).
func Run(g *InputGraph, dev xc2device.Device) Result {
	return RunSeeded(g, dev, defaultSeed)
}

// RunSeeded is Run with an explicit PRNG seed, exposed for deterministic
// tests and for callers that want to retry with a different search
// trajectory.
func RunSeeded(g *InputGraph, dev xc2device.Device, seed int64) Result {
	if sanity := DoSanityCheck(g, dev); sanity != SanityOk {
		return Result{Kind: FailureSanity, Sanity: sanity}
	}

	p, ok := GreedyInitialPlacement(g, dev)
	if !ok {
		return Result{Kind: FailureSanity, Sanity: SanityFailureGlobalNetWrongLoc}
	}

	rng := rand.New(rand.NewSource(seed))
	numFB := xc2device.NumFunctionBlocks(dev)

	for iter := 0; iter < maxIterations; iter++ {
		evals := make([]fbEval, numFB)
		total := 0
		for fb := range evals {
			evals[fb] = evaluateFB(g, p, dev, fb)
			total += evals[fb].score
		}

		if total == 0 {
			fbs := make([]FBResult, numFB)
			for fb := range evals {
				fbs[fb] = FBResult{ZIA: commitFB(g, p, dev, fb, evals[fb])}
			}
			backfillMacrocellLocs(g, p)
			return Result{Kind: Success, FBs: fbs}
		}

		// Blame vector over every failing FB: which seated macrocells'
		// removal improves the score, and by how much (spec.md §4.8).
		type blamed struct {
			fb, slot int
			mc       objpool.Handle
			blame    int
		}
		var blames []blamed
		blameSum := 0
		for fb := range evals {
			if evals[fb].score == 0 {
				continue
			}
			for _, be := range fbBlame(g, p, dev, fb, evals[fb].score) {
				blames = append(blames, blamed{fb: fb, slot: be.slot, mc: be.mc, blame: be.blame})
				blameSum += be.blame
			}
		}
		if len(blames) == 0 {
			// A failing FB where no single removal helps leaves every
			// seated macrocell equally suspect.
			for fb := range evals {
				if evals[fb].score == 0 {
					continue
				}
				for _, sm := range seatedMacrocells(p, fb) {
					blames = append(blames, blamed{fb: fb, slot: sm.slot, mc: sm.mc, blame: 1})
					blameSum++
				}
			}
		}
		if len(blames) == 0 {
			// A failing FB with nothing seated can never improve by
			// moving macrocells around.
			break
		}

		// Draw an offender weighted by its blame score.
		pick := blames[0]
		r := rng.Intn(blameSum)
		for _, b := range blames {
			if r < b.blame {
				pick = b
				break
			}
			r -= b.blame
		}

		applySwap(rng, g, p, dev, pick.mc, pick.fb, pick.slot)
	}

	return Result{Kind: FailureIterationsExceeded}
}

func backfillMacrocellLocs(g *InputGraph, p *Placement) {
	for _, h := range g.MCs.Handles() {
		fb, slot, ok := p.locationOf(h)
		if !ok {
			continue
		}
		g.MCs.Get(h).Loc = &AssignedLocation{FB: fb, I: slot}
	}
}

// applySwap relocates mc out of its non-pin-input seat at (origFB,
// origSlot) into whichever non-banned seat across the device yields the
// lowest badness, swapping with the occupant when the target is
// occupied. Badness is one point per pairing-legality violation the swap
// would create plus the target slot's blame contribution under a
// tentative re-evaluation; ties are broken uniformly at random (spec.md
// §4.9, §9).
func applySwap(rng *rand.Rand, g *InputGraph, p *Placement, dev xc2device.Device, mc objpool.Handle, origFB, origSlot int) {
	type target struct {
		fb, slot int
		occupant objpool.Handle
		occupied bool
	}

	origPin := p.get(origFB, origSlot, colPinInput)

	var best []target
	bestBadness := -1
	for fb := range p.fbs {
		for slot := range p.fbs[fb] {
			if fb == origFB && slot == origSlot {
				continue
			}
			s := p.get(fb, slot, colNonPinInput)
			if s.kind == seatBanned {
				continue
			}

			badness := 0
			if pin := p.get(fb, slot, colPinInput); pin.kind == seatOccupied && !pairLegal(g, mc, pin.mc) {
				badness++
			}
			if s.kind == seatOccupied && origPin.kind == seatOccupied && !pairLegal(g, s.mc, origPin.mc) {
				badness++
			}

			// Tentatively swap and charge the target slot's blame
			// contribution in its FB.
			p.clear(origFB, origSlot, colNonPinInput)
			if s.kind == seatOccupied {
				p.set(origFB, origSlot, colNonPinInput, s.mc)
			}
			p.set(fb, slot, colNonPinInput, mc)

			if base := evaluateFB(g, p, dev, fb).score; base > 0 {
				for _, be := range fbBlame(g, p, dev, fb, base) {
					if be.slot == slot {
						badness += be.blame
					}
				}
			}

			p.clear(fb, slot, colNonPinInput)
			if s.kind == seatOccupied {
				p.set(fb, slot, colNonPinInput, s.mc)
			}
			p.set(origFB, origSlot, colNonPinInput, mc)

			if bestBadness == -1 || badness < bestBadness {
				bestBadness = badness
				best = []target{{fb: fb, slot: slot, occupant: s.mc, occupied: s.kind == seatOccupied}}
			} else if badness == bestBadness {
				best = append(best, target{fb: fb, slot: slot, occupant: s.mc, occupied: s.kind == seatOccupied})
			}
		}
	}
	if len(best) == 0 {
		return
	}

	chosen := best[rng.Intn(len(best))]
	p.clear(origFB, origSlot, colNonPinInput)
	if chosen.occupied {
		p.set(origFB, origSlot, colNonPinInput, chosen.occupant)
		g.MCs.Get(chosen.occupant).Loc = &AssignedLocation{FB: origFB, I: origSlot}
	}
	p.set(chosen.fb, chosen.slot, colNonPinInput, mc)
	g.MCs.Get(mc).Loc = &AssignedLocation{FB: chosen.fb, I: chosen.slot}
}
