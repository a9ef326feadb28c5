package par

import (
	"fmt"

	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/objpool"
	"github.com/rqou/xc2par/xc2device"
)

// builder accumulates the conversion from a netlist.Graph into an
// InputGraph. The original xc2par source left this conversion
// (InputGraph::from_intermed_graph) unfinished; this is a full
// implementation of what that stub was building toward, grounded in
// netlist.rs's node shapes and spec.md §3/§4's facet definitions (see
// SPEC_FULL.md "Supplemented Features").
type builder struct {
	g   *netlist.Graph
	dev xc2device.Device

	mcs      *objpool.Pool[Macrocell]
	pterms   *objpool.Pool[PTerm]
	bufgClks *objpool.Pool[BufgClk]
	bufgGTSs *objpool.Pool[BufgGTS]
	bufgGSRs *objpool.Pool[BufgGSR]

	// nodeToMC maps a netlist node handle (an Xor, Reg, InBuf, or IOBuf)
	// to the par macrocell handle that owns it, so that any fanin tracing
	// back to one of these nodes can be classified (Reg/Xor/Pin) and
	// attributed to the right macrocell.
	nodeToMC map[objpool.Handle]objpool.Handle

	// bufgClkNode, bufgGTSNode, and bufgGSRNode map a netlist
	// BufgClk/GTS/GSR node handle to its par pool handle.
	bufgClkNode map[objpool.Handle]objpool.Handle
	bufgGTSNode map[objpool.Handle]objpool.Handle
	bufgGSRNode map[objpool.Handle]objpool.Handle

	// andTermToPTerm caches the par PTerm built for a given netlist
	// AndTerm node, so references from multiple facets resolve to the
	// same pool entry.
	andTermToPTerm map[objpool.Handle]objpool.Handle
}

// FromIntermediate converts a constructed intermediate graph into the
// PAR-oriented InputGraph (spec.md §3).
func FromIntermediate(g *netlist.Graph, dev xc2device.Device) (*InputGraph, error) {
	mcells, err := netlist.GatherMacrocells(g)
	if err != nil {
		return nil, err
	}

	b := &builder{
		g:              g,
		dev:            dev,
		mcs:            objpool.New[Macrocell](),
		pterms:         objpool.New[PTerm](),
		bufgClks:       objpool.New[BufgClk](),
		bufgGTSs:       objpool.New[BufgGTS](),
		bufgGSRs:       objpool.New[BufgGSR](),
		nodeToMC:       map[objpool.Handle]objpool.Handle{},
		bufgClkNode:    map[objpool.Handle]objpool.Handle{},
		bufgGTSNode:    map[objpool.Handle]objpool.Handle{},
		bufgGSRNode:    map[objpool.Handle]objpool.Handle{},
		andTermToPTerm: map[objpool.Handle]objpool.Handle{},
	}

	if err := b.phase1CreateMacrocells(mcells); err != nil {
		return nil, err
	}
	if err := b.phase2CreateBufgs(); err != nil {
		return nil, err
	}
	if err := b.phase3FillFacets(mcells); err != nil {
		return nil, err
	}
	if err := b.phase4FillBufgInputs(); err != nil {
		return nil, err
	}
	b.phase5ComputeFeedbackUsed()

	return &InputGraph{
		Dev:      dev,
		MCs:      b.mcs,
		PTerms:   b.pterms,
		BufgClks: b.bufgClks,
		BufgGTSs: b.bufgGTSs,
		BufgGSRs: b.bufgGSRs,
	}, nil
}

func (b *builder) node(h objpool.Handle) *netlist.Node { return b.g.Nodes.Get(h) }
func (b *builder) net(h objpool.Handle) *netlist.Net   { return b.g.Nets.Get(h) }

// phase1CreateMacrocells creates one par Macrocell per gathered netlist
// macrocell and populates nodeToMC for every node a fanin can resolve
// back to.
func (b *builder) phase1CreateMacrocells(mcells []netlist.Macrocell) error {
	for _, mc := range mcells {
		switch v := mc.(type) {
		case netlist.PinOutput:
			node := b.node(v.Node)
			h := b.mcs.Insert(Macrocell{Type: TypePinOutput, RequestedLoc: node.Location})
			b.nodeToMC[v.Node] = h
			// The Xor and Reg behind the pad belong to this same
			// macrocell; fanins elsewhere in the design resolve to it.
			b.mapPinOutputChain(v.Node, h)

		case netlist.BuriedComb:
			node := b.node(v.Node)
			h := b.mcs.Insert(Macrocell{Type: TypeBuriedComb, RequestedLoc: node.Location})
			b.nodeToMC[v.Node] = h

		case netlist.BuriedReg:
			node := b.node(v.Node)
			// HasCombFB means the XOR output fans out past the register,
			// so the combinatorial feedback path is already spoken for.
			h := b.mcs.Insert(Macrocell{Type: TypeBuriedReg, RequestedLoc: node.Location, XorFeedbackUsed: v.HasCombFB})
			b.nodeToMC[v.Node] = h
			xorHandle, err := b.drivingXor(v.Node)
			if err != nil {
				return err
			}
			b.nodeToMC[xorHandle] = h

		case netlist.PinInputReg:
			node := b.node(v.Node)
			h := b.mcs.Insert(Macrocell{Type: TypePinInputReg, RequestedLoc: node.Location})
			b.nodeToMC[v.Node] = h
			inbuf := node.Variant.(netlist.InBuf)
			for _, sink := range b.net(inbuf.Output).Sinks {
				if _, ok := b.node(sink.Node).Variant.(netlist.Reg); ok {
					b.nodeToMC[sink.Node] = h
				}
			}

		case netlist.PinInputUnreg:
			node := b.node(v.Node)
			h := b.mcs.Insert(Macrocell{Type: TypePinInputUnreg, RequestedLoc: node.Location})
			b.nodeToMC[v.Node] = h

		default:
			panic(fmt.Sprintf("par: unhandled netlist.Macrocell variant %T", v))
		}
	}
	return nil
}

// mapPinOutputChain walks back from an IOBuf the way GatherMacrocells
// pass 1 did (the shapes were already validated there) and attributes
// the driving Xor and Reg nodes to the pad's macrocell.
func (b *builder) mapPinOutputChain(iobufHandle objpool.Handle, mc objpool.Handle) {
	iobuf := b.node(iobufHandle).Variant.(netlist.IOBuf)
	if iobuf.Input == nil {
		return
	}
	src := b.net(*iobuf.Input).Source
	if src == nil {
		return
	}
	switch dv := b.node(src.Node).Variant.(type) {
	case netlist.Xor:
		b.nodeToMC[src.Node] = mc
	case netlist.Reg:
		b.nodeToMC[src.Node] = mc
		if regSrc := b.net(dv.DTInput).Source; regSrc != nil {
			if _, ok := b.node(regSrc.Node).Variant.(netlist.Xor); ok {
				b.nodeToMC[regSrc.Node] = mc
			}
		}
	}
}

// drivingXor returns the netlist node handle of the Xor that drives regHandle's D/T input.
func (b *builder) drivingXor(regHandle objpool.Handle) (objpool.Handle, error) {
	reg := b.node(regHandle).Variant.(netlist.Reg)
	src := b.net(reg.DTInput).Source
	if src == nil {
		return 0, fmt.Errorf("%w: register %s data input has no driver", netlist.ErrBadShape, b.node(regHandle).Name)
	}
	if _, ok := b.node(src.Node).Variant.(netlist.Xor); !ok {
		return 0, fmt.Errorf("%w: buried register %s data input is not driven by an Xor", netlist.ErrBadShape, b.node(regHandle).Name)
	}
	return src.Node, nil
}

// phase2CreateBufgs creates one par Bufg entry per netlist Bufg node,
// leaving Input unresolved (filled in phase4, once nodeToMC covers every
// fanin source).
func (b *builder) phase2CreateBufgs() error {
	var outerErr error
	b.g.Nodes.Each(func(h objpool.Handle, node *netlist.Node) {
		if outerErr != nil {
			return
		}
		switch v := node.Variant.(type) {
		case netlist.BufgClk:
			ph := b.bufgClks.Insert(BufgClk{RequestedLoc: node.Location})
			b.bufgClkNode[h] = ph
		case netlist.BufgGTS:
			ph := b.bufgGTSs.Insert(BufgGTS{RequestedLoc: node.Location, Invert: v.Invert})
			b.bufgGTSNode[h] = ph
		case netlist.BufgGSR:
			ph := b.bufgGSRs.Insert(BufgGSR{RequestedLoc: node.Location, Invert: v.Invert})
			b.bufgGSRNode[h] = ph
		}
	})
	return outerErr
}

// phase4FillBufgInputs resolves each global buffer's driving macrocell.
func (b *builder) phase4FillBufgInputs() error {
	var err error
	b.g.Nodes.Each(func(h objpool.Handle, node *netlist.Node) {
		if err != nil {
			return
		}
		switch v := node.Variant.(type) {
		case netlist.BufgClk:
			mc, e := b.resolveDriverMC(v.Input)
			if e != nil {
				err = e
				return
			}
			b.bufgClks.Get(b.bufgClkNode[h]).Input = mc
		case netlist.BufgGTS:
			mc, e := b.resolveDriverMC(v.Input)
			if e != nil {
				err = e
				return
			}
			b.bufgGTSs.Get(b.bufgGTSNode[h]).Input = mc
		case netlist.BufgGSR:
			mc, e := b.resolveDriverMC(v.Input)
			if e != nil {
				err = e
				return
			}
			b.bufgGSRs.Get(b.bufgGSRNode[h]).Input = mc
		}
	})
	return err
}

// resolveDriverMC traces netHandle to its driving node and returns the
// owning par macrocell handle.
func (b *builder) resolveDriverMC(netHandle objpool.Handle) (objpool.Handle, error) {
	src := b.net(netHandle).Source
	if src == nil {
		return 0, fmt.Errorf("%w: net has no driver", netlist.ErrBadShape)
	}
	mc, ok := b.nodeToMC[src.Node]
	if !ok {
		return 0, fmt.Errorf("%w: driver %s is not a macrocell-shaped node", netlist.ErrBadShape, b.node(src.Node).Name)
	}
	return mc, nil
}

// phase3FillFacets fills in each macrocell's IO/Reg/Xor facets.
func (b *builder) phase3FillFacets(mcells []netlist.Macrocell) error {
	for _, mc := range mcells {
		switch v := mc.(type) {
		case netlist.PinOutput:
			if err := b.fillPinOutput(v.Node); err != nil {
				return err
			}
		case netlist.BuriedComb:
			if err := b.fillBuriedComb(v.Node); err != nil {
				return err
			}
		case netlist.BuriedReg:
			if err := b.fillBuriedReg(v.Node); err != nil {
				return err
			}
		case netlist.PinInputReg:
			if err := b.fillPinInput(v.Node, true); err != nil {
				return err
			}
		case netlist.PinInputUnreg:
			if err := b.fillPinInput(v.Node, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) fillPinInput(inbufHandle objpool.Handle, registered bool) error {
	mcHandle := b.nodeToMC[inbufHandle]
	m := b.mcs.Get(mcHandle)
	m.IO = &IOFacet{HasInput: false}
	if !registered {
		return nil
	}
	inbuf := b.node(inbufHandle).Variant.(netlist.InBuf)
	for _, sink := range b.net(inbuf.Output).Sinks {
		if rv, ok := b.node(sink.Node).Variant.(netlist.Reg); ok {
			facet, err := b.buildRegFacet(sink.Node, rv)
			if err != nil {
				return err
			}
			facet.DTInput = RegDataPin
			m.Reg = facet
			break
		}
	}
	return nil
}

func (b *builder) fillPinOutput(iobufHandle objpool.Handle) error {
	mcHandle := b.nodeToMC[iobufHandle]
	m := b.mcs.Get(mcHandle)
	iobuf := b.node(iobufHandle).Variant.(netlist.IOBuf)

	io := &IOFacet{HasInput: iobuf.Input != nil}
	m.IO = io

	if iobuf.OE != nil {
		oe, err := b.resolveOE(*iobuf.OE)
		if err != nil {
			return err
		}
		io.OE = oe
	}

	if iobuf.Input == nil {
		return nil
	}

	src := b.net(*iobuf.Input).Source
	driver := b.node(src.Node)
	switch dv := driver.Variant.(type) {
	case netlist.Xor:
		xor, err := b.buildXorFacet(src.Node, dv)
		if err != nil {
			return err
		}
		m.Xor = xor
	case netlist.Reg:
		reg, err := b.buildRegFacet(src.Node, dv)
		if err != nil {
			return err
		}
		m.Reg = reg
		regSrc := b.net(dv.DTInput).Source
		switch regDriver := b.node(regSrc.Node).Variant.(type) {
		case netlist.Xor:
			reg.DTInput = RegDataXor
			xor, err := b.buildXorFacet(regSrc.Node, regDriver)
			if err != nil {
				return err
			}
			m.Xor = xor
		case netlist.IOBuf:
			reg.DTInput = RegDataPin
		}
	}
	return nil
}

func (b *builder) fillBuriedComb(xorHandle objpool.Handle) error {
	mcHandle := b.nodeToMC[xorHandle]
	m := b.mcs.Get(mcHandle)
	xor := b.node(xorHandle).Variant.(netlist.Xor)
	facet, err := b.buildXorFacet(xorHandle, xor)
	if err != nil {
		return err
	}
	m.Xor = facet
	return nil
}

func (b *builder) fillBuriedReg(regHandle objpool.Handle) error {
	mcHandle := b.nodeToMC[regHandle]
	m := b.mcs.Get(mcHandle)
	reg := b.node(regHandle).Variant.(netlist.Reg)
	facet, err := b.buildRegFacet(regHandle, reg)
	if err != nil {
		return err
	}
	facet.DTInput = RegDataXor
	m.Reg = facet

	xorHandle, err := b.drivingXor(regHandle)
	if err != nil {
		return err
	}
	xor := b.node(xorHandle).Variant.(netlist.Xor)
	xorFacet, err := b.buildXorFacet(xorHandle, xor)
	if err != nil {
		return err
	}
	m.Xor = xorFacet
	return nil
}

func (b *builder) buildXorFacet(xorHandle objpool.Handle, xor netlist.Xor) (*XorFacet, error) {
	facet := &XorFacet{InvertOut: xor.InvertOut}
	if xor.OrTermInput != nil {
		orNode := b.node(b.net(*xor.OrTermInput).Source.Node).Variant.(netlist.OrTerm)
		for _, andHandle := range b.orTermAndTerms(orNode) {
			pt, err := b.getOrBuildPTerm(andHandle)
			if err != nil {
				return nil, err
			}
			facet.OrTermInputs = append(facet.OrTermInputs, pt)
		}
	}
	if xor.AndTermInput != nil {
		andHandle := b.andTermFromOutput(*xor.AndTermInput)
		pt, err := b.getOrBuildPTerm(andHandle)
		if err != nil {
			return nil, err
		}
		facet.AndTermInput = &pt
	}
	return facet, nil
}

// orTermAndTerms resolves each of an OrTerm's inputs back to the AndTerm
// node driving it.
func (b *builder) orTermAndTerms(or netlist.OrTerm) []objpool.Handle {
	var out []objpool.Handle
	for _, in := range or.Inputs {
		out = append(out, b.andTermFromOutput(in))
	}
	return out
}

// andTermFromOutput traces a net back to the AndTerm node that sources it.
func (b *builder) andTermFromOutput(netHandle objpool.Handle) objpool.Handle {
	src := b.net(netHandle).Source
	return src.Node
}

func (b *builder) buildRegFacet(regHandle objpool.Handle, reg netlist.Reg) (*RegFacet, error) {
	facet := &RegFacet{
		Mode:      reg.Mode,
		ClkInv:    reg.ClkInv,
		ClkDDR:    reg.ClkDDR,
		InitState: reg.InitState,
	}

	if reg.SetInput != nil {
		rs, err := b.resolveRS(*reg.SetInput)
		if err != nil {
			return nil, err
		}
		facet.SetInput = rs
	}
	if reg.ResetInput != nil {
		rs, err := b.resolveRS(*reg.ResetInput)
		if err != nil {
			return nil, err
		}
		facet.ResetInput = rs
	}
	if reg.CEInput != nil {
		andHandle := b.andTermFromOutput(*reg.CEInput)
		pt, err := b.getOrBuildPTerm(andHandle)
		if err != nil {
			return nil, err
		}
		facet.CEInput = &pt
	}

	clkSrc := b.net(reg.ClkInput).Source
	if clkSrc == nil {
		return nil, fmt.Errorf("%w: register %s clock has no driver", netlist.ErrBadShape, b.node(regHandle).Name)
	}
	switch b.node(clkSrc.Node).Variant.(type) {
	case netlist.BufgClk:
		facet.ClkInput = ClockAssignment{IsGCK: true, GCK: b.bufgClkNode[clkSrc.Node]}
	case netlist.AndTerm:
		pt, err := b.getOrBuildPTerm(clkSrc.Node)
		if err != nil {
			return nil, err
		}
		facet.ClkInput = ClockAssignment{IsGCK: false, PTerm: pt}
	default:
		return nil, fmt.Errorf("%w: register %s clock is driven by neither a product term nor a global clock buffer", netlist.ErrBadShape, b.node(regHandle).Name)
	}

	return facet, nil
}

func (b *builder) resolveRS(netHandle objpool.Handle) (*RSAssignment, error) {
	src := b.net(netHandle).Source
	if src == nil {
		return nil, fmt.Errorf("%w: set/reset input has no driver", netlist.ErrBadShape)
	}
	switch b.node(src.Node).Variant.(type) {
	case netlist.BufgGSR:
		return &RSAssignment{IsGSR: true, GSR: b.bufgGSRNode[src.Node]}, nil
	case netlist.AndTerm:
		pt, err := b.getOrBuildPTerm(src.Node)
		if err != nil {
			return nil, err
		}
		return &RSAssignment{IsGSR: false, PTerm: pt}, nil
	default:
		return nil, fmt.Errorf("%w: set/reset input is driven by neither a product term nor a global set/reset buffer", netlist.ErrBadShape)
	}
}

func (b *builder) resolveOE(netHandle objpool.Handle) (*OEAssignment, error) {
	src := b.net(netHandle).Source
	if src == nil {
		return nil, fmt.Errorf("%w: output-enable input has no driver", netlist.ErrBadShape)
	}
	switch b.node(src.Node).Variant.(type) {
	case netlist.BufgGTS:
		return &OEAssignment{IsGTS: true, GTS: b.bufgGTSNode[src.Node]}, nil
	case netlist.AndTerm:
		pt, err := b.getOrBuildPTerm(src.Node)
		if err != nil {
			return nil, err
		}
		return &OEAssignment{IsGTS: false, PTerm: pt}, nil
	default:
		return nil, fmt.Errorf("%w: output-enable input is driven by neither a product term nor a global tri-state buffer", netlist.ErrBadShape)
	}
}

// getOrBuildPTerm returns the par PTerm handle for a netlist AndTerm node,
// building and classifying its fanins on first reference.
func (b *builder) getOrBuildPTerm(andHandle objpool.Handle) (objpool.Handle, error) {
	if h, ok := b.andTermToPTerm[andHandle]; ok {
		return h, nil
	}
	and := b.node(andHandle).Variant.(netlist.AndTerm)

	trueIns, err := b.classifyFanins(and.InputsTrue)
	if err != nil {
		return 0, err
	}
	compIns, err := b.classifyFanins(and.InputsComp)
	if err != nil {
		return 0, err
	}

	h := b.pterms.Insert(PTerm{InputsTrue: trueIns, InputsComp: compIns})
	b.andTermToPTerm[andHandle] = h
	return h, nil
}

// classifyFanins resolves each AND-term fanin (always a ZiaDummyBuf
// output, spec.md §3) back to the macrocell and kind that ultimately
// sources it.
func (b *builder) classifyFanins(fanins []objpool.Handle) ([]PTermInput, error) {
	out := make([]PTermInput, 0, len(fanins))
	for _, netHandle := range fanins {
		in, err := b.classifyFanin(netHandle)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func (b *builder) classifyFanin(netHandle objpool.Handle) (PTermInput, error) {
	zSrc := b.net(netHandle).Source
	if zSrc == nil {
		return PTermInput{}, fmt.Errorf("%w: product-term fanin has no driver", netlist.ErrBadShape)
	}
	zbuf, ok := b.node(zSrc.Node).Variant.(netlist.ZiaDummyBuf)
	if !ok {
		return PTermInput{}, fmt.Errorf("%w: product-term fanin %s is not routed through the ZIA", netlist.ErrBadShape, b.node(zSrc.Node).Name)
	}
	realSrc := b.net(zbuf.Input).Source
	if realSrc == nil {
		return PTermInput{}, fmt.Errorf("%w: product-term fanin is a constant; constant propagation is out of scope", netlist.ErrBadShape)
	}

	mcHandle, ok := b.nodeToMC[realSrc.Node]
	if !ok {
		return PTermInput{}, fmt.Errorf("%w: product-term fanin %s does not trace back to a macrocell", netlist.ErrBadShape, b.node(realSrc.Node).Name)
	}

	switch b.node(realSrc.Node).Variant.(type) {
	case netlist.Xor:
		return PTermInput{Kind: PTermInputXor, MC: mcHandle}, nil
	case netlist.Reg:
		return PTermInput{Kind: PTermInputReg, MC: mcHandle}, nil
	case netlist.InBuf, netlist.IOBuf:
		return PTermInput{Kind: PTermInputPin, MC: mcHandle}, nil
	default:
		return PTermInput{}, fmt.Errorf("%w: product-term fanin %s has an unsupported driver shape", netlist.ErrBadShape, b.node(realSrc.Node).Name)
	}
}

// phase5ComputeFeedbackUsed marks every macrocell whose own Xor facet
// reads back this same macrocell's Reg or Xor output (spec.md §4.5, §4.7;
// see SPEC_FULL.md Supplemented Features for why this is tracked).
func (b *builder) phase5ComputeFeedbackUsed() {
	b.mcs.Each(func(h objpool.Handle, m *Macrocell) {
		if m.Xor == nil {
			return
		}
		check := func(pt objpool.Handle) bool {
			p := b.pterms.Get(pt)
			for _, in := range append(append([]PTermInput{}, p.InputsTrue...), p.InputsComp...) {
				if (in.Kind == PTermInputReg || in.Kind == PTermInputXor) && in.MC == h {
					return true
				}
			}
			return false
		}
		for _, pt := range m.Xor.OrTermInputs {
			if check(pt) {
				m.XorFeedbackUsed = true
				return
			}
		}
		if m.Xor.AndTermInput != nil && check(*m.Xor.AndTermInput) {
			m.XorFeedbackUsed = true
		}
	})
}
