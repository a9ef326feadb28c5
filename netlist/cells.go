package netlist

import (
	"fmt"

	"github.com/rqou/xc2par/objpool"
)

type bitToNetFunc func(BitVal) (objpool.Handle, error)

func numericParam(cell *JSONCell, name string) (int64, error) {
	v, ok := cell.Parameters[name]
	if !ok {
		return 0, fmt.Errorf("%w: required parameter %q missing", ErrBadConnection, name)
	}
	if !v.IsNumber {
		return 0, fmt.Errorf("%w: parameter %q is not a number", ErrBadConnection, name)
	}
	return v.Number, nil
}

func optionalStringParam(cell *JSONCell, name string) *string {
	v, ok := cell.Parameters[name]
	if !ok || v.IsNumber {
		return nil
	}
	s := v.String
	return &s
}

func singleRequiredConnection(cell *JSONCell, name string, toNet bitToNetFunc) (objpool.Handle, error) {
	conn, ok := cell.Connections[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing required connection %q", ErrBadConnection, name)
	}
	if len(conn) != 1 {
		return 0, fmt.Errorf("%w: connection %q has more than one bit", ErrBadConnection, name)
	}
	return toNet(conn[0])
}

func singleOptionalConnection(cell *JSONCell, name string, toNet bitToNetFunc) (*objpool.Handle, error) {
	conn, ok := cell.Connections[name]
	if !ok {
		return nil, nil
	}
	if len(conn) != 1 {
		return nil, fmt.Errorf("%w: connection %q has more than one bit", ErrBadConnection, name)
	}
	h, err := toNet(conn[0])
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func multipleRequiredConnection(cell *JSONCell, name string, toNet bitToNetFunc) ([]objpool.Handle, error) {
	conn, ok := cell.Connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing required connection %q", ErrBadConnection, name)
	}
	result := make([]objpool.Handle, 0, len(conn))
	for _, bit := range conn {
		h, err := toNet(bit)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, nil
}

// ziaBufferFanins interposes a fresh ZiaDummyBuf on every fanin net,
// reserving a ZIA-row routing decision for each one (spec.md §3, §4.2
// step 5), and returns the post-buffer nets to wire into the AndTerm.
func ziaBufferFanins(nodes *objpool.Pool[Node], cellName string, fanins []objpool.Handle, nets *objpool.Pool[Net]) []objpool.Handle {
	out := make([]objpool.Handle, len(fanins))
	for i, before := range fanins {
		after := nets.Insert(Net{})
		nodes.Insert(Node{
			Name: fmt.Sprintf("__ziabuf_%s_%d", cellName, i),
			Variant: ZiaDummyBuf{
				Input:  before,
				Output: after,
			},
		})
		out[i] = after
	}
	return out
}

func instantiateCell(nodes *objpool.Pool[Node], nets *objpool.Pool[Net], cellName string, cell JSONCell, toNet bitToNetFunc) error {
	loc, err := ParseLocation(optionalStringParam(&cell, "LOC"))
	if err != nil {
		return err
	}

	switch cell.CellType {
	case "IOBUFE":
		input, err := singleOptionalConnection(&cell, "I", toNet)
		if err != nil {
			return err
		}
		oe, err := singleOptionalConnection(&cell, "E", toNet)
		if err != nil {
			return err
		}
		output, err := singleOptionalConnection(&cell, "O", toNet)
		if err != nil {
			return err
		}
		nodes.Insert(Node{
			Name:     cellName,
			Variant:  IOBuf{Input: input, OE: oe, Output: output},
			Location: loc,
		})

	case "IBUF":
		output, err := singleRequiredConnection(&cell, "O", toNet)
		if err != nil {
			return err
		}
		nodes.Insert(Node{
			Name:     cellName,
			Variant:  InBuf{Output: output},
			Location: loc,
		})

	case "ANDTERM":
		numTrue, err := numericParam(&cell, "TRUE_INP")
		if err != nil {
			return err
		}
		numComp, err := numericParam(&cell, "COMP_INP")
		if err != nil {
			return err
		}
		inputsTrue, err := multipleRequiredConnection(&cell, "IN", toNet)
		if err != nil {
			return err
		}
		inputsComp, err := multipleRequiredConnection(&cell, "IN_B", toNet)
		if err != nil {
			return err
		}
		if int(numTrue) != len(inputsTrue) || int(numComp) != len(inputsComp) {
			return fmt.Errorf("%w: ANDTERM %s has a mismatched number of inputs", ErrBadConnection, cellName)
		}
		output, err := singleRequiredConnection(&cell, "OUT", toNet)
		if err != nil {
			return err
		}
		inputsTrue = ziaBufferFanins(nodes, cellName, inputsTrue, nets)
		inputsComp = ziaBufferFanins(nodes, cellName, inputsComp, nets)
		nodes.Insert(Node{
			Name: cellName,
			Variant: AndTerm{
				InputsTrue: inputsTrue,
				InputsComp: inputsComp,
				Output:     output,
			},
			Location: loc,
		})

	case "ORTERM":
		width, err := numericParam(&cell, "WIDTH")
		if err != nil {
			return err
		}
		inputs, err := multipleRequiredConnection(&cell, "IN", toNet)
		if err != nil {
			return err
		}
		if int(width) != len(inputs) {
			return fmt.Errorf("%w: ORTERM %s has a mismatched number of inputs", ErrBadConnection, cellName)
		}
		output, err := singleRequiredConnection(&cell, "OUT", toNet)
		if err != nil {
			return err
		}
		nodes.Insert(Node{
			Name:     cellName,
			Variant:  OrTerm{Inputs: inputs, Output: output},
			Location: loc,
		})

	case "MACROCELL_XOR":
		andtermInput, err := singleOptionalConnection(&cell, "IN_PTC", toNet)
		if err != nil {
			return err
		}
		orTermInput, err := singleOptionalConnection(&cell, "IN_ORTERM", toNet)
		if err != nil {
			return err
		}
		invertOut, err := numericParam(&cell, "INVERT_OUT")
		if err != nil {
			return err
		}
		output, err := singleRequiredConnection(&cell, "OUT", toNet)
		if err != nil {
			return err
		}
		nodes.Insert(Node{
			Name: cellName,
			Variant: Xor{
				AndTermInput: andtermInput,
				OrTermInput:  orTermInput,
				InvertOut:    invertOut != 0,
				Output:       output,
			},
			Location: loc,
		})

	case "BUFG":
		input, err := singleRequiredConnection(&cell, "I", toNet)
		if err != nil {
			return err
		}
		output, err := singleRequiredConnection(&cell, "O", toNet)
		if err != nil {
			return err
		}
		nodes.Insert(Node{Name: cellName, Variant: BufgClk{Input: input, Output: output}, Location: loc})

	case "BUFGTS":
		input, err := singleRequiredConnection(&cell, "I", toNet)
		if err != nil {
			return err
		}
		output, err := singleRequiredConnection(&cell, "O", toNet)
		if err != nil {
			return err
		}
		var invert int64
		if _, ok := cell.Parameters["INVERT"]; ok {
			invert, err = numericParam(&cell, "INVERT")
			if err != nil {
				return err
			}
		}
		nodes.Insert(Node{Name: cellName, Variant: BufgGTS{Input: input, Output: output, Invert: invert != 0}, Location: loc})

	case "BUFGSR":
		input, err := singleRequiredConnection(&cell, "I", toNet)
		if err != nil {
			return err
		}
		output, err := singleRequiredConnection(&cell, "O", toNet)
		if err != nil {
			return err
		}
		var invert int64
		if _, ok := cell.Parameters["INVERT"]; ok {
			invert, err = numericParam(&cell, "INVERT")
			if err != nil {
				return err
			}
		}
		nodes.Insert(Node{Name: cellName, Variant: BufgGSR{Input: input, Output: output, Invert: invert != 0}, Location: loc})

	case "FDCP", "FDCP_N", "FDDCP", "LDCP", "LDCP_N", "FTCP", "FTCP_N", "FTDCP", "FDCPE", "FDCPE_N", "FDDCPE":
		return instantiateRegCell(nodes, cellName, cell, loc, toNet)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCell, cell.CellType)
	}

	return nil
}

func instantiateRegCell(nodes *objpool.Pool[Node], cellName string, cell JSONCell, loc *Location, toNet bitToNetFunc) error {
	var mode RegMode
	switch cell.CellType {
	case "FDCP", "FDCP_N", "FDDCP":
		mode = RegDFF
	case "LDCP", "LDCP_N":
		mode = RegLatch
	case "FTCP", "FTCP_N", "FTDCP":
		mode = RegTFF
	case "FDCPE", "FDCPE_N", "FDDCPE":
		mode = RegDFFCE
	}

	clkinv := false
	switch cell.CellType {
	case "FDCP_N", "LDCP_N", "FTCP_N", "FDCPE_N":
		clkinv = true
	}

	clkddr := false
	switch cell.CellType {
	case "FDDCP", "FTDCP", "FDDCPE":
		clkddr = true
	}

	var ceInput *objpool.Handle
	if mode == RegDFFCE {
		h, err := singleRequiredConnection(&cell, "CE", toNet)
		if err != nil {
			return err
		}
		ceInput = &h
	}

	dtName := "D"
	if mode == RegTFF {
		dtName = "T"
	}
	clkName := "C"
	if mode == RegLatch {
		clkName = "G"
	}

	initState, err := numericParam(&cell, "INIT")
	if err != nil {
		return err
	}
	setInput, err := singleOptionalConnection(&cell, "PRE", toNet)
	if err != nil {
		return err
	}
	resetInput, err := singleOptionalConnection(&cell, "CLR", toNet)
	if err != nil {
		return err
	}
	dtInput, err := singleRequiredConnection(&cell, dtName, toNet)
	if err != nil {
		return err
	}
	clkInput, err := singleRequiredConnection(&cell, clkName, toNet)
	if err != nil {
		return err
	}
	output, err := singleRequiredConnection(&cell, "Q", toNet)
	if err != nil {
		return err
	}

	nodes.Insert(Node{
		Name: cellName,
		Variant: Reg{
			Mode:       mode,
			ClkInv:     clkinv,
			ClkDDR:     clkddr,
			InitState:  initState != 0,
			SetInput:   setInput,
			ResetInput: resetInput,
			CEInput:    ceInput,
			DTInput:    dtInput,
			ClkInput:   clkInput,
			Output:     output,
		},
		Location: loc,
	})
	return nil
}

// hookNode wires a node's inputs as sinks on their nets and sets the
// node's output as the source of its net (spec.md §4.2 step 6).
func hookNode(nets *objpool.Pool[Net], idx objpool.Handle, node *Node, setSource func(objpool.Handle, Endpoint) error) error {
	switch v := node.Variant.(type) {
	case AndTerm:
		for _, in := range v.InputsTrue {
			addSink(nets, in, idx, "IN")
		}
		for _, in := range v.InputsComp {
			addSink(nets, in, idx, "IN")
		}
		return setSource(v.Output, Endpoint{Node: idx, Port: "OUT"})

	case OrTerm:
		for _, in := range v.Inputs {
			addSink(nets, in, idx, "IN")
		}
		return setSource(v.Output, Endpoint{Node: idx, Port: "OUT"})

	case Xor:
		if v.OrTermInput != nil {
			addSink(nets, *v.OrTermInput, idx, "IN_ORTERM")
		}
		if v.AndTermInput != nil {
			addSink(nets, *v.AndTermInput, idx, "IN_PTC")
		}
		return setSource(v.Output, Endpoint{Node: idx, Port: "OUT"})

	case Reg:
		if v.SetInput != nil {
			addSink(nets, *v.SetInput, idx, "S")
		}
		if v.ResetInput != nil {
			addSink(nets, *v.ResetInput, idx, "R")
		}
		if v.CEInput != nil {
			addSink(nets, *v.CEInput, idx, "CE")
		}
		addSink(nets, v.DTInput, idx, "D/T")
		addSink(nets, v.ClkInput, idx, "CLK")
		return setSource(v.Output, Endpoint{Node: idx, Port: "Q"})

	case BufgClk:
		addSink(nets, v.Input, idx, "I")
		return setSource(v.Output, Endpoint{Node: idx, Port: "O"})

	case BufgGTS:
		addSink(nets, v.Input, idx, "I")
		return setSource(v.Output, Endpoint{Node: idx, Port: "O"})

	case BufgGSR:
		addSink(nets, v.Input, idx, "I")
		return setSource(v.Output, Endpoint{Node: idx, Port: "O"})

	case IOBuf:
		if v.Input != nil {
			addSink(nets, *v.Input, idx, "I")
		}
		if v.OE != nil {
			addSink(nets, *v.OE, idx, "E")
		}
		if v.Output != nil {
			return setSource(*v.Output, Endpoint{Node: idx, Port: "O"})
		}
		return nil

	case InBuf:
		return setSource(v.Output, Endpoint{Node: idx, Port: "O"})

	case ZiaDummyBuf:
		addSink(nets, v.Input, idx, "IN")
		return setSource(v.Output, Endpoint{Node: idx, Port: "OUT"})

	default:
		panic(fmt.Sprintf("netlist: unhandled NodeVariant %T", v))
	}
}

func addSink(nets *objpool.Pool[Net], net objpool.Handle, node objpool.Handle, port string) {
	n := nets.Get(net)
	n.Sinks = append(n.Sinks, Endpoint{Node: node, Port: port})
}
