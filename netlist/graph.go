package netlist

import (
	"fmt"
	"sort"

	"github.com/rqou/xc2par/objpool"
)

// Graph is the intermediate graph lifted from an external netlist: a
// typed node/net bipartite graph where every node is a tagged variant
// from NodeVariant's closed set and every net records its unique source
// and all sinks (spec.md §3). Two sentinel nets, VddNet and VssNet, are
// always present and never have a source.
type Graph struct {
	Nodes  *objpool.Pool[Node]
	Nets   *objpool.Pool[Net]
	VddNet objpool.Handle
	VssNet objpool.Handle
}

const (
	vddNetName = "<internal virtual Vdd net>"
	vssNetName = "<internal virtual Vss net>"
)

// NewIntermediateGraph builds a Graph from a decoded JSON netlist,
// following spec.md §4.2's seven construction steps in stable key order
// so that results are reproducible across runs.
func NewIntermediateGraph(nl *JSONNetlist) (*Graph, error) {
	_, top, err := findTopModule(nl)
	if err != nil {
		return nil, err
	}

	modulePorts := collectModulePorts(top)

	nets := objpool.New[Net]()
	name := vddNetName
	vddNet := nets.Insert(Net{Name: &name})
	name2 := vssNetName
	vssNet := nets.Insert(Net{Name: &name2})

	netMap := map[int]objpool.Handle{}

	cellNames := sortedKeys(top.Cells)

	// Step 3: intern a net for every bit identifier not on a module port,
	// in stable cell/connection-name order.
	for _, cellName := range cellNames {
		cell := top.Cells[cellName]
		for _, connName := range sortedKeys(cell.Connections) {
			for _, bit := range cell.Connections[connName] {
				if !bit.IsNet || modulePorts[bit.Net] {
					continue
				}
				if _, ok := netMap[bit.Net]; !ok {
					netMap[bit.Net] = nets.Insert(Net{})
				}
			}
		}
	}

	// Step 4: walk declared net names, annotating interned nets and
	// adding any dangling ones.
	for _, netnameName := range sortedKeys(top.Netnames) {
		netnameName := netnameName
		netnameObj := top.Netnames[netnameName]
		for _, bit := range netnameObj.Bits {
			if !bit.IsNet || modulePorts[bit.Net] {
				continue
			}
			if h, ok := netMap[bit.Net]; ok {
				nets.Get(h).Name = &netnameName
			} else {
				netMap[bit.Net] = nets.Insert(Net{Name: &netnameName})
			}
		}
	}

	bitToNet := func(bit BitVal) (objpool.Handle, error) {
		if bit.IsNet {
			h, ok := netMap[bit.Net]
			if !ok {
				return 0, fmt.Errorf("%w: reference to unknown net %d", ErrBadConnection, bit.Net)
			}
			return h, nil
		}
		switch bit.Special {
		case SpecialZero:
			return vssNet, nil
		case SpecialOne:
			return vddNet, nil
		default:
			return 0, fmt.Errorf("%w: illegal x/z bit value", ErrBadConnection)
		}
	}

	nodes := objpool.New[Node]()

	// Step 5: instantiate node variants.
	for _, cellName := range cellNames {
		cell := top.Cells[cellName]
		if err := instantiateCell(nodes, nets, cellName, cell, bitToNet); err != nil {
			return nil, err
		}
	}

	// Step 6: hook up sources and sinks.
	setSource := func(output objpool.Handle, ep Endpoint) error {
		net := nets.Get(output)
		if net.Source != nil {
			return fmt.Errorf("%w: %s", ErrMultiDriver, derefName(net.Name))
		}
		net.Source = &ep
		return nil
	}

	var hookErr error
	nodes.Each(func(nodeIdx objpool.Handle, node *Node) {
		if hookErr != nil {
			return
		}
		hookErr = hookNode(nets, nodeIdx, node, setSource)
	})
	if hookErr != nil {
		return nil, hookErr
	}

	// Step 7: verify every non-sentinel net has a source.
	var undriven error
	nets.Each(func(h objpool.Handle, net *Net) {
		if undriven != nil || h == vddNet || h == vssNet {
			return
		}
		if net.Source == nil {
			undriven = fmt.Errorf("%w: %s", ErrUndriven, derefName(net.Name))
		}
	})
	if undriven != nil {
		return nil, undriven
	}

	return &Graph{Nodes: nodes, Nets: nets, VddNet: vddNet, VssNet: vssNet}, nil
}

func derefName(s *string) string {
	if s == nil {
		return "<unnamed>"
	}
	return *s
}

func findTopModule(nl *JSONNetlist) (string, *JSONModule, error) {
	var topName string
	found := false
	for _, modName := range sortedKeys(nl.Modules) {
		mod := nl.Modules[modName]
		if attr, ok := mod.Attributes["top"]; ok && attr.IsNumber && attr.Number != 0 {
			if found {
				return "", nil, ErrMultipleTop
			}
			found = true
			topName = modName
		}
	}
	if !found {
		return "", nil, ErrNoTop
	}
	top := nl.Modules[topName]
	return topName, &top, nil
}

func collectModulePorts(top *JSONModule) map[int]bool {
	ports := map[int]bool{}
	for _, portName := range sortedKeys(top.Ports) {
		for _, bit := range top.Ports[portName].Bits {
			if bit.IsNet {
				ports[bit.Net] = true
			}
		}
	}
	return ports
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
