// Command xc2par places and routes a technology-mapped JSON netlist onto
// an XC2C32A CPLD. It is a dumb wrapper around package par: decode JSON,
// call the core, print a summary. Bitstream encoding and the netlist
// mapper that produces this JSON are out of scope (spec.md §1).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/rqou/xc2par/netlist"
	"github.com/rqou/xc2par/par"
	"github.com/rqou/xc2par/xc2device"
)

var (
	seed    = flag.Int64("seed", 1, "PRNG seed for the min-conflicts outer loop")
	devName = flag.String("device", "XC2C32A", "target device")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: xc2par [flags] <netlist.json>")
		os.Exit(2)
	}

	if err := run(args[0]); err != nil {
		glog.Errorf("xc2par: %v", err)
		os.Exit(1)
	}
}

func run(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening netlist: %w", err)
	}
	defer f.Close()

	var nl netlist.JSONNetlist
	if err := json.NewDecoder(f).Decode(&nl); err != nil {
		return fmt.Errorf("decoding netlist: %w", err)
	}

	ig, err := netlist.NewIntermediateGraph(&nl)
	if err != nil {
		return fmt.Errorf("building intermediate graph: %w", err)
	}

	if *devName != "XC2C32A" {
		return fmt.Errorf("unsupported device %q", *devName)
	}
	dev := xc2device.XC2C32A
	g, err := par.FromIntermediate(ig, dev)
	if err != nil {
		return fmt.Errorf("building input graph: %w", err)
	}

	if sanity := par.DoSanityCheck(g, dev); sanity != par.SanityOk {
		glog.V(1).Infof("sanity check failed: %v", sanity)
		return fmt.Errorf("design rejected by sanity check: %v", sanity)
	}

	result := par.RunSeeded(g, dev, *seed)
	switch result.Kind {
	case par.Success:
		rowsUsed := 0
		for _, fbres := range result.FBs {
			for _, sig := range fbres.ZIA {
				if sig != xc2device.One {
					rowsUsed++
				}
			}
		}
		fmt.Printf("placed %d macrocells and %d product terms across %d function blocks, %d ZIA rows used\n",
			g.MCs.Len(), g.PTerms.Len(), len(result.FBs), rowsUsed)
		return nil
	case par.FailureSanity:
		return fmt.Errorf("placement rejected: %v", result.Sanity)
	case par.FailureIterationsExceeded:
		return fmt.Errorf("min-conflicts search did not converge")
	default:
		return fmt.Errorf("unknown PAR result kind %d", result.Kind)
	}
}
