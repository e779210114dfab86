// Command z80netsim loads netlist resources, runs a reset-and-run
// sequence against the switch-level simulator, and optionally dumps the
// resulting register/pin snapshot as a table.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"github.com/z80netsim/z80netsim/busadapter"
	"github.com/z80netsim/z80netsim/observe"
	"github.com/z80netsim/z80netsim/propagate"
	"github.com/z80netsim/z80netsim/resource"
	"github.com/z80netsim/z80netsim/runctl"
	"github.com/z80netsim/z80netsim/snapshot"
)

var (
	resourceDir = flag.String("resources", "", "Path to the netlist resource directory (nodenames.txt, transdefs.txt, segdefs.txt)")
	hexFile     = flag.String("hex", "", "Path to an Intel-HEX program image to load into memory before running")
	halfCycles  = flag.Uint64("run", 0, "Number of half-cycles to run after reset")
	maxNets     = flag.Int("max-nets", 4096, "Net id capacity to allocate")
	maxTrans    = flag.Int("max-transistors", 10000, "Transistor id capacity to allocate")
	historyLen  = flag.Uint64("history", 1024, "Watch history ring-buffer depth")
	dumpState   = flag.Bool("dump-state", false, "Render the register/pin snapshot as a table after running")
	verbose     = flag.Bool("v", false, "Enable debug-level logging")
)

func main() {
	flag.Parse()
	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *resourceDir == "" {
		fmt.Fprintln(os.Stderr, "z80netsim: -resources is required")
		os.Exit(2)
	}

	var loader resource.Loader
	store, err := loader.Load(*resourceDir, *maxNets, *maxTrans)
	if err != nil {
		slog.Error("resource load failed, refusing to enter Idle", "error", err)
		os.Exit(1)
	}
	for _, w := range loader.Warnings() {
		slog.Warn(w)
	}

	resource.RegisterShutdownPersistence(store, *resourceDir+"/netnames.txt")

	engine := propagate.New(store)
	bus := busadapter.New()
	rec := observe.NewRecorder(store, *historyLen)

	if *hexFile != "" {
		mem, err := resource.LoadIntelHex(*hexFile)
		if err != nil {
			slog.Error("hex load failed", "error", err)
			os.Exit(1)
		}
		for addr, v := range mem {
			bus.LoadMemory(uint16(addr), []uint8{v})
		}
	}

	bus.OnIOWrite(func(e busadapter.IOWriteEvent) {
		if e.Addr == 0x0800 && e.Echoed {
			fmt.Printf("%c", rune(e.Val))
		}
	})

	ctl := runctl.New(store, engine, bus, rec)
	ctl.Subscribe(func(e runctl.Event) {
		switch e.Kind {
		case runctl.EventRunStopped:
			slog.Info("run stopped", "id", e.ID, "half_cycle", e.HCycle)
		case runctl.EventError:
			slog.Error("simulation error", "id", e.ID, "half_cycle", e.HCycle, "error", e.Err)
		}
	})

	consumed, err := ctl.Reset()
	if err != nil {
		slog.Error("reset failed", "error", err)
		os.Exit(1)
	}
	slog.Info("reset complete", "half_cycles", consumed)

	if *halfCycles > 0 {
		done := make(chan struct{})
		ctl.Subscribe(func(e runctl.Event) {
			if e.Kind == runctl.EventRunStopped {
				close(done)
			}
		})
		if err := ctl.Run(*halfCycles); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
		<-done
	}

	if *dumpState {
		snap, err := ctl.ReadState(engine.Warnings())
		if err != nil {
			slog.Error("read_state failed", "error", err)
			os.Exit(1)
		}
		printSnapshot(snap)
	}

	atexit.Exit(0)
}

func printSnapshot(snap snapshot.Snapshot) {
	regTable := table.NewWriter()
	regTable.SetTitle(fmt.Sprintf("Registers @ H=%d", snap.HCycle))
	regTable.AppendHeader(table.Row{"af", "bc", "de", "hl", "af'", "bc'", "de'", "hl'", "ix", "iy", "sp", "ir", "wz", "pc"})
	regTable.AppendRow(table.Row{
		fmt.Sprintf("%04X", snap.Registers["af"]),
		fmt.Sprintf("%04X", snap.Registers["bc"]),
		fmt.Sprintf("%04X", snap.Registers["de"]),
		fmt.Sprintf("%04X", snap.Registers["hl"]),
		fmt.Sprintf("%04X", snap.Registers["af2"]),
		fmt.Sprintf("%04X", snap.Registers["bc2"]),
		fmt.Sprintf("%04X", snap.Registers["de2"]),
		fmt.Sprintf("%04X", snap.Registers["hl2"]),
		fmt.Sprintf("%04X", snap.Registers["ix"]),
		fmt.Sprintf("%04X", snap.Registers["iy"]),
		fmt.Sprintf("%04X", snap.Registers["sp"]),
		fmt.Sprintf("%04X", snap.Registers["ir"]),
		fmt.Sprintf("%04X", snap.Registers["wz"]),
		fmt.Sprintf("%04X", snap.Registers["pc"]),
	})
	fmt.Println(regTable.Render())

	pinTable := table.NewWriter()
	pinTable.SetTitle("Pins / Buses")
	pinTable.AppendRow(table.Row{"ab", fmt.Sprintf("%04X", snap.AB)})
	pinTable.AppendRow(table.Row{"db", fmt.Sprintf("%02X", snap.DB)})
	pinTable.AppendRow(table.Row{"instr", fmt.Sprintf("%02X", snap.Instr)})
	for _, name := range []string{"clk", "int", "nmi", "halt", "mreq", "iorq", "rd", "wr", "busak", "wait", "busrq", "reset", "m1", "rfsh"} {
		pinTable.AppendRow(table.Row{name, snap.Pins[name]})
	}
	fmt.Println(pinTable.Render())

	if len(snap.Warnings) > 0 {
		fmt.Println("Warnings:")
		for _, w := range snap.Warnings {
			fmt.Println(" -", w)
		}
	}
}
