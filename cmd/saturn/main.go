// Command saturn is the console front end for the MIPS32 interpreter:
// it loads an assembly or ELF program, mounts the standard memory
// layout, and either runs the program to completion, drives it from a
// raw-mode step/continue REPL, hands it to an ebiten window, or runs
// it under a Lua macro script — grounded on main.go's flag-parsed,
// mode-dispatched entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/saturn-mips/saturn/internal/assemble"
	"github.com/saturn-mips/saturn/internal/device"
	"github.com/saturn-mips/saturn/internal/elfimage"
	"github.com/saturn-mips/saturn/internal/keyboard"
	"github.com/saturn-mips/saturn/internal/memory"
	"github.com/saturn-mips/saturn/internal/syscallx"
)

// noopMIDI discards every note, used when the oto audio backend
// fails to initialize (e.g. no audio device available) so the
// interpreter can still run midi_out/midi_out_sync without a nil
// dereference.
type noopMIDI struct{}

func (noopMIDI) Play(syscallx.MIDIRequest) {}

// defaultBatchSize caps how many instructions one RunBatch call
// executes before yielding back to the host loop, sized for a console
// demo where responsiveness to Ctrl-C matters more than raw throughput.
const defaultBatchSize = 1 << 16

const (
	framebufferBase   uint32 = 0x10008000
	framebufferLimit  uint32 = 0x10010000
	stackEnd          uint32 = 0x7FFFFFFC
	fillSelectorStart uint32 = 0x1000
	fillSelectorEnd   uint32 = 0x8000
	fillByte          byte   = 0xCC

	regSP = 29
	regGP = 28
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "saturn:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		breakpoints = flag.String("break", "", "comma-separated list of hex breakpoint addresses (e.g. 0x400010,0x400020)")
		batchSize   = flag.Int("batch", defaultBatchSize, "instructions per resume batch")
		sandbox     = flag.String("sandbox", ".", "root directory file syscalls are confined to")
		width       = flag.Int("width", 64, "framebuffer width in pixels")
		height      = flag.Int("height", 64, "framebuffer height in pixels")
		gui         = flag.Bool("gui", false, "open an ebiten window instead of the terminal REPL")
		script      = flag.String("script", "", "run a Lua macro script against the loaded program instead of the REPL")
		headless    = flag.Bool("headless", false, "run to completion with no REPL or window")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: saturn [options] program.asm|program.elf\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	mem := memory.New()
	entry, finishedPC, fromELF, err := loadProgram(mem, path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	if err := mountStandardLayout(mem, *width, *height); err != nil {
		return err
	}

	kb := keyboard.New()
	if err := mem.MountListen(keyboard.Selector, kb); err != nil {
		return err
	}

	console := newBufferedConsole(os.Stdout)
	defer console.Flush()

	var midi syscallx.MIDI = noopMIDI{}
	if m, err := newOtoMIDI(); err != nil {
		fmt.Fprintln(os.Stderr, "saturn: MIDI disabled:", err)
	} else {
		midi = m
	}

	dev := device.New(mem, kb, entry, finishedPC, *sandbox, console, midi, systemClock{})

	sp := stackEnd
	if fromELF {
		sp -= 4 // preserve a word of slack for binary-loaded images
	}
	dev.WriteRegister(regSP, sp)
	dev.WriteRegister(regGP, framebufferBase)

	if bps, err := parseBreakpoints(*breakpoints); err != nil {
		return err
	} else if len(bps) > 0 {
		dev.SetBreakpoints(bps)
	}

	switch {
	case *script != "":
		return runMacroScript(dev, console, *script)
	case *gui:
		return newGUIWindow(dev, console, framebufferBase, *width, *height).run("saturn — " + filepath.Base(path))
	case *headless:
		return runHeadless(dev, console, *batchSize)
	default:
		return newREPL(dev, console, framebufferBase, *width, *height).run()
	}
}

func runHeadless(dev *device.Device, console *bufferedConsole, batchSize int) error {
	ctx := context.Background()
	first := true
	for {
		result := dev.RunBatch(ctx, batchSize, first)
		first = false
		console.Flush()
		switch result.Kind {
		case device.ResumeRunning:
			continue
		case device.ResumeFinished:
			os.Exit(int(result.Code))
		case device.ResumeBreakpoint:
			fmt.Fprintf(os.Stderr, "saturn: breakpoint at pc=0x%08X\n", result.Registers.PC)
			return nil
		default:
			return fmt.Errorf("%s (pc=0x%08X)", result.Message, result.Registers.PC)
		}
	}
}

// loadProgram assembles a .asm source file or reads an ELF image,
// mounting every resulting region and returning the entry PC plus the
// one-past-end address RunBatch treats as natural completion.
func loadProgram(mem *memory.SectionMemory, path string) (entry, finishedPC uint32, fromELF bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false, err
	}

	if strings.EqualFold(filepath.Ext(path), ".elf") {
		img, err := elfimage.Read(data)
		if err != nil {
			return 0, 0, false, err
		}
		var textEnd uint32
		for _, ph := range img.ProgramHeaders {
			if err := mem.Mount(&memory.Region{Start: ph.VirtualAddress, Data: ph.Data}); err != nil {
				return 0, 0, false, err
			}
			if end := ph.VirtualAddress + uint32(len(ph.Data)); ph.Flags.X && end > textEnd {
				textEnd = end
			}
		}
		return img.Entry, textEnd, true, nil
	}

	bin, err := assemble.Assemble(string(data), path)
	if err != nil {
		return 0, 0, false, err
	}
	var textEnd uint32
	for _, r := range bin.Regions {
		if err := mem.Mount(&memory.Region{Start: r.Address, Data: r.Data}); err != nil {
			return 0, 0, false, err
		}
		if end := r.Address + uint32(len(r.Data)); r.Flags.X && end > textEnd {
			textEnd = end
		}
	}
	return bin.Entry, textEnd, false, nil
}

// mountStandardLayout installs the framebuffer region and the default
// writable-fill backing for the rest of the low address space. The
// writable-fill sweep spans the same selector range as the
// framebuffer and the syscall-9 bump heap and the stack, so it skips
// whichever selector the framebuffer occupies rather than mounting
// over it; the bump heap and the stack both fall inside the swept
// range and need no region of their own.
func mountStandardLayout(mem *memory.SectionMemory, width, height int) error {
	fbSize := uint32(width) * uint32(height) * 4
	if fbSize > framebufferLimit-framebufferBase {
		return fmt.Errorf("framebuffer %dx%d exceeds the 0x%X..0x%X window", width, height, framebufferBase, framebufferLimit)
	}
	if err := mem.Mount(&memory.Region{Start: framebufferBase, Data: make([]byte, fbSize)}); err != nil {
		return err
	}
	framebufferSelector := framebufferBase >> 16

	for sel := fillSelectorStart; sel < fillSelectorEnd; sel++ {
		if sel == framebufferSelector {
			continue
		}
		if err := mem.MountWritable(sel, fillByte); err != nil {
			return err
		}
	}
	return nil
}

func parseBreakpoints(list string) ([]uint32, error) {
	if list == "" {
		return nil, nil
	}
	var out []uint32
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(part, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid breakpoint %q: %w", part, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
