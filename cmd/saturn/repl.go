package main

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"

	"golang.design/x/clipboard"
	"golang.org/x/image/draw"
	"golang.org/x/term"

	"github.com/saturn-mips/saturn/internal/cpu"
	"github.com/saturn-mips/saturn/internal/device"
)

// repl is a raw-mode, single-keystroke debugger front end: step,
// continue, register dump, a clipboard copy of the last dump, and a
// scaled PNG screenshot of the framebuffer. Grounded on
// terminal_host.go's MakeRaw/Restore discipline, generalized from
// stdin-to-MMIO byte routing to command dispatch.
type repl struct {
	dev      *device.Device
	console  *bufferedConsole
	fbAddr   uint32
	fbWidth  int
	fbHeight int

	last device.ResumeResult

	clipboardOnce  bool
	clipboardReady bool
}

func newREPL(dev *device.Device, console *bufferedConsole, fbAddr uint32, fbWidth, fbHeight int) *repl {
	return &repl{dev: dev, console: console, fbAddr: fbAddr, fbWidth: fbWidth, fbHeight: fbHeight}
}

func (r *repl) run() error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("repl: failed to set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	fmt.Fprint(w, "saturn debugger: [s]tep [c]ontinue [r]egisters [y]ank [p]ng [q]uit\r\n")
	w.Flush()

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return nil
		}
		switch buf[0] {
		case 's':
			r.step(w)
		case 'c':
			r.cont(w)
		case 'r':
			r.dumpRegisters(w)
		case 'y':
			r.yankRegisters(w)
		case 'p':
			r.screenshot(w)
		case 'q', 0x03: // q or Ctrl-C
			return nil
		}
		w.Flush()
	}
}

func (r *repl) step(w *bufio.Writer) {
	r.last = r.dev.RunBatch(context.Background(), 1, true)
	r.console.Flush()
	r.report(w)
}

func (r *repl) cont(w *bufio.Writer) {
	ctx := context.Background()
	first := true
	for {
		result := r.dev.RunBatch(ctx, defaultBatchSize, first)
		first = false
		r.last = result
		if result.Kind != device.ResumeRunning {
			break
		}
	}
	r.console.Flush()
	r.report(w)
}

func (r *repl) report(w *bufio.Writer) {
	switch r.last.Kind {
	case device.ResumeBreakpoint:
		fmt.Fprintf(w, "\r\nbreakpoint at pc=0x%08X\r\n", r.last.Registers.PC)
	case device.ResumeFinished:
		fmt.Fprintf(w, "\r\nfinished, exit code %d\r\n", r.last.Code)
	case device.ResumeInvalid:
		fmt.Fprintf(w, "\r\nfault: %s\r\n", r.last.Message)
	case device.ResumePaused:
		fmt.Fprint(w, "\r\npaused\r\n")
	default:
		fmt.Fprintf(w, "\r\npc=0x%08X\r\n", r.last.Registers.PC)
	}
}

func (r *repl) dumpRegisters(w *bufio.Writer) {
	fmt.Fprint(w, "\r\n"+registerDump(r.last.Registers)+"\r\n")
}

func (r *repl) yankRegisters(w *bufio.Writer) {
	r.ensureClipboard()
	if !r.clipboardReady {
		fmt.Fprint(w, "\r\nclipboard unavailable\r\n")
		return
	}
	clipboard.Write(clipboard.FmtText, []byte(registerDump(r.last.Registers)))
	fmt.Fprint(w, "\r\nregisters copied to clipboard\r\n")
}

func (r *repl) ensureClipboard() {
	if r.clipboardOnce {
		return
	}
	r.clipboardOnce = true
	r.clipboardReady = clipboard.Init() == nil
}

func registerDump(regs cpu.Registers) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pc=0x%08X hi=0x%08X lo=0x%08X", regs.PC, regs.HI, regs.LO)
	for i, name := range cpu.RegNames {
		if i%4 == 0 {
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "$%-4s=0x%08X ", name, regs.Line[i])
	}
	return b.String()
}

// screenshot renders the framebuffer, box-scales it 2x with
// golang.org/x/image/draw, and writes a numbered PNG to the working
// directory.
func (r *repl) screenshot(w *bufio.Writer) {
	pixels, ok := r.dev.ReadDisplay(r.fbAddr, uint32(r.fbWidth), uint32(r.fbHeight))
	if !ok {
		fmt.Fprint(w, "\r\nscreenshot: framebuffer unreadable\r\n")
		return
	}
	src := &image.RGBA{Pix: pixels, Stride: r.fbWidth * 4, Rect: image.Rect(0, 0, r.fbWidth, r.fbHeight)}

	scale := 2
	dst := image.NewRGBA(image.Rect(0, 0, r.fbWidth*scale, r.fbHeight*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	name := nextScreenshotName()
	f, err := os.Create(name)
	if err != nil {
		fmt.Fprintf(w, "\r\nscreenshot: %v\r\n", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		fmt.Fprintf(w, "\r\nscreenshot: %v\r\n", err)
		return
	}
	fmt.Fprintf(w, "\r\nwrote %s\r\n", name)
}

var screenshotSeq int

func nextScreenshotName() string {
	screenshotSeq++
	return "saturn-" + strconv.Itoa(screenshotSeq) + ".png"
}
