package main

import (
	"context"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.design/x/clipboard"

	"github.com/saturn-mips/saturn/internal/device"
)

// framePerTick bounds how many instructions Update executes per
// ebiten frame, the same bounded-resume shape runHeadless and the REPL
// use for RunBatch, just sized to leave room for a ~60Hz redraw.
const framePerTick = 1 << 14

// guiWindow is an ebiten.Game driving one Device: it redraws the
// framebuffer region every frame and forwards keyboard/clipboard input
// into the device's keyboard. Grounded on video_backend_ebiten.go's
// EbitenOutput, narrowed to a single fixed-size window (no fullscreen
// toggle, no fixed-format swap) since the framebuffer is always one
// RGBA8888 region of a known size.
type guiWindow struct {
	dev     *device.Device
	console *bufferedConsole
	fbAddr  uint32
	width   int
	height  int

	image      *ebiten.Image
	firstBatch bool
	stopped    bool

	clipboardOnce sync.Once
	clipboardOK   bool
}

func newGUIWindow(dev *device.Device, console *bufferedConsole, fbAddr uint32, width, height int) *guiWindow {
	return &guiWindow{dev: dev, console: console, fbAddr: fbAddr, width: width, height: height, firstBatch: true}
}

func (g *guiWindow) run(title string) error {
	ebiten.SetWindowSize(g.width*2, g.height*2)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)
	return ebiten.RunGame(g)
}

func (g *guiWindow) Update() error {
	if ebiten.IsWindowBeingClosed() {
		g.dev.Pause()
		return ebiten.Termination
	}
	g.handleKeyboardInput()

	if !g.stopped {
		result := g.dev.RunBatch(context.Background(), framePerTick, g.firstBatch)
		g.firstBatch = false
		g.console.Flush()
		switch result.Kind {
		case device.ResumeBreakpoint, device.ResumeFinished, device.ResumeInvalid:
			g.stopped = true
		}
	}
	return nil
}

func (g *guiWindow) Draw(screen *ebiten.Image) {
	if g.image == nil {
		g.image = ebiten.NewImage(g.width, g.height)
	}
	if pixels, ok := g.dev.ReadDisplay(g.fbAddr, uint32(g.width), uint32(g.height)); ok {
		g.image.WritePixels(pixels)
	}
	screen.DrawImage(g.image, nil)
}

func (g *guiWindow) Layout(_, _ int) (int, int) {
	return g.width, g.height
}

func (g *guiWindow) handleKeyboardInput() {
	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)

	if ctrl && shift && inpututil.IsKeyJustPressed(ebiten.KeyV) {
		g.handleClipboardPaste()
	}

	for _, r := range ebiten.AppendInputChars(nil) {
		if r > 0 && r <= 0xFF {
			g.dev.PostKey(byte(r), false)
		}
	}

	for _, key := range specialKeys {
		if inpututil.IsKeyJustPressed(key) {
			if seq, ok := translateSpecialKey(key); ok {
				for _, b := range seq {
					g.dev.PostKey(b, false)
				}
			}
		}
	}
}

var specialKeys = []ebiten.Key{
	ebiten.KeyEnter,
	ebiten.KeyNumpadEnter,
	ebiten.KeyBackspace,
	ebiten.KeyTab,
	ebiten.KeyEscape,
	ebiten.KeyArrowUp,
	ebiten.KeyArrowDown,
	ebiten.KeyArrowRight,
	ebiten.KeyArrowLeft,
	ebiten.KeyHome,
	ebiten.KeyEnd,
	ebiten.KeyDelete,
}

func translateSpecialKey(key ebiten.Key) ([]byte, bool) {
	switch key {
	case ebiten.KeyEnter, ebiten.KeyNumpadEnter:
		return []byte{'\n'}, true
	case ebiten.KeyBackspace:
		return []byte{'\b'}, true
	case ebiten.KeyTab:
		return []byte{'\t'}, true
	case ebiten.KeyEscape:
		return []byte{0x1B}, true
	case ebiten.KeyArrowUp:
		return []byte{0x1B, '[', 'A'}, true
	case ebiten.KeyArrowDown:
		return []byte{0x1B, '[', 'B'}, true
	case ebiten.KeyArrowRight:
		return []byte{0x1B, '[', 'C'}, true
	case ebiten.KeyArrowLeft:
		return []byte{0x1B, '[', 'D'}, true
	case ebiten.KeyHome:
		return []byte{0x1B, '[', 'H'}, true
	case ebiten.KeyEnd:
		return []byte{0x1B, '[', 'F'}, true
	case ebiten.KeyDelete:
		return []byte{0x1B, '[', '3', '~'}, true
	default:
		return nil, false
	}
}

func (g *guiWindow) handleClipboardPaste() {
	g.clipboardOnce.Do(func() {
		g.clipboardOK = clipboard.Init() == nil
	})
	if !g.clipboardOK {
		return
	}
	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return
	}
	g.dev.PostInput(normalizePasteText(data))
}

func normalizePasteText(raw []byte) []byte {
	norm := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\r' {
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			norm = append(norm, '\n')
			continue
		}
		norm = append(norm, raw[i])
	}
	if len(norm) > 4096 {
		norm = norm[:4096]
	}
	return norm
}
