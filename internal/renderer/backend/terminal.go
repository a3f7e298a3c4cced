// Package backend paints a rendered document tree onto a terminal.
//
// It is a read-only preview: the painter walks the tree the renderer
// produced and maps overlay wrappers to terminal styles. It never
// mutates the tree.
package backend

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Terminal wraps a tcell screen.
type Terminal struct {
	screen tcell.Screen
	mu     sync.Mutex
}

// NewTerminal creates a terminal backed by the real tty.
func NewTerminal() (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return &Terminal{screen: screen}, nil
}

// NewSimulation creates a terminal backed by an in-memory screen of the
// given size.
func NewSimulation(width, height int) (*Terminal, error) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.SetSize(width, height)
	return &Terminal{screen: screen}, nil
}

// Init prepares the screen for drawing. A simulation screen is already
// initialized.
func (t *Terminal) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.screen.(tcell.SimulationScreen); ok {
		return nil
	}
	return t.screen.Init()
}

// Shutdown restores the terminal.
func (t *Terminal) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Fini()
}

// Size returns the screen dimensions.
func (t *Terminal) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.screen.Size()
}

// SetCell draws one grapheme cluster. Positions outside the screen are
// ignored.
func (t *Terminal) SetCell(x, y int, cluster []rune, style tcell.Style) {
	if len(cluster) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.SetContent(x, y, cluster[0], cluster[1:], style)
}

// Cell returns the primary rune and style at a position.
func (t *Terminal) Cell(x, y int) (rune, tcell.Style) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mainc, _, style, _ := t.screen.GetContent(x, y) //nolint:staticcheck // GetContent is the correct API
	return mainc, style
}

// Clear clears the screen.
func (t *Terminal) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Clear()
}

// Show flushes pending changes to the display.
func (t *Terminal) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.Show()
}

// ShowCursor positions and displays the cursor.
func (t *Terminal) ShowCursor(x, y int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.ShowCursor(x, y)
}

// HideCursor hides the cursor.
func (t *Terminal) HideCursor() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screen.HideCursor()
}

// WaitKey blocks until a key is pressed or ctx is done. Resize events
// call onResize, which may repaint.
func (t *Terminal) WaitKey(ctx context.Context, onResize func()) error {
	events := make(chan tcell.Event, 1)
	quit := make(chan struct{})
	go t.screen.ChannelEvents(events, quit)
	defer close(quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.(type) {
			case *tcell.EventKey:
				return nil
			case *tcell.EventResize:
				t.mu.Lock()
				t.screen.Sync()
				t.mu.Unlock()
				if onResize != nil {
					onResize()
				}
			}
		}
	}
}
