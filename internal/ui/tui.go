package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/jroimartin/gocui"
	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
)

const (
	messagesView = "messages"
	statusView   = "status"
	inputView    = "input"
)

// TUI is a full-screen gocui renderer with a message log, a status bar and
// an input line that is read-only while disconnected.
type TUI struct {
	gui     *gocui.Gui
	session *room.Session
	ctx     context.Context
	notice  string
}

// NewTUI creates the terminal interface for s. Close must be called to
// restore the terminal.
func NewTUI(ctx context.Context, s *room.Session) (*TUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	t := &TUI{gui: g, session: s, ctx: ctx}
	g.Cursor = true
	g.SetManagerFunc(t.layout)
	return t, nil
}

func (t *TUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	msgHeight := maxY - 7

	if v, err := g.SetView(messagesView, 0, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
		t.renderMessages(v)
	}

	if v, err := g.SetView(statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Wrap = true
		t.renderStatus(v)
	}

	if v, err := g.SetView(inputView, 0, msgHeight+4, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Input"
		v.Wrap = true
		v.Editable = t.session.Connected()

		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
	}
	return nil
}

func (t *TUI) renderMessages(v *gocui.View) {
	v.Clear()
	username := t.session.Username()
	for _, msg := range t.session.Messages() {
		fmt.Fprintln(v, FormatMessage(msg, username))
	}
}

func (t *TUI) renderStatus(v *gocui.View) {
	v.Clear()
	status := FormatStatus(t.session.View())
	if t.notice != "" {
		status += " | " + t.notice
	}
	fmt.Fprint(v, status+" | Ctrl-C: quit")
}

// refresh redraws every view from the session snapshot. It must run on
// the gocui loop.
func (t *TUI) refresh(g *gocui.Gui) error {
	if v, err := g.View(messagesView); err == nil {
		t.renderMessages(v)
	}
	if v, err := g.View(statusView); err == nil {
		t.renderStatus(v)
	}
	if v, err := g.View(inputView); err == nil {
		v.Editable = t.session.Connected()
	}
	return nil
}

func (t *TUI) keybindings() error {
	if err := t.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	return t.gui.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, t.handleInput)
}

func (t *TUI) handleInput(g *gocui.Gui, v *gocui.View) error {
	cmd := ParseCommand(v.Buffer())
	v.Clear()
	_ = v.SetCursor(0, 0)
	t.notice = ""

	switch cmd.Kind {
	case CommandQuit:
		return gocui.ErrQuit
	case CommandJoin:
		req := room.JoinRequest{Room: cmd.Arg, Username: t.session.Username()}
		if err := t.session.SwitchRoom(t.ctx, req); err != nil {
			var verr *room.ValidationError
			if errors.As(err, &verr) {
				t.notice = "Usage: /join <room>"
			} else {
				t.notice = err.Error()
			}
		}
	case CommandUnknown:
		t.notice = "Unknown command " + cmd.Arg
	case CommandMessage:
		if cmd.Arg == "" {
			break
		}
		if !t.session.Connected() {
			t.notice = "Not connected"
			break
		}
		if err := t.session.SubmitMessage(cmd.Arg); err != nil {
			t.notice = err.Error()
		}
	}
	return t.refresh(g)
}

// Run shows the interface until the user quits.
func (t *TUI) Run() error {
	if err := t.keybindings(); err != nil {
		return err
	}

	t.session.OnMessage(func(room.ChatMessage) { t.gui.Update(t.refresh) })
	t.session.OnStateChange(func(session.State) { t.gui.Update(t.refresh) })
	go func() {
		<-t.ctx.Done()
		t.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}()

	if err := t.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// Close restores the terminal.
func (t *TUI) Close() {
	t.gui.Close()
}
