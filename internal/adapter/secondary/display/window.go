// Package display is the preview window. It shows live frames with the
// current overlay, freezes on request and reports key presses and the
// window closing.
package display

import (
	"context"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"

	"photobooth/internal/compositor"
	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
)

var log = logging.For("display")

// Config contains window settings.
type Config struct {
	Title      string
	Fullscreen bool
	Mirror     bool
	Width      int
	Height     int
}

// EventPublisher receives UI events.
type EventPublisher interface {
	Publish(domain.UIEvent) error
}

// Window implements domain.Display with fyne.
type Window struct {
	cfg      Config
	frames   <-chan domain.Frame
	events   EventPublisher
	preview  *compositor.Preview
	commands *eventbus.Mailbox[domain.UIControlCommand]
}

var _ domain.Display = (*Window)(nil)

// New creates the window; nothing is shown until Run.
func New(cfg Config, frames <-chan domain.Frame, events EventPublisher) *Window {
	return &Window{
		cfg:      cfg,
		frames:   frames,
		events:   events,
		preview:  compositor.NewPreview(cfg.Mirror),
		commands: eventbus.NewMailbox[domain.UIControlCommand](),
	}
}

// Control queues a preview command. It fails with
// eventbus.ErrConsumerGone once the window is gone.
func (w *Window) Control(ctx context.Context, cmd domain.UIControlCommand) error {
	return w.commands.Send(ctx, cmd)
}

// Run shows the window and blocks in the fyne event loop until the window
// is closed or ctx is cancelled. It must be called from the main goroutine.
func (w *Window) Run(ctx context.Context) error {
	defer w.commands.Close()

	fyneApp := app.New()
	win := fyneApp.NewWindow(w.cfg.Title)

	view := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, w.cfg.Width, w.cfg.Height)))
	view.FillMode = canvas.ImageFillContain
	view.ScaleMode = canvas.ImageScaleFastest
	win.SetContent(view)
	win.Resize(fyne.NewSize(float32(w.cfg.Width), float32(w.cfg.Height)))
	win.SetFullScreen(w.cfg.Fullscreen)
	win.SetPadded(false)

	win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if code, ok := keyCode(ev.Name); ok {
			w.publish(domain.KeyPressed(code))
		}
	})
	win.Canvas().SetOnTypedRune(func(r rune) {
		w.publish(domain.KeyPressed(int(r)))
	})
	win.SetOnClosed(func() {
		w.publish(domain.WindowClosed())
	})

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.pump(loopCtx, view)
	go func() {
		<-loopCtx.Done()
		if ctx.Err() != nil {
			log.Debugf("shutdown, closing window")
			fyne.Do(fyneApp.Quit)
		}
	}()

	log.Infof("showing %q (fullscreen=%v mirror=%v)", w.cfg.Title, w.cfg.Fullscreen, w.cfg.Mirror)
	win.ShowAndRun()
	return nil
}

// pump feeds frames and control commands into the preview and repaints.
func (w *Window) pump(ctx context.Context, view *canvas.Image) {
	frames := w.frames
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				log.Debugf("frame stream closed")
				frames = nil
				continue
			}
			if w.preview.Push(frame.Image) {
				w.repaint(view)
			}
		case cmd := <-w.commands.Receive():
			log.Tracef("control %s", cmd)
			apply(w.preview, cmd)
			w.repaint(view)
		}
	}
}

func apply(p *compositor.Preview, cmd domain.UIControlCommand) {
	switch cmd.Kind {
	case domain.UIBlend:
		p.SetOverlay(cmd.Overlay)
	case domain.UIFreeze:
		p.Freeze()
	case domain.UILive:
		p.Live()
	}
}

func (w *Window) repaint(view *canvas.Image) {
	img := w.preview.Render()
	if img == nil {
		return
	}
	fyne.Do(func() {
		view.Image = img
		view.Refresh()
	})
}

func (w *Window) publish(ev domain.UIEvent) {
	if err := w.events.Publish(ev); err != nil {
		log.Warnf("%s not delivered: %v", ev, err)
	}
}

// keyCode maps named keys to the codes the coordinator understands.
func keyCode(name fyne.KeyName) (int, bool) {
	switch name {
	case fyne.KeyReturn, fyne.KeyEnter:
		return domain.KeyEnter, true
	case fyne.KeyEscape:
		return domain.KeyEscape, true
	}
	return 0, false
}
