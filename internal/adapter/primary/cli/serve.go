package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"photobooth/internal/adapter/primary/mqtt"
	"photobooth/internal/adapter/primary/web"
	"photobooth/internal/adapter/secondary/capture"
	"photobooth/internal/adapter/secondary/chime"
	"photobooth/internal/adapter/secondary/display"
	"photobooth/internal/adapter/secondary/overlay"
	"photobooth/internal/adapter/secondary/repository"
	"photobooth/internal/config"
	"photobooth/internal/domain"
	"photobooth/internal/eventbus"
	"photobooth/internal/logging"
	"photobooth/internal/usecase"
)

// serveFlags override config values when set on the command line.
type serveFlags struct {
	device     string
	width      int
	height     int
	fps        int
	fullscreen bool
	noMirror   bool
	timeout    config.Delay
	between    config.Delay
	freeze     config.Delay
	output     string
	addr       string
	broker     string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booth: camera, window, countdown and remote triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			cfg, err = config.Normalize(cfg)
			if err != nil {
				return err
			}
			if err := applyLogging(cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func (f *serveFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.device, "device", "", "camera: index, /dev/videoN or \"test\"")
	fs.IntVar(&f.width, "width", 0, "live preview width")
	fs.IntVar(&f.height, "height", 0, "live preview height")
	fs.IntVar(&f.fps, "fps", 0, "live preview frame rate")
	fs.BoolVar(&f.fullscreen, "fullscreen", false, "fullscreen window")
	fs.BoolVar(&f.noMirror, "no-mirror", false, "do not mirror the preview")
	fs.Var(&f.timeout, "timeout", "time until the countdown starts, \"off\" disables it")
	fs.Var(&f.between, "timeout-between", "time between countdown steps")
	fs.Var(&f.freeze, "freeze", "how long a snapshot stays on screen")
	fs.StringVar(&f.output, "output", "", "snapshot directory")
	fs.StringVar(&f.addr, "addr", "", "HTTP trigger address, empty string disables it")
	fs.StringVar(&f.broker, "mqtt", "", "MQTT broker host:port")
}

func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Video.Device = f.device
	}
	if changed("width") {
		cfg.Video.Width = f.width
	}
	if changed("height") {
		cfg.Video.Height = f.height
	}
	if changed("fps") {
		cfg.Video.FPS = f.fps
	}
	if changed("fullscreen") {
		cfg.Display.Fullscreen = f.fullscreen
	}
	if changed("no-mirror") {
		cfg.Display.Mirror = !f.noMirror
	}
	if changed("timeout") {
		cfg.Trigger.Timeout = f.timeout
	}
	if changed("timeout-between") {
		cfg.Trigger.TimeoutBetween = f.between
	}
	if changed("freeze") {
		cfg.Freeze = f.freeze
	}
	if changed("output") {
		cfg.Output.Directory = f.output
	}
	if changed("addr") {
		cfg.Web.Addr = f.addr
	}
	if changed("mqtt") {
		cfg.MQTT.Broker = f.broker
	}
}

// serve wires every component and blocks until the booth stops. The
// window runs on the calling goroutine; everything else runs in an
// errgroup whose first error becomes the result.
func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	countdown, err := overlay.LoadCountdown(cfg.Overlays.Countdown)
	if err != nil {
		return err
	}
	snapshotOverlay := overlay.LoadOptional(cfg.Overlays.Snapshot)

	repo, err := repository.New(cfg.Output.Directory, cfg.Output.Filename, cfg.Output.JPEGQuality)
	if err != nil {
		return err
	}

	frames := eventbus.New[domain.Frame]()
	triggers := eventbus.New[domain.TriggerEvent]()
	uiEvents := eventbus.New[domain.UIEvent]()
	defer frames.Close()
	defer triggers.Close()
	defer uiEvents.Close()

	machine, err := usecase.NewMachine(cfg.Domain(), len(countdown), triggers)
	if err != nil {
		return err
	}

	// Subscribe before anything publishes.
	frameSub := frames.Subscribe()
	uiSub := uiEvents.Subscribe()
	triggerSub := triggers.Subscribe()

	window := display.New(display.Config{
		Title:      cfg.Display.Title,
		Fullscreen: cfg.Display.Fullscreen,
		Mirror:     cfg.Display.Mirror,
		Width:      cfg.Video.Width,
		Height:     cfg.Video.Height,
	}, frameSub.C(), uiEvents)

	camera, err := capture.Open(capture.Config{
		Device:         cfg.Video.Device,
		Width:          cfg.Video.Width,
		Height:         cfg.Video.Height,
		FPS:            cfg.Video.FPS,
		SnapshotWidth:  cfg.Video.SnapshotWidth,
		SnapshotHeight: cfg.Video.SnapshotHeight,
	}, frames)
	if err != nil {
		return err
	}

	opts := usecase.Options{
		Camera:            camera,
		Display:           window,
		Store:             repo,
		CountdownOverlays: countdown,
		SnapshotOverlay:   snapshotOverlay,
		BlendOnSave:       cfg.Output.BlendOverlay,
		Freeze:            cfg.Freeze.Duration,
		UIEvents:          uiSub.C(),
		TriggerEvents:     triggerSub.C(),
	}
	control, state := machinePorts(machine)
	opts.Trigger = control
	coordinator, err := usecase.NewCoordinator(opts)
	if err != nil {
		camera.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return camera.Run(gctx) })
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error {
		// The coordinator decides when the booth is done.
		defer cancel()
		return coordinator.Run(gctx)
	})

	if cfg.Web.Addr != "" {
		srv := web.NewServer(cfg.Web.Addr, triggers, coordinator, state)
		g.Go(func() error { return srv.Run(gctx) })
		fmt.Printf("Photobooth trigger at http://%s/trigger\n", cfg.Web.Addr)
	}
	if cfg.MQTT.Broker != "" {
		listener := mqtt.NewListener(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
		}, triggers, control)
		g.Go(func() error { return listener.Run(gctx) })
	}
	if player := openChime(cfg.Sounds); player != nil {
		chimeSub := triggers.Subscribe()
		g.Go(func() error {
			defer chimeSub.Close()
			return player.Run(gctx, chimeSub.C())
		})
	}

	logging.Infof("booth running: camera %s, %d countdown steps, trigger %s",
		cfg.Video.Device, len(countdown), cfg.Trigger.Timeout)

	if err := window.Run(gctx); err != nil {
		cancel()
		g.Wait()
		return err
	}
	cancel()
	return g.Wait()
}

// machinePorts exposes the machine to the other components. A disabled
// machine exits right away, so it gets neither commands nor a state view.
func machinePorts(m *usecase.Machine) (domain.TriggerControl, web.StateProvider) {
	if m.Disabled() {
		return nil, nil
	}
	return m, m
}

// openChime returns nil when no sounds are configured or audio is unavailable.
func openChime(sounds config.SoundsConfig) *chime.Player {
	player, err := chime.Load(sounds.Countdown, sounds.Trigger)
	if err != nil {
		logging.Warnf("sounds disabled: %v", err)
		return nil
	}
	if player.Silent() {
		return nil
	}
	if err := player.Open(); err != nil {
		logging.Warnf("audio disabled: %v", err)
		return nil
	}
	return player
}
