package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"handheld-hal/internal/audio"
	"handheld-hal/internal/bootreg"
	"handheld-hal/internal/core"
	"handheld-hal/internal/hardware"
	"handheld-hal/internal/input"
	"handheld-hal/internal/logger"
	"handheld-hal/internal/messaging"
)

const ampLineName = "amp-enable"

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")

	redisHost := flag.String("redis-host", "127.0.0.1", "Redis host")
	redisPort := flag.Int("redis-port", 6379, "Redis port")
	inputKind := flag.String("input", "gpio", "Input source (gpio, periph, serial, joystick)")
	serialDevice := flag.String("serial", hardware.DefaultSerialDevice, "Serial console for -input serial")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	registerPath := flag.String("register", hardware.DefaultRegisterPath, "nvmem cell holding the boot register")
	fbDevice := flag.String("fb", hardware.DefaultFramebuffer, "Framebuffer device")
	backlight := flag.String("backlight", hardware.DefaultBacklight, "Backlight sysfs directory")
	wakeup := flag.String("wakeup", hardware.DefaultWakeupPath, "Wakeup control of the power button")
	alsaDevice := flag.String("alsa", "default", "ALSA playback device")
	invertUD := flag.Bool("invert-ud", false, "Invert the joystick up/down axis")
	invertLR := flag.Bool("invert-lr", false, "Invert the joystick left/right axis")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting handheld HAL...")

	gpio := hardware.NewGPIO(l)
	defer gpio.Cleanup()

	var deps core.Deps

	source, closeSource, err := openSource(inputOptions{
		kind:            *inputKind,
		serialDevice:    *serialDevice,
		baud:            *baud,
		invertUpDown:    *invertUD,
		invertLeftRight: *invertLR,
	}, gpio, l)
	if err != nil {
		l.Fatalf("Failed to open %s input: %v", *inputKind, err)
	}
	defer closeSource()
	deps.Source = source

	if err := gpio.RequestOutput(ampLineName, hardware.AmpEnableLine, false); err != nil {
		l.Warnf("Amplifier line unavailable: %v", err)
	} else {
		deps.Amp = audio.NewAmpStage(gpio, ampLineName)
	}
	deps.Sink = audio.NewAplaySink(*alsaDevice)

	fb, err := hardware.OpenFramebuffer(*fbDevice, hardware.DefaultPanelWidth, hardware.DefaultPanelHeight, *backlight, l)
	if err != nil {
		l.Warnf("Display unavailable: %v", err)
	} else {
		defer fb.Close()
		deps.Display = fb
	}

	deps.Register = hardware.NewNVMemWord(*registerPath, 0, bootreg.Unset, l)
	deps.Platform = hardware.NewPlatform(*wakeup, l)

	redis := messaging.NewRedisClient(*redisHost, *redisPort, l.WithTag("redis"), messaging.Callbacks{})
	if err := redis.Connect(); err != nil {
		l.Warnf("Running without settings storage: %v", err)
	} else {
		deps.Storage = redis
		deps.Apps = redis
		deps.Publisher = redis
	}
	defer redis.Close()

	system := core.NewSystem(deps, core.DefaultConfig(), l)
	redis.SetCallbacks(system.Callbacks())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := system.Start(ctx); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}
	if err := system.Init(); err != nil {
		l.Fatalf("Failed to initialize system: %v", err)
	}
	l.Infof("Boot register at startup: %#08x, pending app %d", system.RTCBootupValue(), system.NewApp())

	if deps.Storage != nil {
		if err := redis.StartListening(); err != nil {
			l.Errorf("Failed to start Redis listeners: %v", err)
		}
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	cancel()
	if err := system.SoundStop(); err != nil {
		l.Warnf("Failed to stop sound: %v", err)
	}
	system.MaybeFlush()
	l.Infof("Shutdown complete")
}

type inputOptions struct {
	kind            string
	serialDevice    string
	baud            int
	invertUpDown    bool
	invertLeftRight bool
}

func openSource(opts inputOptions, gpio *hardware.GPIO, l *logger.Logger) (input.Source, func(), error) {
	noop := func() {}
	switch opts.kind {
	case "gpio":
		if err := input.RequestGPIOLines(gpio); err != nil {
			return nil, noop, err
		}
		return input.NewGPIOSource(gpio), noop, nil
	case "periph":
		src, err := input.OpenPeriphSource()
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	case "serial":
		port, err := input.OpenSerial(opts.serialDevice, opts.baud)
		if err != nil {
			return nil, noop, err
		}
		return input.NewSerialSource(port, l), func() { port.Close() }, nil
	case "joystick":
		if err := input.RequestGPIOLines(gpio); err != nil {
			return nil, noop, err
		}
		axes := input.SysfsAxes{
			Device:           hardware.DefaultAdcDevice,
			UpDownChannel:    hardware.AdcUpDownChannel,
			LeftRightChannel: hardware.AdcLeftRightChannel,
		}
		return newJoystick(input.NewGPIOSource(gpio), axes, opts), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown input source %q", opts.kind)
	}
}

func newJoystick(buttons input.Source, axes input.AxisReader, opts inputOptions) *input.JoystickSource {
	src := input.NewJoystickSource(buttons, axes)
	src.InvertUpDown = opts.invertUpDown
	src.InvertLeftRight = opts.invertLeftRight
	return src
}
