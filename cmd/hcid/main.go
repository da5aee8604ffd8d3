//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/hcibus/hcid"
	"github.com/hcibus/hcid/adapter"
	"github.com/hcibus/hcid/bus"
	"github.com/hcibus/hcid/config"
	"github.com/hcibus/hcid/hw"
	"github.com/hcibus/hcid/namecache"
)

const eventQueueDepth = 64

func main() {
	app := cli.NewApp()
	app.Name = "hcid"
	app.Usage = "expose Bluetooth controllers as org.hcibus services"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "/etc/hcibus/hcid.json",
			Usage: "configuration file",
		},
		cli.IntFlag{
			Name:  "device, i",
			Value: -1,
			Usage: "serve only the given device id",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "verbose logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		hcid.SetLogLevelMax()
	}
	log := hcid.GetLogger()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	var cmd hw.Commander
	var devs hw.Devices
	switch cfg.Transport {
	case "uart":
		uart := hw.NewUARTCommander(cfg.UARTDevice,
			log.ChildLogger(map[string]interface{}{"component": "uart"}))
		defer uart.Close()
		cmd = uart
		devs = hw.UARTDevices{Cmd: uart, Timeout: cfg.CommandTimeout()}
	default:
		cmd = hw.NewSocketCommander(
			log.ChildLogger(map[string]interface{}{"component": "hci"}))
		devs = hw.SysDevices{}
	}
	if only := c.Int("device"); only >= 0 {
		devs = singleDevice{Devices: devs, id: only}
	}

	events := make(chan hw.Event, eventQueueDepth)
	if cfg.Transport != "uart" {
		present, err := devs.List()
		if err != nil {
			log.Warnf("can't enumerate devices: %s", err)
		}
		for _, di := range present {
			m, err := hw.OpenMonitor(di.ID, di.Addr, events, log)
			if err != nil {
				log.Errorf("hci%d: can't monitor events: %s", di.ID, err)
				continue
			}
			defer m.Close()
		}
	}

	a := adapter.New(adapter.Options{
		Dial:            bus.SystemDialer(log.ChildLogger(map[string]interface{}{"component": "bus"})),
		Cmd:             cmd,
		Devs:            devs,
		Events:          events,
		Names:           namecache.New(cfg.StorageDir),
		Logger:          log,
		CommandTimeout:  cfg.CommandTimeout(),
		ReconnectPeriod: cfg.ReconnectPeriod(),
		PinTimeout:      cfg.PinTimeout(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("hcid starting, transport=%s", cfg.Transport)
	if err := a.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Infof("hcid stopped")
	return nil
}

// singleDevice narrows a Devices implementation to one device id.
type singleDevice struct {
	hw.Devices
	id int
}

func (d singleDevice) List() ([]hw.DeviceInfo, error) {
	di, err := d.Devices.Info(d.id)
	if err != nil {
		return nil, err
	}
	return []hw.DeviceInfo{di}, nil
}

func (d singleDevice) Route() (int, error) { return d.id, nil }
