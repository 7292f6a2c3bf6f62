package main

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/kr/fs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/nxdt/nxdt"
	"github.com/nxdt/nxdt/gadget"
)

const (
	appVersionMajor = 1
	appVersionMinor = 0
	appVersionMicro = 0
)

func main() {
	app := cli.NewApp()
	app.Name = "nxdt-export"
	app.Usage = "export files to a host over the NXDT USB protocol"
	app.Version = "1.0.0"
	app.Commands = []cli.Command{
		ExportCmd(),
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("Error running nxdt-export: %v.", err)
	}
}

func ExportCmd() cli.Command {
	return cli.Command{
		Name:      "export",
		Usage:     "send the given files and directories to the attached host",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "config",
				Usage: "TOML config file supplying flag defaults",
			},
			cli.StringFlag{
				Name:  "ffs",
				Value: "/dev/usb-ffs/nxdt",
				Usage: "mounted FunctionFS instance to attach to",
			},
			cli.StringFlag{
				Name:  "interface-name",
				Value: "NXDT",
			},
			cli.StringFlag{
				Name:  "buffer-size",
				Value: "8MiB",
				Usage: "transfer buffer size, also the chunk size",
			},
			cli.DurationFlag{
				Name:  "timeout",
				Value: time.Second,
				Usage: "per-transfer timeout inside an established session",
			},
			cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
			cli.BoolFlag{
				Name:  "keep-going",
				Usage: "continue with the next file after a failed transfer",
			},
		},
		Action: func(c *cli.Context) {
			if err := export(c); err != nil {
				logrus.Fatalf("Error running export command: %v.", err)
			}
		},
	}
}

// mergeFlags overlays explicitly-set command line flags on top of the
// config file.
func mergeFlags(c *cli.Context, cfg *Config) {
	if c.IsSet("ffs") {
		cfg.FFSPath = c.String("ffs")
	}
	if c.IsSet("interface-name") {
		cfg.InterfaceName = c.String("interface-name")
	}
	if c.IsSet("buffer-size") {
		cfg.BufferSize = c.String("buffer-size")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = duration{c.Duration("timeout")}
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("keep-going") {
		cfg.KeepGoing = c.Bool("keep-going")
	}
}

func export(c *cli.Context) error {
	if len(c.Args()) == 0 {
		return errors.New("no paths given")
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	mergeFlags(c, &cfg)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
	}
	logrus.SetLevel(level)

	bufferSize, err := units.RAMInBytes(cfg.BufferSize)
	if err != nil {
		return errors.Wrapf(err, "invalid buffer size %q", cfg.BufferSize)
	}

	transport, err := gadget.Open(cfg.FFSPath, gadget.Config{
		InterfaceName: cfg.InterfaceName,
	})
	if err != nil {
		return err
	}

	client, err := nxdt.New(transport,
		nxdt.WithBufferSize(int(bufferSize)),
		nxdt.WithTimeout(cfg.Timeout.Duration),
		nxdt.WithAppVersion(appVersionMajor, appVersionMinor, appVersionMicro),
	)
	if err != nil {
		transport.Close()
		return err
	}
	defer client.Close()

	if err := waitForHost(client); err != nil {
		return err
	}

	chunk := nxdt.AllocAligned(int(bufferSize))
	for _, root := range c.Args() {
		if err := exportPath(client, root, chunk, cfg.KeepGoing); err != nil {
			return err
		}
	}
	return nil
}

// waitForHost blocks until a session is established or the process is
// asked to stop. The host's companion program may not be running yet;
// waiting here is expected.
func waitForHost(client *nxdt.Client) error {
	if client.IsReady() {
		return nil
	}
	logrus.Info("Waiting for host connection...")

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case sig := <-sigC:
			return errors.Errorf("interrupted by %v while waiting for host", sig)
		case <-ticker.C:
			if client.IsReady() {
				logrus.Info("Host connected, session established.")
				return nil
			}
		}
	}
}

func exportPath(client *nxdt.Client, root string, chunk []byte, keepGoing bool) error {
	base := filepath.Dir(filepath.Clean(root))

	walker := fs.Walk(root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if keepGoing {
				logrus.WithError(err).Warnf("Skipping %s.", walker.Path())
				continue
			}
			return err
		}
		if !walker.Stat().Mode().IsRegular() {
			continue
		}

		name, err := filepath.Rel(base, walker.Path())
		if err != nil {
			name = filepath.Base(walker.Path())
		}
		name = filepath.ToSlash(name)

		if err := sendFile(client, walker.Path(), name, chunk); err != nil {
			if keepGoing {
				logrus.WithError(err).Errorf("Failed to send %s.", walker.Path())
				continue
			}
			return errors.Wrapf(err, "send %s", walker.Path())
		}
	}
	return nil
}

func sendFile(client *nxdt.Client, path, name string, chunk []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := uint64(info.Size())

	log := logrus.WithFields(logrus.Fields{"file": name, "size": units.BytesSize(float64(size))})
	log.Info("Sending file.")

	if err := client.SendFileProperties(size, name); err != nil {
		return err
	}

	var sent uint64
	for sent < size {
		n, err := f.Read(chunk)
		if n > 0 {
			if err := client.SendFileData(chunk[:n]); err != nil {
				return err
			}
			sent += uint64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if sent != size {
		return errors.Errorf("file shrank while sending: sent %d of %d bytes", sent, size)
	}

	log.Info("File sent.")
	return nil
}
