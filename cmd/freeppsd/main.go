// freeppsd forces USB-PD PPS fast charging by keeping the SoC's pd-verified
// sysfs node asserted, reconciling against this module's control files.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/logging"
	"github.com/Seyud/FreePPS/sysio"
	"github.com/Seyud/FreePPS/supervisor"
)

var (
	version = "dev"
	commit  = "none"
)

const usage = `Force USB-PD PPS fast charging on rooted Android devices.

freeppsd has no command-line flags: all of its behavior is driven by the
contents of its module's control files under /data/adb/modules/FreePPS.`

func main() {
	app := cli.NewApp()
	app.Name = "freeppsd"
	app.Usage = usage
	app.Version = version

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("freeppsd\n\tversion: \t%s\n\tcommit: \t%s\n", c.App.Version, commit)
	}

	app.Before = func(ctx *cli.Context) error {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(logging.NewFormatter())
		logrus.SetLevel(logrus.InfoLevel)
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("starting freeppsd")

		ioService := sysio.NewIOService(domain.IOOsFileService)
		paths := config.DefaultPaths()

		sup := supervisor.New(ioService, paths, logrus.StandardLogger())
		return sup.Run()
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatalf("freeppsd exiting: %v", err)
	}
}
