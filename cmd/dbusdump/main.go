// Command dbusdump builds or decodes a single D-Bus message from the
// command line, printing its header summary and argument list. It
// exists to exercise the codec end to end and to give the package a
// runnable example of the Builder/Message API.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	dbus "github.com/nagatavit/zbus"
)

var log = logrus.New()

func main() {
	app := cli.NewApp()
	app.Name = "dbusdump"
	app.Usage = "build or inspect a D-Bus wire message"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "verbose"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "ping",
			Usage: "build a sample method call and print its wire bytes",
			Action: func(c *cli.Context) error {
				return runPing(c.GlobalBool("verbose"))
			},
		},
		{
			Name:      "decode",
			Usage:     "decode a hex-encoded message given as the first argument",
			ArgsUsage: "<hex>",
			Action: func(c *cli.Context) error {
				return runDecode(c.Args().First(), c.GlobalBool("verbose"))
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		color.Red("dbusdump: %v", err)
		os.Exit(1)
	}
}

func runPing(verbose bool) error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	log.Debug("building method call")

	msg, raw, err := dbus.NewMethodCall("/org/freedesktop/DBus", "org.freedesktop.DBus.Peer", "Ping").
		Destination("org.freedesktop.DBus").
		Build()
	if err != nil {
		return err
	}
	color.Green("%s", msg)
	fmt.Println(hex.EncodeToString(raw))
	return nil
}

func runDecode(h string, verbose bool) error {
	if h == "" {
		return fmt.Errorf("decode requires a hex-encoded message argument")
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return err
	}
	msg, consumed, err := dbus.DecodeMessage(raw)
	if err != nil {
		return err
	}
	log.Debugf("consumed %d of %d bytes", consumed, len(raw))
	color.Cyan("%s", msg)
	if msg.Signature() != "" {
		body, err := msg.Body()
		if err != nil {
			return err
		}
		fmt.Printf("body: %#v\n", body)
	}
	return nil
}
