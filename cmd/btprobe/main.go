// btprobe brings the stack up against a local controller and reports what
// it finds. It is a field diagnostic, not part of the stack proper.
package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/btstack"
	"github.com/rigado/btstack/hal"
	"github.com/rigado/btstack/hci"
	"github.com/rigado/btstack/module"
)

func main() {
	app := cli.NewApp()
	app.Name = "btprobe"
	app.Usage = "probe a bluetooth controller through the hci core"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a json transport descriptor",
		},
		cli.IntFlag{
			Name:  "device, d",
			Value: -1,
			Usage: "hci device index (ignored when --config is given)",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "start the stack and dump the controller capabilities",
			Action: runInfo,
		},
		{
			Name:   "reset",
			Usage:  "start the stack, which resets the controller, and stop",
			Action: runReset,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildTransport(c *cli.Context) (hal.Transport, error) {
	if path := c.GlobalString("config"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return hal.Transport{}, errors.Wrap(err, "read config")
		}
		var t hal.Transport
		if err := jsoniter.Unmarshal(b, &t); err != nil {
			return hal.Transport{}, errors.Wrap(err, "parse config")
		}
		return t, nil
	}
	return hal.Transport{HCI: &hal.TransportHCI{ID: c.GlobalInt("device")}}, nil
}

// withStack starts HAL, HCI layer and Controller, runs fn, and tears the
// stack down in reverse order.
func withStack(c *cli.Context, fn func(ctrl *hci.Controller) error) error {
	if c.GlobalBool("verbose") {
		btstack.SetLogLevelDebug()
	}

	t, err := buildTransport(c)
	if err != nil {
		return err
	}
	hal.SetTransport(t)

	thread := module.NewThread("btprobe")
	registry := module.NewRegistry()
	list := &module.List{}
	list.Add(hci.ControllerFactory)
	registry.Start(list, thread)
	defer func() {
		registry.StopAll()
		thread.Stop()
	}()

	ctrl := registry.Get(hci.ControllerFactory).(*hci.Controller)
	return fn(ctrl)
}

type capabilityReport struct {
	Address             string   `json:"address"`
	HCIVersion          uint8    `json:"hci_version"`
	Manufacturer        uint16   `json:"manufacturer"`
	AclPacketLength     uint16   `json:"acl_packet_length"`
	NumAclPacketBuffers uint16   `json:"num_acl_packet_buffers"`
	LePacketLength      uint16   `json:"le_packet_length"`
	NumLePacketBuffers  uint8    `json:"num_le_packet_buffers"`
	LocalFeatures       uint64   `json:"local_features"`
	ExtendedFeatures    []uint64 `json:"extended_features"`
	LeFeatures          uint64   `json:"le_features"`
	LeMaxAdvDataLength  uint16   `json:"le_max_adv_data_length"`
}

func runInfo(c *cli.Context) error {
	return withStack(c, func(ctrl *hci.Controller) error {
		leBuf := ctrl.GetLeBufferSize()
		report := capabilityReport{
			Address:             ctrl.MacAddress().String(),
			HCIVersion:          ctrl.LocalVersion().HCIVersion,
			Manufacturer:        ctrl.LocalVersion().ManufacturerName,
			AclPacketLength:     ctrl.AclPacketLength(),
			NumAclPacketBuffers: ctrl.NumAclPacketBuffers(),
			LePacketLength:      leBuf.DataPacketLength,
			NumLePacketBuffers:  leBuf.TotalNumDataPackets,
			LocalFeatures:       ctrl.LocalFeatures(),
			LeFeatures:          ctrl.LeLocalFeatures(),
			LeMaxAdvDataLength:  ctrl.LeMaximumAdvertisingDataLength(),
		}
		for page := 0; ; page++ {
			f := ctrl.ExtendedFeatures(page)
			if f == 0 && page > 0 {
				break
			}
			report.ExtendedFeatures = append(report.ExtendedFeatures, f)
		}

		out, err := jsoniter.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	})
}

func runReset(c *cli.Context) error {
	return withStack(c, func(ctrl *hci.Controller) error {
		fmt.Printf("controller %v reset ok\n", ctrl.MacAddress())
		return nil
	})
}
