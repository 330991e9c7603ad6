//go:build !soapy

package main

import (
	"fmt"

	"github.com/norasector/rxtap/pkg/rxtap/device"
)

func liveOpener() device.Opener {
	return device.OpenerFunc(func(args device.Args) (device.Device, error) {
		return nil, fmt.Errorf("%w: built without SoapySDR support, rebuild with -tags soapy or set playback_location", device.ErrNotFound)
	})
}
