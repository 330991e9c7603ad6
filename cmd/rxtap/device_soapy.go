//go:build soapy

package main

import (
	"github.com/norasector/rxtap/pkg/rxtap/device"
	"github.com/norasector/rxtap/pkg/rxtap/device/soapy"
)

func liveOpener() device.Opener {
	return soapy.Opener{}
}
