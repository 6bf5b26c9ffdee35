// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package network

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/openfluke/loom/nn"
)

// Device preferences accepted by ParseDevice.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// Device is the compute target chosen once at startup and passed explicitly to
// every network that is built.
//
// ClipNet runs its forward and backward passes through loom's CPU kernels;
// loom applies gradients on the GPU only for dense layers filled by its GPU
// backward pass, so a mounted conv trunk would never learn. Every preference
// therefore resolves to the CPU, and a gpu request is reported once.
type Device struct {
	Preference string // auto, cpu or gpu, as configured.
	warned     bool
}

// ParseDevice validates a device preference. An empty value means auto.
func ParseDevice(pref string) (Device, error) {
	pref = strings.ToLower(strings.TrimSpace(pref))
	switch pref {
	case "":
		pref = DeviceAuto
	case DeviceAuto, DeviceCPU, DeviceGPU:
	default:
		return Device{}, fmt.Errorf("unknown device %q: want auto, cpu or gpu", pref)
	}
	return Device{Preference: pref}, nil
}

// String is the device the network runs on.
func (d *Device) String() string {
	return DeviceCPU
}

// mount keeps net on the CPU, where its parameters are updated.
func (d *Device) mount(net *nn.Network) error {
	net.SetGPU(false)
	if d.Preference == DeviceGPU && !d.warned {
		slog.Warn("gpu requested but clip networks train and infer on cpu", "device", DeviceCPU)
		d.warned = true
	}
	return nil
}
