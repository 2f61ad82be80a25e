package types

import "strings"

// ButtonMask is a bit-set over the logical buttons of the device.
// PowerLong is only ever set together with Power.
type ButtonMask uint16

const (
	BtnRight ButtonMask = 1 << iota
	BtnLeft
	BtnUp
	BtnDown
	BtnStart
	BtnSelect
	BtnA
	BtnB
	BtnPower
	BtnPowerLong
)

const BtnDpad = BtnRight | BtnLeft | BtnUp | BtnDown

var buttonNames = []struct {
	bit  ButtonMask
	name string
}{
	{BtnRight, "right"},
	{BtnLeft, "left"},
	{BtnUp, "up"},
	{BtnDown, "down"},
	{BtnStart, "start"},
	{BtnSelect, "select"},
	{BtnA, "a"},
	{BtnB, "b"},
	{BtnPower, "power"},
	{BtnPowerLong, "power-long"},
}

func (m ButtonMask) Has(b ButtonMask) bool {
	return m&b != 0
}

func (m ButtonMask) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, bn := range buttonNames {
		if m&bn.bit != 0 {
			names = append(names, bn.name)
		}
	}
	return strings.Join(names, "+")
}
