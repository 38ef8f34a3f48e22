package cyton

import "fmt"

// PrintStatus prints board information to stdout
func (d *Device) PrintStatus() {
	port := d.Port()
	if port == "" {
		fmt.Printf("OpenBCI Board: Disconnected\n")
		return
	}
	fmt.Printf("OpenBCI Board: Connected on %s\n", port)

	firmware := d.Firmware()
	if firmware == "" {
		firmware = "Unknown"
	}
	fmt.Printf("Firmware Version: %s\n", firmware)

	if d.daisy {
		fmt.Printf("Daisy Module: Attached\n")
	} else {
		fmt.Printf("Daisy Module: None\n")
	}
	fmt.Printf("Channels: %d\n", d.channels)
	fmt.Printf("Sampling Rate: %d Hz\n", d.SampleRate())
	fmt.Printf("Baud Rate: %d\n", d.baud)
}
