package cyton

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sergev/cyton/transport"
)

// Handshake text markers
const (
	identityMarker = "OpenBCI"   // present in the reply to 'v'
	bannerEnd      = "$$$"       // end of startup banner
	firmwareTag    = "Firmware:" // banner line with the firmware version
)

// identify asks the board for its version and reads the startup banner.
// The banner is drained completely so that none of it is later taken
// for packet data. d.mu must be held.
func (d *Device) identify(t transport.Transport) error {
	if _, err := t.Write([]byte{CMD_VERSION}); err != nil {
		return fmt.Errorf("failed to send version query: %w", err)
	}

	line, err := t.ReadLine()
	if err != nil {
		return fmt.Errorf("failed to read version reply: %w", err)
	}
	if !bytes.Contains(line, []byte(identityMarker)) {
		log.Debug().Bytes("reply", line).Msg("unexpected reply to version query")
		return ErrNotRecognized
	}

	var banner []string
	firmware := ""
	for {
		text := strings.TrimRight(string(line), "\r\n")
		banner = append(banner, text)
		if strings.HasPrefix(text, firmwareTag) {
			firmware = strings.TrimSpace(strings.TrimPrefix(text, firmwareTag))
		}
		if strings.Contains(text, bannerEnd) {
			break
		}

		line, err = t.ReadLine()
		if err != nil {
			return fmt.Errorf("failed to read startup banner: %w", err)
		}
		if len(line) == 0 {
			return ErrBannerTimeout
		}
	}

	d.banner = banner
	d.firmware = firmware
	return nil
}
