package cyton

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported   = errors.New("not supported while streaming")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrInvalidGain    = errors.New("invalid gain")
)

// Per-channel command characters, index 0 is channel 1.
// Channels 9-16 live on the Daisy module.
var (
	channelOff    = []byte("12345678qwertyui")
	channelOn     = []byte("!@#$%^&*QWERTYUI")
	channelSelect = []byte("12345678QWERTYUI")
)

// PGA gain -> channel settings code
var gainCodes = map[int]byte{
	1:  '0',
	2:  '1',
	4:  '2',
	6:  '3',
	8:  '4',
	12: '5',
	24: '6',
}

// Channel settings defaults for the 'x' command
const (
	powerOn   = '0'
	inputNorm = '0'
	biasOn    = '1'
	srb2On    = '1'
	srb1Off   = '0'
)

// maxChannel returns the highest addressable channel
func (d *Device) maxChannel() int {
	if d.daisy {
		return 16
	}
	return 8
}

func (d *Device) checkChannel(ch int) error {
	if ch < 1 || ch > d.maxChannel() {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidChannel, ch, d.maxChannel())
	}
	return nil
}

// send writes a configuration command.
// Refused while streaming: the reply text would land in the packet stream.
func (d *Device) send(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t == nil {
		return ErrNotConnected
	}
	if d.busy {
		return ErrNotSupported
	}
	if _, err := d.t.Write(cmd); err != nil {
		return fmt.Errorf("failed to write command %q: %w", cmd, err)
	}
	return nil
}

// channelCommand maps channels through table, validating each
func (d *Device) channelCommand(table []byte, channels []int) ([]byte, error) {
	cmd := make([]byte, 0, len(channels))
	for _, ch := range channels {
		if err := d.checkChannel(ch); err != nil {
			return nil, err
		}
		cmd = append(cmd, table[ch-1])
	}
	return cmd, nil
}

// DeactivateChannels turns off the listed channels (1-based)
func (d *Device) DeactivateChannels(channels ...int) error {
	cmd, err := d.channelCommand(channelOff, channels)
	if err != nil {
		return err
	}
	return d.send(cmd)
}

// ActivateChannels turns on the listed channels (1-based)
func (d *Device) ActivateChannels(channels ...int) error {
	cmd, err := d.channelCommand(channelOn, channels)
	if err != nil {
		return err
	}
	return d.send(cmd)
}

// SetGain sets the amplifier gain of one channel.
// Allowed gains: 1, 2, 4, 6, 8, 12, 24.
func (d *Device) SetGain(channel, gain int) error {
	if err := d.checkChannel(channel); err != nil {
		return err
	}
	code, ok := gainCodes[gain]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidGain, gain)
	}
	cmd := []byte{
		CMD_CHANNEL_SET,
		channelSelect[channel-1],
		powerOn,
		code,
		inputNorm,
		biasOn,
		srb2On,
		srb1Off,
		CMD_CHANNEL_LATCH,
	}
	return d.send(cmd)
}

// SetTimestamps enables or disables timestamp injection in the aux field
func (d *Device) SetTimestamps(on bool) error {
	var cmd byte = CMD_TIMESTAMP_OFF
	if on {
		cmd = CMD_TIMESTAMP_ON
	}
	return d.send([]byte{cmd})
}
