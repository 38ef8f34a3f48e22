package transport

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ErrInvalidEndpoint is returned for port names that are malformed
// or not currently present on the system.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Enumerator lists the endpoint names currently available.
type Enumerator func() ([]string, error)

var comPort = regexp.MustCompile(`^COM[0-9]+$`)

// List returns the detailed list of serial ports
func List() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Ports returns the names of all serial ports, in enumeration order
func Ports() ([]string, error) {
	ports, err := List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ports))
	for _, port := range ports {
		names = append(names, port.Name)
	}
	return names, nil
}

// ValidateEndpoint checks that name has the platform's port format
// and is among the available endpoints.
func ValidateEndpoint(name string, available []string) error {
	if !validFormat(runtime.GOOS, name) {
		if runtime.GOOS == "windows" {
			return fmt.Errorf("%w: port names must be in the format of 'COMi', where i is an integer (got %q)",
				ErrInvalidEndpoint, name)
		}
		return fmt.Errorf("%w: port names must be device paths under /dev (got %q)", ErrInvalidEndpoint, name)
	}
	for _, a := range available {
		if a == name {
			return nil
		}
	}
	return fmt.Errorf("%w: port %s is not available", ErrInvalidEndpoint, name)
}

func validFormat(goos, name string) bool {
	if goos == "windows" {
		return comPort.MatchString(name)
	}
	return strings.HasPrefix(name, "/dev/") && len(name) > len("/dev/")
}
