package statesync

import "net"

// InterfaceCheck reports connected when any non-loopback interface is up and
// carries an address. It stands in for the link-layer association check.
type InterfaceCheck struct {
	// Name restricts the check to one interface (e.g. "wlan0"). Empty = any.
	Name string

	// interfaces is swapped in tests.
	interfaces func() ([]netIface, error)
}

type netIface struct {
	name     string
	up       bool
	loopback bool
	addrs    int
}

// IsConnected reports whether a usable interface exists.
func (c InterfaceCheck) IsConnected() bool {
	list := c.interfaces
	if list == nil {
		list = systemInterfaces
	}
	ifaces, err := list()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if c.Name != "" && ifc.name != c.Name {
			continue
		}
		if ifc.up && !ifc.loopback && ifc.addrs > 0 {
			return true
		}
	}
	return false
}

func systemInterfaces() ([]netIface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]netIface, 0, len(ifaces))
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		out = append(out, netIface{
			name:     ifc.Name,
			up:       ifc.Flags&net.FlagUp != 0,
			loopback: ifc.Flags&net.FlagLoopback != 0,
			addrs:    len(addrs),
		})
	}
	return out, nil
}

// Always is a Connectivity that is always up.
type Always struct{}

func (Always) IsConnected() bool { return true }
