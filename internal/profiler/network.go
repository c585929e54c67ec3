package profiler

import (
	"context"
	"fmt"
	"net"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/hashicorp/go-multierror"
)

// iface is the subset of net.Interface the profiler needs, split out so
// tests can supply interfaces without touching the host.
type iface struct {
	name  string
	mac   net.HardwareAddr
	addrs func() ([]net.Addr, error)
}

func systemInterfaces() ([]iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]iface, len(ifs))
	for i := range ifs {
		ni := ifs[i]
		out[i] = iface{name: ni.Name, mac: ni.HardwareAddr, addrs: ni.Addrs}
	}
	return out, nil
}

// Network lists interfaces in kernel index order with their MAC address and
// IP addresses, without prefix lengths.
func (p *Profiler) Network(context.Context) (models.Network, error) {
	ifs, err := p.interfaces()
	if err != nil {
		return models.Network{}, fmt.Errorf("list interfaces: %w", err)
	}
	var errs *multierror.Error
	n := models.Network{Interfaces: make([]models.NetworkInterface, 0, len(ifs))}
	for _, i := range ifs {
		ni := models.NetworkInterface{Name: i.name, MACAddress: i.mac.String(), IPs: []string{}}
		addrs, err := i.addrs()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s addresses: %w", i.name, err))
		}
		for _, a := range addrs {
			if ip := addrIP(a); ip != nil {
				ni.IPs = append(ni.IPs, ip.String())
			}
		}
		n.Interfaces = append(n.Interfaces, ni)
	}
	return n, errs.ErrorOrNil()
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
