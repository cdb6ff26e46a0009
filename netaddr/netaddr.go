// Package netaddr enumerates the host's IPv4 addresses and picks a sensible
// default listen address for the broadcast server.
package netaddr

import (
	"net"
	"sort"
)

// GetAddressList returns the IPv4 addresses of all interfaces that are up and
// not loopback, sorted lexicographically.
//
// Returns:
//   - The address list, or an error if interface enumeration failed
func GetAddressList() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var list []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}

			if ip4 := ip.To4(); ip4 != nil {
				list = append(list, ip4.String())
			}
		}
	}

	sort.Strings(list)
	return list, nil
}

// SelectDefaultAddress picks the default address from list: the first entry
// in a private range (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16), else the
// first entry. An empty list yields the empty string. Selection is idempotent
// on already-selected inputs.
//
// Parameters:
//   - list: Candidate addresses in preference order
//
// Returns:
//   - The selected address, or "" for an empty list
func SelectDefaultAddress(list []string) string {
	for _, addr := range list {
		if ip := net.ParseIP(addr); ip != nil && ip.IsPrivate() {
			return addr
		}
	}

	if len(list) > 0 {
		return list[0]
	}

	return ""
}
