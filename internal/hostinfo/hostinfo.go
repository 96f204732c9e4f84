// Package hostinfo resolves the identity this node advertises and uses as its
// MQTT client id.
package hostinfo

import (
	"context"
	"net"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"
)

type Identity struct {
	Hostname string
	FQDN     string
	UUID     string
	IP       string
	MAC      string
}

// functions swapped in tests
var (
	hostID     = host.HostIDWithContext
	interfaces = psnet.InterfacesWithContext
	hostname   = os.Hostname
	lookupName = net.DefaultResolver.LookupCNAME
)

// Lookup collects hostname, OS uuid and the primary IPv4 interface.
// fallbackUUID is used when the OS does not expose a stable machine id.
func Lookup(ctx context.Context, fallbackUUID string) (Identity, error) {
	var id Identity

	name, err := hostname()
	if err != nil {
		return id, err
	}
	id.Hostname = name
	id.FQDN = name
	if cname, err := lookupName(ctx, name); err == nil && cname != "" {
		id.FQDN = strings.TrimSuffix(cname, ".")
	}

	if uuid, err := hostID(ctx); err == nil && uuid != "" {
		id.UUID = strings.ToLower(uuid)
	} else {
		id.UUID = fallbackUUID
	}

	if list, err := interfaces(ctx); err == nil {
		id.IP, id.MAC = primaryInterface(list)
	}
	return id, nil
}

// primaryInterface picks the first up, non-loopback interface with an IPv4
// address and returns that address and the interface MAC.
func primaryInterface(list psnet.InterfaceStatList) (string, string) {
	for _, iface := range list {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			ip, _, err := net.ParseCIDR(a.Addr)
			if err != nil {
				ip = net.ParseIP(a.Addr)
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			return ip.String(), iface.HardwareAddr
		}
	}
	return "", ""
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
