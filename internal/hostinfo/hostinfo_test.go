package hostinfo

import (
	"context"
	"errors"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
)

func TestPrimaryInterface(t *testing.T) {
	list := psnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "docker0", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "172.17.0.1/16"}}},
		{Name: "eth0", HardwareAddr: "aa:bb:cc:dd:ee:ff", Flags: []string{"up", "broadcast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.20/24"}}},
	}
	ip, mac := primaryInterface(list)
	if ip != "192.168.1.20" || mac != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("got (%q, %q)", ip, mac)
	}

	if ip, mac := primaryInterface(nil); ip != "" || mac != "" {
		t.Fatalf("expected empty result, got (%q, %q)", ip, mac)
	}
}

func TestLookup_FallsBackToProvidedUUID(t *testing.T) {
	origID, origIfaces, origHost, origLookup := hostID, interfaces, hostname, lookupName
	t.Cleanup(func() { hostID, interfaces, hostname, lookupName = origID, origIfaces, origHost, origLookup })

	hostID = func(context.Context) (string, error) { return "", errors.New("no machine id") }
	interfaces = func(context.Context) (psnet.InterfaceStatList, error) { return nil, nil }
	hostname = func() (string, error) { return "desk", nil }
	lookupName = func(context.Context, string) (string, error) { return "desk.lan.", nil }

	id, err := Lookup(context.Background(), "fallback-uuid")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if id.UUID != "fallback-uuid" {
		t.Errorf("UUID = %q", id.UUID)
	}
	if id.Hostname != "desk" || id.FQDN != "desk.lan" {
		t.Errorf("names = %q / %q", id.Hostname, id.FQDN)
	}
}

func TestLookup_NormalizesHostID(t *testing.T) {
	origID, origIfaces, origHost, origLookup := hostID, interfaces, hostname, lookupName
	t.Cleanup(func() { hostID, interfaces, hostname, lookupName = origID, origIfaces, origHost, origLookup })

	hostID = func(context.Context) (string, error) { return "ABCD-1234", nil }
	interfaces = func(context.Context) (psnet.InterfaceStatList, error) { return nil, errors.New("denied") }
	hostname = func() (string, error) { return "desk", nil }
	lookupName = func(context.Context, string) (string, error) { return "", errors.New("nxdomain") }

	id, err := Lookup(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if id.UUID != "abcd-1234" || id.FQDN != "desk" || id.IP != "" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}
