package discovery

import (
	"strconv"
	"strings"

	"system_bridge/internal/models"
)

// EncodeTXT renders the record as key=value TXT strings in a fixed order.
func EncodeTXT(rec models.MDNSTextRecord) []string {
	return []string{
		"address=" + rec.Address,
		"fqdn=" + rec.FQDN,
		"host=" + rec.Host,
		"ip=" + rec.IP,
		"mac=" + rec.MAC,
		"port=" + strconv.Itoa(rec.Port),
		"uuid=" + rec.UUID,
		"version=" + rec.Version,
		"websocketAddress=" + rec.WebsocketAddress,
		"wsPort=" + strconv.Itoa(rec.WSPort),
	}
}

// DecodeTXT parses key=value TXT strings. Unknown keys and malformed
// entries are ignored; unparsable ports decode as 0.
func DecodeTXT(txt []string) models.MDNSTextRecord {
	var rec models.MDNSTextRecord
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "address":
			rec.Address = v
		case "fqdn":
			rec.FQDN = v
		case "host":
			rec.Host = v
		case "ip":
			rec.IP = v
		case "mac":
			rec.MAC = v
		case "port":
			rec.Port, _ = strconv.Atoi(v)
		case "uuid":
			rec.UUID = v
		case "version":
			rec.Version = v
		case "websocketAddress":
			rec.WebsocketAddress = v
		case "wsPort":
			rec.WSPort, _ = strconv.Atoi(v)
		}
	}
	return rec
}
