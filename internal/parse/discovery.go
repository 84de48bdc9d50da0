package parse

import (
	"strings"
	"unicode/utf8"
)

// DiscoveredAddress is one reachable interface announced by a machine.
type DiscoveredAddress struct {
	Address string `json:"address"`
	NodeID  string `json:"node_id"`
}

// DiscoveryReply parses a "MAGIC|ethernet|wifi|node" datagram. Each non-empty
// address yields one entry, so a machine on both interfaces contributes two.
// Replies with the wrong magic, fewer than four fields or invalid UTF-8
// return ok == false.
func DiscoveryReply(payload []byte, magic string) (addrs []DiscoveredAddress, ok bool) {
	if !utf8.Valid(payload) {
		return nil, false
	}

	pieces := strings.Split(string(payload), "|")
	if len(pieces) < 4 || pieces[0] != magic {
		return nil, false
	}

	eth, wifi, node := pieces[1], pieces[2], pieces[3]
	if eth != "" {
		addrs = append(addrs, DiscoveredAddress{Address: eth, NodeID: node})
	}
	if wifi != "" {
		addrs = append(addrs, DiscoveredAddress{Address: wifi, NodeID: node})
	}
	return addrs, true
}
