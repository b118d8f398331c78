package accesslist

import (
	"net"

	"github.com/semihalev/zlog/v2"
	"github.com/yl2chen/cidranger"
)

// AccessList type
type AccessList struct {
	ranger cidranger.Ranger
}

// New return accesslist for the given cidr list, invalid entries are skipped
func New(cidrs []string) *AccessList {
	a := new(AccessList)
	a.ranger = cidranger.NewPCTrieRanger()

	for _, cidr := range cidrs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			zlog.Error("Access list parse cidr failed", "cidr", cidr, "error", err.Error())
			continue
		}

		if err := a.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet)); err != nil {
			zlog.Error("Access list insert failed", "cidr", cidr, "error", err.Error())
		}
	}

	return a
}

// Allowed reports whether ip may use the service.
func (a *AccessList) Allowed(ip net.IP) bool {
	if ip == nil {
		return false
	}

	allowed, err := a.ranger.Contains(ip)
	if err != nil {
		return false
	}

	return allowed
}

// ParseRemoteIP extracts the ip from a "host:port" address, a bare ip is accepted too.
func ParseRemoteIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	return net.ParseIP(host)
}
