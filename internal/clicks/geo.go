package clicks

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
)

// GeoSource maps an IP to an ISO country code; "" means unknown.
type GeoSource interface {
	Country(ip string) string
}

// GeoTable is an offline IP -> country lookup backed by a sorted list of
// CIDR ranges. The whole table lives in memory so lookups are cheap
// enough for the redirect path; a miss returns the empty string.
// Ranges must be disjoint; nested or overlapping CIDRs are rejected when
// the table is built, because the lookup only probes the predecessor by
// start address.
type GeoTable struct {
	v4 []geoRange
	v6 []geoRange
}

type geoRange struct {
	net     *net.IPNet
	start   []byte
	end     []byte
	country string
}

// LoadGeoTable reads a CSV of "cidr,country_code" lines. Blank lines and
// lines starting with '#' are skipped.
func LoadGeoTable(path string) (*GeoTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &GeoTable{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cidr, country, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("geo table %s line %d: expected cidr,country", path, lineNo)
		}
		if err := t.Add(strings.TrimSpace(cidr), strings.ToUpper(strings.TrimSpace(country))); err != nil {
			return nil, fmt.Errorf("geo table %s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := t.finish(); err != nil {
		return nil, fmt.Errorf("geo table %s: %w", path, err)
	}
	return t, nil
}

// NewGeoTable builds a table from cidr->country pairs, mostly for tests.
func NewGeoTable(entries map[string]string) (*GeoTable, error) {
	t := &GeoTable{}
	for cidr, country := range entries {
		if err := t.Add(cidr, country); err != nil {
			return nil, err
		}
	}
	if err := t.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// Add registers one CIDR range. Call finish after the last Add.
func (t *GeoTable) Add(cidr, country string) error {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return err
	}
	r := geoRange{net: ipnet, start: ipnet.IP, country: country}
	if v4 := ipnet.IP.To4(); v4 != nil {
		r.start = v4
	}
	mask := ipnet.Mask
	if len(mask) > len(r.start) {
		mask = mask[len(mask)-len(r.start):]
	}
	r.end = make([]byte, len(r.start))
	for i := range r.start {
		r.end[i] = r.start[i] | ^mask[i]
	}
	if len(r.start) == net.IPv4len {
		t.v4 = append(t.v4, r)
	} else {
		t.v6 = append(t.v6, r)
	}
	return nil
}

// finish sorts the ranges and rejects overlaps, nested CIDRs included.
func (t *GeoTable) finish() error {
	for _, rs := range [][]geoRange{t.v4, t.v6} {
		sort.Slice(rs, func(i, j int) bool {
			return string(rs[i].start) < string(rs[j].start)
		})
		var maxEnd string
		var owner *net.IPNet
		for i := range rs {
			if string(rs[i].start) <= maxEnd {
				return fmt.Errorf("geo ranges overlap: %s and %s", owner, rs[i].net)
			}
			if end := string(rs[i].end); end > maxEnd {
				maxEnd = end
				owner = rs[i].net
			}
		}
	}
	return nil
}

// Country returns the ISO country code for an IP, or "" when the IP is
// unparsable or outside every range.
func (t *GeoTable) Country(ip string) string {
	if t == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	ranges := t.v6
	key := parsed.To16()
	if v4 := parsed.To4(); v4 != nil {
		ranges = t.v4
		key = v4
	}
	// Candidate is the last range starting at or before the IP.
	i := sort.Search(len(ranges), func(i int) bool {
		return string(ranges[i].start) > string(key)
	})
	if i == 0 {
		return ""
	}
	if r := ranges[i-1]; r.net.Contains(parsed) {
		return r.country
	}
	return ""
}
