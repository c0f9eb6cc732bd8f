package cluster

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// EffectiveKey applies an album's dht_key_length to a tile geocode,
// selecting the substring that feeds the DHT hash (spec §4.1).
//
//	L == 0           : g
//	0 <  L < len(g)  : g[L:]
//	-len(g) < L < 0  : g[:len(g)+L]
//	otherwise        : error
func EffectiveKey(geocode string, dhtKeyLength int) (string, error) {
	n := len(geocode)
	l := dhtKeyLength

	switch {
	case l == 0:
		return geocode, nil
	case l > 0 && l < n:
		return geocode[l:], nil
	case l < 0 && -l < n:
		return geocode[:n+l], nil
	default:
		return "", fmt.Errorf("cluster: invalid dht_key_length %d for geocode %q (length %d)", l, geocode, n)
	}
}

// HashKey derives the 64-bit DHT routing key from a geocode substring.
// The hash function is process-wide state: any 64-bit hash suffices
// provided every node in the cluster uses the same one (spec §4.1).
func HashKey(effective string) uint64 {
	return xxhash.Sum64String(effective)
}

// RouteKey is the convenience composition of EffectiveKey and HashKey used
// by every caller that needs to route a tile.
func RouteKey(geocode string, dhtKeyLength int) (uint64, error) {
	effective, err := EffectiveKey(geocode, dhtKeyLength)
	if err != nil {
		return 0, err
	}
	return HashKey(effective), nil
}
