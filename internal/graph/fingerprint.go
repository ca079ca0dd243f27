package graph

import (
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/pathlens/pathlens/internal/eventstream"
	"github.com/pathlens/pathlens/internal/processor"
)

// fingerprint is a 128-bit murmur3 digest used for node cache keys.
type fingerprint [2]uint64

// streamFingerprint digests an eventstream's full materialized view,
// including tombstoned rows and raw columns, so any table change shows up in
// downstream cache keys.
func streamFingerprint(es *eventstream.Eventstream) fingerprint {
	h := murmur3.New128()
	view := es.Frame(eventstream.ViewOptions{RawCols: true, ShowDeleted: true})
	for _, col := range view.Columns() {
		fmt.Fprintf(h, "%s\x1e", col)
		for _, v := range view.Col(col) {
			fmt.Fprintf(h, "%v\x1f", v)
		}
	}
	h1, h2 := h.Sum128()
	return fingerprint{h1, h2}
}

// processorFingerprint digests a processor's name and parameter record.
func processorFingerprint(p processor.Processor) fingerprint {
	h := murmur3.New128()
	fmt.Fprintf(h, "%s\x1e", p.Name())
	params := p.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\x1f", k, params[k])
	}
	h1, h2 := h.Sum128()
	return fingerprint{h1, h2}
}

// cacheKey combines a node's identifier with the fingerprints of its inputs.
func cacheKey(pk string, parts ...fingerprint) fingerprint {
	h := murmur3.New128()
	fmt.Fprintf(h, "%s\x1e", pk)
	for _, p := range parts {
		fmt.Fprintf(h, "%x:%x\x1f", p[0], p[1])
	}
	h1, h2 := h.Sum128()
	return fingerprint{h1, h2}
}
