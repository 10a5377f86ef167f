package stitcher

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// atempo's supported per-filter range. Rates outside it are decomposed into
// a chain whose factors multiply to the requested rate.
const (
	atempoMin = 0.5
	atempoMax = 100.0
)

// Filter is one node in a filter chain, serialized as name=k1=v1:k2=v2.
// Args without a key serialize positionally.
type Filter struct {
	Name string
	Args []FilterArg
}

// FilterArg is a named or positional filter parameter.
type FilterArg struct {
	Key   string
	Value string
}

func (f Filter) serialize() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Args))
	for _, arg := range f.Args {
		if arg.Key == "" {
			parts = append(parts, arg.Value)
		} else {
			parts = append(parts, arg.Key+"="+arg.Value)
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is an ordered filter list from one labelled input to one labelled
// output.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Output  string
}

func (c Chain) serialize() string {
	var b strings.Builder
	for _, input := range c.Inputs {
		b.WriteString("[" + input + "]")
	}
	serialized := make([]string, 0, len(c.Filters))
	for _, filter := range c.Filters {
		serialized = append(serialized, filter.serialize())
	}
	b.WriteString(strings.Join(serialized, ","))
	if c.Output != "" {
		b.WriteString("[" + c.Output + "]")
	}
	return b.String()
}

// Graph is a complete filter_complex description.
type Graph struct {
	Chains []Chain
}

// Serialize renders the graph in ffmpeg filter_complex syntax. Serialization
// happens only at this boundary; everything upstream works on typed nodes.
func (g Graph) Serialize() string {
	chains := make([]string, 0, len(g.Chains))
	for _, chain := range g.Chains {
		chains = append(chains, chain.serialize())
	}
	return strings.Join(chains, ";")
}

// atempoChain decomposes a playback rate into atempo filters whose factors
// multiply to the rate, each within [0.5, 100]. A rate of 1 yields no
// filters.
func atempoChain(rate float64) []Filter {
	if rate == 1 {
		return nil
	}
	var filters []Filter
	for rate > atempoMax {
		filters = append(filters, atempoFilter(atempoMax))
		rate /= atempoMax
	}
	for rate < atempoMin {
		filters = append(filters, atempoFilter(atempoMin))
		rate /= atempoMin
	}
	if math.Abs(rate-1) > 1e-9 {
		filters = append(filters, atempoFilter(rate))
	}
	return filters
}

func atempoFilter(rate float64) Filter {
	return Filter{Name: "atempo", Args: []FilterArg{{Value: formatFloat(rate)}}}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func delayMilliseconds(startAtFrame int, fps float64) int {
	return int(math.Round(float64(startAtFrame) / fps * 1000))
}

func inputLabel(index int) string {
	return fmt.Sprintf("%d:a", index)
}
