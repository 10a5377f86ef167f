package stitcher

import (
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestAtempoChainIdentityRate(t *testing.T) {
	if filters := atempoChain(1); len(filters) != 0 {
		t.Fatalf("rate 1 must produce no filters, got %v", filters)
	}
}

func TestAtempoChainSimpleRate(t *testing.T) {
	filters := atempoChain(2)
	if len(filters) != 1 {
		t.Fatalf("expected single filter, got %v", filters)
	}
	if got := filters[0].serialize(); got != "atempo=2" {
		t.Fatalf("unexpected serialization %q", got)
	}
}

func TestAtempoChainDecomposesLargeRate(t *testing.T) {
	filters := atempoChain(150)
	if len(filters) != 2 {
		t.Fatalf("expected two filters for rate 150, got %v", filters)
	}
	product := 1.0
	for _, filter := range filters {
		if filter.Name != "atempo" {
			t.Fatalf("unexpected filter %q", filter.Name)
		}
		value, err := strconv.ParseFloat(filter.Args[0].Value, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", filter.Args[0].Value, err)
		}
		if value < atempoMin || value > atempoMax {
			t.Fatalf("factor %f outside supported range", value)
		}
		product *= value
	}
	if math.Abs(product-150) > 1e-6 {
		t.Fatalf("factors multiply to %f, want 150", product)
	}
}

func TestAtempoChainDecomposesSmallRate(t *testing.T) {
	filters := atempoChain(0.2)
	product := 1.0
	for _, filter := range filters {
		value, err := strconv.ParseFloat(filter.Args[0].Value, 64)
		if err != nil {
			t.Fatal(err)
		}
		if value < atempoMin || value > atempoMax {
			t.Fatalf("factor %f outside supported range", value)
		}
		product *= value
	}
	if math.Abs(product-0.2) > 1e-6 {
		t.Fatalf("factors multiply to %f, want 0.2", product)
	}
}

func TestGraphSerialization(t *testing.T) {
	graph := Graph{Chains: []Chain{
		{
			Inputs: []string{"1:a"},
			Filters: []Filter{
				{Name: "atrim", Args: []FilterArg{{Key: "start", Value: "0"}, {Key: "end", Value: "3"}}},
				{Name: "asetpts", Args: []FilterArg{{Value: "PTS-STARTPTS"}}},
			},
			Output: "a0",
		},
		{
			Inputs:  []string{"a0"},
			Filters: []Filter{{Name: "volume", Args: []FilterArg{{Value: "0.5"}}}},
			Output:  "aout",
		},
	}}
	want := "[1:a]atrim=start=0:end=3,asetpts=PTS-STARTPTS[a0];[a0]volume=0.5[aout]"
	if got := graph.Serialize(); got != want {
		t.Fatalf("serialize mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestDelayMilliseconds(t *testing.T) {
	if got := delayMilliseconds(30, 30); got != 1000 {
		t.Fatalf("expected 1000ms, got %d", got)
	}
	if got := delayMilliseconds(1, 60); got != 17 {
		t.Fatalf("expected 17ms, got %d", got)
	}
}

func TestFilterPositionalAndNamedArgs(t *testing.T) {
	filter := Filter{Name: "adelay", Args: []FilterArg{{Value: "1000"}, {Key: "all", Value: "1"}}}
	if got := filter.serialize(); got != "adelay=1000:all=1" {
		t.Fatalf("unexpected serialization %q", got)
	}
	if got := (Filter{Name: "anull"}).serialize(); got != "anull" {
		t.Fatalf("unexpected serialization %q", got)
	}
}

func TestBuildAudioGraphEmpty(t *testing.T) {
	graph, output := BuildAudioGraph(nil, 30)
	if len(graph.Chains) != 0 || output != "" {
		t.Fatalf("expected empty graph for no tracks, got %q", graph.Serialize())
	}
	if strings.TrimSpace(graph.Serialize()) != "" {
		t.Fatal("expected empty serialization")
	}
}
