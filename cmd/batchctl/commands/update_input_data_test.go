package commands

import (
	"reflect"
	"testing"

	"github.com/pennlinc/batchctl/internal/core"
)

func TestBuildUpdatedOrderAppendsNewRetainsSurvivors(t *testing.T) {
	current := []core.ProcessingUnit{{Subject: "sub-0001"}, {Subject: "sub-0002"}, {Subject: "sub-0003"}}
	fresh := []core.ProcessingUnit{{Subject: "sub-0001"}, {Subject: "sub-0003"}, {Subject: "sub-0004"}}
	removed := []core.ProcessingUnit{{Subject: "sub-0002"}}
	added := []core.ProcessingUnit{{Subject: "sub-0004"}}

	got := buildUpdatedOrder(current, fresh, added, removed)
	want := []core.ProcessingUnit{{Subject: "sub-0001"}, {Subject: "sub-0003"}, {Subject: "sub-0004"}}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestBuildUpdatedOrderKeepsResultsBearingUnitNeitherAddedNorRemoved(t *testing.T) {
	// sub-0002 vanished from fresh enumeration but carries results, so
	// inclusion.Update reports it in neither added nor removed; it must
	// stay in its prior position rather than disappear or move.
	current := []core.ProcessingUnit{{Subject: "sub-0001"}, {Subject: "sub-0002"}}
	fresh := []core.ProcessingUnit{{Subject: "sub-0001"}}
	var removed, added []core.ProcessingUnit

	got := buildUpdatedOrder(current, fresh, added, removed)
	want := []core.ProcessingUnit{{Subject: "sub-0001"}, {Subject: "sub-0002"}}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
