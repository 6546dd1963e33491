package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var defaultHeaders = []Header{
	{Key: "Accept", Value: "text/event-stream"},
	{Key: "Cache-Control", Value: "no-cache"},
	{Key: "Connection", Value: "keep-alive"},
	{Key: "Content-Type", Value: "application/json"},
}

func TestHeaderSet_Defaults(t *testing.T) {
	h := NewHeaderSet()
	if diff := cmp.Diff(defaultHeaders, h.Headers()); diff != "" {
		t.Errorf("default headers mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderSet_SetKeepsPosition(t *testing.T) {
	h := NewHeaderSet()
	h.Set("Connection", "close")
	h.SetInt("X-Retry", 3)

	want := []Header{
		{Key: "Accept", Value: "text/event-stream"},
		{Key: "Cache-Control", Value: "no-cache"},
		{Key: "Connection", Value: "close"},
		{Key: "Content-Type", Value: "application/json"},
		{Key: "X-Retry", Value: "3"},
	}
	if diff := cmp.Diff(want, h.Headers()); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderSet_MergeCallerWins(t *testing.T) {
	h := NewHeaderSet()
	h.Merge(map[string]string{
		"Content-Type":  "text/plain",
		"Authorization": "Bearer token",
		"X-Trace":       "abc",
	})

	want := []Header{
		{Key: "Accept", Value: "text/event-stream"},
		{Key: "Cache-Control", Value: "no-cache"},
		{Key: "Connection", Value: "keep-alive"},
		{Key: "Content-Type", Value: "text/plain"},
		{Key: "Authorization", Value: "Bearer token"},
		{Key: "X-Trace", Value: "abc"},
	}
	if diff := cmp.Diff(want, h.Headers()); diff != "" {
		t.Errorf("merged headers mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderSet_MergeEveryDefaultSurvivesOrIsOverridden(t *testing.T) {
	overrides := []map[string]string{
		{},
		{"Accept": "application/json"},
		{"Accept": "*/*", "Cache-Control": "max-age=0", "Connection": "close", "Content-Type": "text/plain"},
		{"X-One": "1", "Connection": "upgrade"},
	}

	for _, override := range overrides {
		h := NewHeaderSet()
		h.Merge(override)

		for _, def := range defaultHeaders {
			got, ok := h.Get(def.Key)
			if !ok {
				t.Fatalf("default %s missing after merge of %v", def.Key, override)
			}
			want := def.Value
			if v, overridden := override[def.Key]; overridden {
				want = v
			}
			if got != want {
				t.Errorf("%s: expected %q, got %q", def.Key, want, got)
			}
		}
		for key, value := range override {
			if got, _ := h.Get(key); got != value {
				t.Errorf("%s: expected %q, got %q", key, value, got)
			}
		}
	}
}

func TestHeaderSet_MergeIsDeterministic(t *testing.T) {
	extra := map[string]string{"B": "2", "A": "1", "C": "3", "D": "4"}

	first := NewHeaderSet()
	first.Merge(extra)
	for i := 0; i < 20; i++ {
		h := NewHeaderSet()
		h.Merge(extra)
		if diff := cmp.Diff(first.Headers(), h.Headers()); diff != "" {
			t.Fatalf("merge order changed (-first +got):\n%s", diff)
		}
	}
}

func TestHeaderSet_InstancesAreIndependent(t *testing.T) {
	a := NewHeaderSet()
	b := NewHeaderSet()
	a.Set("Accept", "text/plain")

	if got, _ := b.Get("Accept"); got != "text/event-stream" {
		t.Errorf("mutation leaked across instances: %q", got)
	}
}

func TestHeaderSet_HeadersReturnsCopy(t *testing.T) {
	h := NewHeaderSet()
	out := h.Headers()
	out[0].Value = "mutated"

	if got, _ := h.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Headers() exposed internal storage: %q", got)
	}
	if h.Len() != 4 {
		t.Errorf("Expected 4 headers, got %d", h.Len())
	}
}
