package directory

import (
	"testing"

	"github.com/aghajari/opwear/pkg/transport"
)

func TestStaticPreservesOrder(t *testing.T) {
	d := NewStatic("Local", []transport.Peer{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
	})
	if d.LocalName() != "Local" {
		t.Fatalf("local name mismatch: %q", d.LocalName())
	}
	peers := d.Peers()
	if len(peers) != 2 || peers[0].ID != "a" || peers[1].ID != "b" {
		t.Fatalf("candidate order must be preserved, got %+v", peers)
	}
}

func TestStaticPeersReturnsCopy(t *testing.T) {
	d := NewStatic("Local", []transport.Peer{{ID: "a", Name: "Alpha"}})
	p := d.Peers()
	p[0].ID = "mutated"
	if d.Peers()[0].ID != "a" {
		t.Fatalf("Peers must return a copy")
	}
}

func TestSetPeersReplacesList(t *testing.T) {
	d := NewStatic("Local", nil)
	if len(d.Peers()) != 0 {
		t.Fatalf("expected empty list")
	}
	d.SetPeers([]transport.Peer{{ID: "c", Name: "Gamma"}})
	peers := d.Peers()
	if len(peers) != 1 || peers[0].ID != "c" {
		t.Fatalf("unexpected list after SetPeers: %+v", peers)
	}
}
