package portefeuille

import (
	"encoding/json"
	"testing"
)

func TestJSONObjectWriterKeepsOrder(t *testing.T) {
	var w jsonObjectWriter
	w.Append("b", 2).Append("a", 1)

	data, err := json.Marshal(&w)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"b":2,"a":1}` {
		t.Errorf("got %s, want keys in append order", data)
	}
}

func TestJSONObjectWriterOptional(t *testing.T) {
	var w jsonObjectWriter
	w.Append("a", 1).Optional("skip", "").Optional("keep", "x")

	data, err := json.Marshal(&w)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"a":1,"keep":"x"}` {
		t.Errorf("got %s", data)
	}
}

func TestJSONObjectWriterEmbed(t *testing.T) {
	var w jsonObjectWriter
	w.Append("a", 1).EmbedFrom(struct {
		B int `json:"b"`
	}{B: 2})

	data, err := json.Marshal(&w)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"a":1,"b":2}` {
		t.Errorf("got %s", data)
	}
}

func TestJSONObjectWriterEmpty(t *testing.T) {
	var w jsonObjectWriter
	data, err := json.Marshal(&w)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("got %s, want {}", data)
	}
}
