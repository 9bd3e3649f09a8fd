package cassync

import (
	"errors"
	"testing"
)

func TestSchema_Validate(t *testing.T) {
	s := MustSchema(
		Field{Name: "agent", Required: true, Rule: `len(value) <= 8`},
		Field{Name: "limit", Default: 50, Rule: `value > 0 && value <= 100`},
		Field{Name: "cursor"},
	)

	got, err := s.Validate(Params{"agent": "a1", "junk": 1})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got["agent"] != "a1" || got["limit"] != 50 {
		t.Fatalf("got %v", got)
	}
	if _, ok := got["junk"]; ok {
		t.Fatalf("undeclared field kept")
	}
	if _, ok := got["cursor"]; ok {
		t.Fatalf("absent optional field should stay absent")
	}

	_, err = s.Validate(Params{"agent": "much-too-long", "limit": 500})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 || ve.Fields["agent"] == nil || ve.Fields["limit"] == nil {
		t.Fatalf("fields: %v", ve.Fields)
	}

	if _, err := s.Validate(Params{}); err == nil {
		t.Fatal("missing required field validated")
	}
}

func TestSchema_RuleSeesParams(t *testing.T) {
	s := MustSchema(
		Field{Name: "from", Required: true},
		Field{Name: "to", Required: true, Rule: `value >= params.from`},
	)
	if _, err := s.Validate(Params{"from": 1, "to": 2}); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if _, err := s.Validate(Params{"from": 3, "to": 2}); err == nil {
		t.Fatal("inverted range accepted")
	}
}

func TestSchema_Lenient(t *testing.T) {
	s := MustSchema(
		Field{Name: "org", Required: true},
		Field{Name: "queue", Required: true, Rule: `value != ""`},
		Field{Name: "cursor"},
	)
	got := s.Lenient(Params{"org": 1, "queue": ""})
	if got["org"] != 1 || got["queue"] != Wildcard {
		t.Fatalf("got %v", got)
	}
	if _, ok := got["cursor"]; ok {
		t.Fatalf("absent optional field became %v", got["cursor"])
	}
}

func TestSchema_Nil(t *testing.T) {
	var s *Schema
	p := Params{"a": 1}
	got, err := s.Validate(p)
	if err != nil || got["a"] != 1 {
		t.Fatalf("nil schema: %v %v", got, err)
	}
	got["a"] = 2
	if p["a"] != 1 {
		t.Fatalf("nil schema must copy params")
	}
}

func TestNewSchema_Errors(t *testing.T) {
	if _, err := NewSchema(Field{Name: "a"}, Field{Name: "a"}); err == nil {
		t.Fatal("duplicate field accepted")
	}
	if _, err := NewSchema(Field{}); err == nil {
		t.Fatal("unnamed field accepted")
	}
	if _, err := NewSchema(Field{Name: "a", Rule: `value >`}); err == nil {
		t.Fatal("bad rule compiled")
	}
}
