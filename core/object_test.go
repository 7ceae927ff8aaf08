package core

import (
	"testing"
)

func TestObjectType(t *testing.T) {
	tests := []struct {
		obj  Object
		want string
	}{
		{Null{}, "Null"},
		{Bool(true), "Bool"},
		{Int(1), "Int"},
		{Real(1.5), "Real"},
		{String("s"), "String"},
		{Name("N"), "Name"},
		{Array{}, "Array"},
		{Dict{}, "Dict"},
		{&Stream{}, "Stream"},
		{IndirectRef{1, 0}, "IndirectRef"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.obj.Type().String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
	if got := ObjectType(99).String(); got != "Unknown" {
		t.Errorf("expected Unknown, got %q", got)
	}
}

func TestObjectString(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		want string
	}{
		{"null", Null{}, "null"},
		{"false", Bool(false), "false"},
		{"negative int", Int(-42), "-42"},
		{"real", Real(3.25), "3.25"},
		{"name", Name("Type"), "/Type"},
		{"ref", IndirectRef{12, 3}, "12 3 R"},
		{"array", Array{Int(1), Name("A"), Null{}}, "[1 /A null]"},
		{"dict sorted", Dict{"B": Int(2), "A": Int(1)}, "<</A 1 /B 2>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obj.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestArrayAccessors(t *testing.T) {
	arr := Array{Int(7), Name("X")}

	if arr.Len() != 2 {
		t.Errorf("expected length 2, got %d", arr.Len())
	}
	if arr.Get(-1) != nil || arr.Get(2) != nil {
		t.Error("out of range Get should return nil")
	}
	if v, ok := arr.GetInt(0); !ok || v != 7 {
		t.Errorf("GetInt(0) = %v, %v", v, ok)
	}
	if _, ok := arr.GetInt(1); ok {
		t.Error("GetInt on a name should fail")
	}
	if v, ok := arr.GetName(1); !ok || v != "X" {
		t.Errorf("GetName(1) = %v, %v", v, ok)
	}
}

func TestDictAccessors(t *testing.T) {
	d := Dict{
		"Type":  Name("Page"),
		"Count": Int(3),
		"Kids":  Array{IndirectRef{4, 0}},
		"Res":   Dict{},
		"Title": String("t"),
		"P":     IndirectRef{2, 0},
	}

	if !d.IsType("Page") || d.IsType("Pages") {
		t.Error("IsType mismatch")
	}
	if v, ok := d.GetInt("Count"); !ok || v != 3 {
		t.Errorf("GetInt = %v, %v", v, ok)
	}
	if _, ok := d.GetArray("Kids"); !ok {
		t.Error("GetArray failed")
	}
	if _, ok := d.GetDict("Res"); !ok {
		t.Error("GetDict failed")
	}
	if v, ok := d.GetString("Title"); !ok || v != "t" {
		t.Errorf("GetString = %v, %v", v, ok)
	}
	if v, ok := d.GetIndirectRef("P"); !ok || v.Number != 2 {
		t.Errorf("GetIndirectRef = %v, %v", v, ok)
	}
	if _, ok := d.GetName("Count"); ok {
		t.Error("GetName on an integer should fail")
	}

	d.Set("New", Bool(true))
	if !d.Has("New") {
		t.Error("Set did not add the key")
	}
	d.Delete("New")
	if d.Has("New") {
		t.Error("Delete did not remove the key")
	}

	keys := d.Keys()
	want := []string{"Count", "Kids", "P", "Res", "Title", "Type"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], keys[i])
		}
	}
}

func TestStreamSetData(t *testing.T) {
	s := &Stream{}
	s.SetData([]byte("hello"))
	if v, _ := s.Dict.GetInt("Length"); v != 5 {
		t.Errorf("expected /Length 5, got %v", v)
	}
	data, err := s.Decoded()
	if err != nil || string(data) != "hello" {
		t.Fatalf("Decoded = %q, %v", data, err)
	}
	s.SetData([]byte("bye"))
	data, _ = s.Decoded()
	if string(data) != "bye" {
		t.Errorf("SetData should drop the decoded cache, got %q", data)
	}
}

func TestClone(t *testing.T) {
	orig := Dict{
		"Kids": Array{IndirectRef{3, 0}, Dict{"X": Int(1)}},
		"S":    &Stream{Dict: Dict{"Length": Int(3)}, Data: []byte("abc")},
	}
	c := Clone(orig).(Dict)

	c["Kids"].(Array)[1].(Dict)["X"] = Int(2)
	c["S"].(*Stream).Data[0] = 'z'
	c["S"].(*Stream).Dict["Length"] = Int(9)
	c["New"] = Null{}

	if orig.Has("New") {
		t.Error("clone shares the top-level map")
	}
	if v := orig["Kids"].(Array)[1].(Dict)["X"]; v != Int(1) {
		t.Errorf("nested dict was shared: %v", v)
	}
	s := orig["S"].(*Stream)
	if string(s.Data) != "abc" || s.Dict["Length"] != Int(3) {
		t.Error("stream was shared")
	}
	if Clone(Int(4)) != Int(4) {
		t.Error("scalars clone to themselves")
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Object
		want bool
	}{
		{"same int", Int(1), Int(1), true},
		{"int and real", Int(1), Real(1), true},
		{"real and int", Real(2.5), Int(2), false},
		{"names", Name("A"), Name("B"), false},
		{"name and string", Name("A"), String("A"), false},
		{"refs by value", IndirectRef{1, 0}, IndirectRef{1, 0}, true},
		{"refs differ", IndirectRef{1, 0}, IndirectRef{1, 1}, false},
		{"nil and nil", nil, nil, true},
		{"nil and null", nil, Null{}, false},
		{"arrays", Array{Int(1), Name("X")}, Array{Int(1), Name("X")}, true},
		{"array lengths", Array{Int(1)}, Array{Int(1), Int(2)}, false},
		{"dicts", Dict{"A": Array{Int(1)}}, Dict{"A": Array{Int(1)}}, true},
		{"dict values", Dict{"A": Int(1)}, Dict{"A": Int(2)}, false},
		{"dict keys", Dict{"A": Int(1)}, Dict{"B": Int(1)}, false},
		{"streams", &Stream{Dict: Dict{}, Data: []byte("x")}, &Stream{Dict: Dict{}, Data: []byte("x")}, true},
		{"stream data", &Stream{Dict: Dict{}, Data: []byte("x")}, &Stream{Dict: Dict{}, Data: []byte("y")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestWalk(t *testing.T) {
	obj := Dict{
		"Pages": IndirectRef{2, 0},
		"Kids":  Array{IndirectRef{3, 0}, Int(5), Dict{"P": IndirectRef{2, 0}}},
		"S":     &Stream{Dict: Dict{"Length": IndirectRef{9, 0}}},
	}

	var seen []int
	Walk(obj, func(ref IndirectRef) IndirectRef {
		seen = append(seen, ref.Number)
		return IndirectRef{Number: ref.Number * 10}
	})

	if len(seen) != 4 {
		t.Errorf("expected 4 references, got %v", seen)
	}
	if obj["Pages"] != (IndirectRef{Number: 20}) {
		t.Errorf("top-level ref not rewritten: %v", obj["Pages"])
	}
	if obj["Kids"].(Array)[2].(Dict)["P"] != (IndirectRef{Number: 20}) {
		t.Error("nested ref not rewritten")
	}
	if obj["S"].(*Stream).Dict["Length"] != (IndirectRef{Number: 90}) {
		t.Error("stream dictionary ref not rewritten")
	}
	if got := Walk(IndirectRef{1, 0}, func(IndirectRef) IndirectRef { return IndirectRef{7, 0} }); got != (IndirectRef{7, 0}) {
		t.Errorf("bare reference should be replaced, got %v", got)
	}
}
