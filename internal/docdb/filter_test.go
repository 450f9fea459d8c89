package docdb

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func mustDoc(t *testing.T, s string) Document {
	t.Helper()
	d, err := DecodeDocument([]byte(s))
	if err != nil {
		t.Fatalf("DecodeDocument(%s): %v", s, err)
	}
	return d
}

// matching returns the "_id" of every document matched by filter, in input
// order.
func matching(t *testing.T, filter string, docs ...string) []string {
	t.Helper()
	f, err := ParseFilter(json.RawMessage(filter))
	if err != nil {
		t.Fatalf("ParseFilter(%s): %v", filter, err)
	}
	var ids []string
	for _, s := range docs {
		d := mustDoc(t, s)
		if f.Match(d) {
			ids = append(ids, d.ID())
		}
	}
	return ids
}

func TestFilter(t *testing.T) {
	people := []string{
		`{"_id":"1","name":"Alice","age":25,"city":"NY"}`,
		`{"_id":"2","name":"Anna","age":30,"city":"Paris"}`,
		`{"_id":"3","name":"Bob","age":40,"city":"LA"}`,
		`{"_id":"4","name":"Aice","age":15.0,"tags":["a","b"],"addr":{"zip":"75001"}}`,
		`{"_id":"5","name":"Alicee","age":"22","nil":null}`,
	}
	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"empty matches all", `{}`, []string{"1", "2", "3", "4", "5"}},
		{"literal", `{"city":"Paris"}`, []string{"2"}},
		{"implicit and", `{"name":"Alice","city":"NY"}`, []string{"1"}},
		{"implicit and fails", `{"name":"Alice","city":"LA"}`, nil},
		{"missing field", `{"zzz":1}`, nil},
		{"missing field with operator", `{"zzz":{"$lt":1}}`, nil},
		{"number equality across representations", `{"age":15}`, []string{"4"}},
		{"null literal", `{"nil":null}`, []string{"5"}},
		{"array literal", `{"tags":["a","b"]}`, []string{"4"}},
		{"array literal order matters", `{"tags":["b","a"]}`, nil},
		{"object literal", `{"addr":{"zip":"75001"}}`, []string{"4"}},
		{"or", `{"$or":[{"age":25},{"city":"Paris"}]}`, []string{"1", "2"}},
		{"empty or", `{"$or":[]}`, nil},
		{"and", `{"$and":[{"age":{"$gt":20}},{"city":"Paris"}]}`, []string{"2"}},
		{"empty and", `{"$and":[]}`, []string{"1", "2", "3", "4", "5"}},
		{"and wins over fields", `{"$and":[{"city":"LA"}],"name":"Alice"}`, []string{"3"}},
		{"nested", `{"$or":[{"$and":[{"age":{"$gt":20}},{"age":{"$lt":35}}]},{"name":"Bob"}]}`, []string{"1", "2", "3"}},
		{"eq", `{"name":{"$eq":"Bob"}}`, []string{"3"}},
		{"gt", `{"age":{"$gt":25}}`, []string{"2", "3"}},
		{"lt", `{"age":{"$lt":25}}`, []string{"4"}},
		{"gt string", `{"name":{"$gt":"B"}}`, []string{"3"}},
		{"gt mixed types", `{"age":{"$gt":"1"}}`, []string{"5"}},
		{"gt non comparable", `{"tags":{"$gt":1}}`, nil},
		{"range", `{"age":{"$gt":20,"$lt":35}}`, []string{"1", "2"}},
		{"in", `{"city":{"$in":["LA","Paris"]}}`, []string{"2", "3"}},
		{"in numbers", `{"age":{"$in":[15,40]}}`, []string{"3", "4"}},
		{"in non array", `{"city":{"$in":"LA"}}`, nil},
		{"like prefix", `{"name":{"$like":"A%"}}`, []string{"1", "2", "4", "5"}},
		{"like single", `{"name":{"$like":"A_ice"}}`, []string{"1"}},
		{"like non string", `{"age":{"$like":"2%"}}`, []string{"5"}},
		{"like and eq are conjunctive", `{"name":{"$like":"A%","$eq":"Anna"}}`, []string{"2"}},
		{"other dollar keys are ignored", `{"age":25,"$comment":"x"}`, []string{"1"}},
		{"only dollar keys matches all", `{"$nor":[{"age":25}]}`, []string{"1", "2", "3", "4", "5"}},
		{"like and gt are conjunctive", `{"name":{"$like":"A%","$gt":"Alice"}}`, []string{"2", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matching(t, tt.filter, people...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("match %s = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestFilterRange(t *testing.T) {
	var docs []string
	for i, age := range []int{15, 22, 28, 35} {
		b, _ := json.Marshal(map[string]any{"_id": string(rune('a' + i)), "age": age})
		docs = append(docs, string(b))
	}
	got := matching(t, `{"age":{"$gt":20,"$lt":30}}`, docs...)
	if want := []string{"b", "c"}; !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseFilterErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{"empty", ``},
		{"not json", `{"a":`},
		{"array", `[{"a":1}]`},
		{"string", `"a"`},
		{"and not array", `{"$and":{"a":1}}`},
		{"or element not object", `{"$or":[1]}`},
		{"nested error", `{"$or":[{"$and":[{"a":{"$regex":"x"}}]}]}`},
		{"unknown operator", `{"a":{"$ne":1}}`},
		{"mixed condition", `{"a":{"$eq":1,"b":2}}`},
		{"trailing data", `{"a":1} {"b":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(json.RawMessage(tt.filter))
			if err == nil {
				t.Fatalf("ParseFilter(%s) succeeded", tt.filter)
			}
			if !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("ParseFilter(%s) = %v, want ErrInvalidFilter", tt.filter, err)
			}
		})
	}
}

func TestNilFilterMatchesAll(t *testing.T) {
	var f *Filter
	if !f.Match(Document{"_id": "x"}) {
		t.Error("nil filter should match")
	}
}
