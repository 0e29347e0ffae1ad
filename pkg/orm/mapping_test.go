package orm

import (
	"reflect"
	"testing"
)

func TestDecodeTableComment(t *testing.T) {
	var tests = []struct {
		name     string
		comment  string
		kind     TableKind
		mappings Mappings
	}{
		{"empty", "", KindTable, Mappings{}},
		{"plain table", "table", KindTable, Mappings{}},
		{"junction", "map", KindJunction, Mappings{}},
		{"free text", "customer accounts", KindTable, Mappings{}},
		{"mappings", "table|mappings:posts(one_many),groups(many_many)", KindTable,
			Mappings{"posts": OneToMany, "groups": ManyToMany}},
		{"spaces", "table | mappings: posts (one_one) , users(many_one)", KindTable,
			Mappings{"posts": OneToOne, "users": ManyToOne}},
		{"missing keyword", "table|mappings:posts", KindTable, Mappings{"posts": OneToMany}},
		{"unknown keyword", "table|mappings:posts(lots)", KindTable, Mappings{"posts": OneToMany}},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			kind, m := DecodeTableComment(tt.comment)
			if kind != tt.kind || !reflect.DeepEqual(m, tt.mappings) {
				t.Errorf("\ngot %v %v, wanted %v %v", kind, m, tt.kind, tt.mappings)
			}
		})
	}
}

func TestEncodeTableComment(t *testing.T) {
	var tests = []struct {
		name     string
		kind     TableKind
		mappings Mappings
		want     string
	}{
		{"no mappings", KindTable, nil, "table"},
		{"junction", KindJunction, Mappings{}, "map"},
		{"sorted", KindTable, Mappings{"posts": OneToMany, "groups": ManyToMany},
			"table|mappings:groups(many_many),posts(one_many)"},
		{"none skipped", KindTable, Mappings{"posts": RelationNone, "tags": OneToOne}, "table|mappings:tags(one_one)"},
		{"view written as table", KindView, Mappings{}, "table"},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeTableComment(tt.kind, tt.mappings); got != tt.want {
				t.Errorf("\ngot %q, wanted %q", got, tt.want)
			}
		})
	}
}

func TestTableCommentRoundTrip(t *testing.T) {
	m := Mappings{"a": OneToOne, "b": OneToMany, "c": ManyToOne, "d": ManyToMany}
	kind, got := DecodeTableComment(EncodeTableComment(KindJunction, m))
	if kind != KindJunction || !reflect.DeepEqual(got, m) {
		t.Errorf("\ngot %v %v, wanted %v %v", kind, got, KindJunction, m)
	}
}

func TestDecodeColumnComment(t *testing.T) {
	var tests = []struct {
		name    string
		comment string
		target  string
		ok      bool
	}{
		{"foreign key", "fk:users", "users", true},
		{"padded", " fk: users ", "users", true},
		{"no target", "fk:", "", false},
		{"free text", "the user", "", false},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			target, ok := DecodeColumnComment(tt.comment)
			if target != tt.target || ok != tt.ok {
				t.Errorf("\ngot %q %v, wanted %q %v", target, ok, tt.target, tt.ok)
			}
		})
	}
	if got := EncodeColumnComment("users"); got != "fk:users" {
		t.Errorf("\ngot %q, wanted %q", got, "fk:users")
	}
}

func TestParseRelationType(t *testing.T) {
	for _, r := range []RelationType{OneToOne, OneToMany, ManyToOne, ManyToMany} {
		if got := ParseRelationType(r.String()); got != r {
			t.Errorf("\ngot %v, wanted %v", got, r)
		}
	}
	if got := ParseRelationType("MANY_MANY"); got != ManyToMany {
		t.Errorf("\nparsing is not case insensitive: got %v", got)
	}
	if got := ParseRelationType("sideways"); got != OneToMany {
		t.Errorf("\ngot %v for an unknown keyword, wanted %v", got, OneToMany)
	}
}
