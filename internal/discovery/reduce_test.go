package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonPrefix(t *testing.T) {
	tests := []struct {
		s, t string
		want string
	}{
		{"http://a.org/x/1", "http://a.org/x/2", "http://a.org/x/"},
		{"http://a.org/x", "http://a.org/x/1", "http://a.org/x"},
		{"abc", "xyz", ""},
		{"", "abc", ""},
		{"same", "same", "same"},
	}

	for _, tt := range tests {
		t.Run(tt.s+"|"+tt.t, func(t *testing.T) {
			assert.Equal(t, tt.want, CommonPrefix(tt.s, tt.t))
			assert.Equal(t, tt.want, CommonPrefix(tt.t, tt.s))
		})
	}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
		{
			name: "single",
			in:   []string{"http://a.org/x/1"},
			want: []string{"http://a.org/x/1"},
		},
		{
			name: "shared path groups and a loner",
			in:   []string{"http://a.org/x/1", "http://a.org/x/2", "http://b.org/y/1"},
			want: []string{"http://a.org/x/", "http://b.org/y/1"},
		},
		{
			name: "duplicates collapse",
			in:   []string{"http://a.org/x/1", "http://a.org/x/1", "http://a.org/x/2"},
			want: []string{"http://a.org/x/"},
		},
		{
			name: "non url identifiers",
			in:   []string{"abc1", "abc2", "xyz"},
			want: []string{"abc", "xyz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.in))
		})
	}
}

func TestDiscoverReachesFixedPoint(t *testing.T) {
	in := []string{
		"http://purl.obolibrary.org/obo/HP_0000118",
		"http://purl.obolibrary.org/obo/HP_0000707",
		"http://purl.obolibrary.org/obo/MONDO_0005148",
		"http://purl.obolibrary.org/obo/MONDO_0007739",
		"http://www.ncbi.nlm.nih.gov/gene/1017",
	}

	got := Discover(in)

	assert.Equal(t, []string{
		"http://purl.obolibrary.org/obo/",
		"http://www.ncbi.nlm.nih.gov/gene/1017",
	}, got)
	assert.Equal(t, got, Discover(got), "output is a fixed point")
}
