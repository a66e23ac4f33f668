package cloudinary

import (
	"testing"

	"sayu-ops/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestCandidates(t *testing.T) {
	patterns := []config.ProbePattern{{
		Folder:     "sayu/met-artworks",
		Name:       "{prefix}-{id}",
		Prefixes:   []string{"met-chicago"},
		IDs:        []string{"100829"},
		Versions:   []string{"", "1752754449"},
		Extensions: []string{"jpg", ".png"},
	}}

	got := Candidates("", "dkdzgpj3n", patterns)
	assert.Equal(t, []string{
		"https://res.cloudinary.com/dkdzgpj3n/image/upload/sayu/met-artworks/met-chicago-100829.jpg",
		"https://res.cloudinary.com/dkdzgpj3n/image/upload/sayu/met-artworks/met-chicago-100829.png",
		"https://res.cloudinary.com/dkdzgpj3n/image/upload/v1752754449/sayu/met-artworks/met-chicago-100829.jpg",
		"https://res.cloudinary.com/dkdzgpj3n/image/upload/v1752754449/sayu/met-artworks/met-chicago-100829.png",
	}, got)
}

func TestCandidatesRangeAndDedupe(t *testing.T) {
	patterns := []config.ProbePattern{
		{Folder: "sayu/artvee", Name: "{id}", IDFrom: 1, IDTo: 3, IDs: []string{"2"}, Transforms: []string{"w_400"}},
		{Folder: "/sayu/artvee/", Name: "{id}", IDs: []string{"3"}, Transforms: []string{"w_400"}},
	}

	got := Candidates("https://cdn.example.com/", "demo", patterns)
	assert.Equal(t, []string{
		"https://cdn.example.com/demo/image/upload/w_400/sayu/artvee/2.jpg",
		"https://cdn.example.com/demo/image/upload/w_400/sayu/artvee/1.jpg",
		"https://cdn.example.com/demo/image/upload/w_400/sayu/artvee/3.jpg",
	}, got)

	// same input, same output
	assert.Equal(t, got, Candidates("https://cdn.example.com/", "demo", patterns))
}

func TestCandidatesTemplates(t *testing.T) {
	// no prefix leaves no dangling separator
	got := Candidates("", "c", []config.ProbePattern{{Name: "{prefix}-{id}", IDs: []string{"7"}}})
	assert.Equal(t, []string{"https://res.cloudinary.com/c/image/upload/7.jpg"}, got)

	// a fixed name ignores ids
	got = Candidates("", "c", []config.ProbePattern{{Name: "logo", IDs: []string{"1", "2"}}})
	assert.Equal(t, []string{"https://res.cloudinary.com/c/image/upload/logo.jpg"}, got)

	// an id template without ids yields nothing
	assert.Empty(t, Candidates("", "c", []config.ProbePattern{{Name: "{id}"}}))
}
