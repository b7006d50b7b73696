package feature

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsguard/dnsguard/pkg/lexical"
)

func TestColumnsMatchValues(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, NumColumns)

	var v Vector
	require.Len(t, v.Values(), NumColumns)

	// Columns must return a copy, not the canonical slice.
	cols[0] = "mutated"
	assert.Equal(t, "total_len", Columns()[0])
}

func TestBuildEmptyName(t *testing.T) {
	b := NewBuilder(lexical.DefaultReferenceSets())
	v := b.Build("")
	assert.Equal(t, Vector{}, v, "empty input must yield the zero vector")
}

func TestBuildSimpleDomain(t *testing.T) {
	b := NewBuilder(lexical.DefaultReferenceSets())
	v := b.Build("www.example.com")

	assert.Equal(t, 15.0, v.TotalLen)
	assert.Equal(t, 3.0, v.NumLabels)
	assert.Equal(t, 7.0, v.MaxLabelLen)
	assert.InDelta(t, 13.0/3.0, v.MeanLabelLen, 1e-9)
	assert.Greater(t, v.EntropyFull, 0.0)
	assert.Equal(t, 0.0, v.TLDUncommon)
	assert.Equal(t, 0.0, v.Base64LabelPresent)
	assert.Equal(t, 0.0, v.TunnelingKeywordPresent)
	// "www" is the longest run of a repeated character
	assert.Equal(t, 3.0, v.RepeatRunMax)
}

func TestBuildStructuralSignals(t *testing.T) {
	b := NewBuilder(lexical.DefaultReferenceSets())

	t.Run("Encoded label sets flag", func(t *testing.T) {
		v := b.Build("aGVsbG93b3JsZGJhc2U2NGVuY29kZWQ.example.com")
		assert.Equal(t, 1.0, v.Base64LabelPresent)
	})

	t.Run("Uncommon TLD sets flag", func(t *testing.T) {
		v := b.Build("host.example.xyz")
		assert.Equal(t, 1.0, v.TLDUncommon)
	})

	t.Run("Tunneling keyword sets flag", func(t *testing.T) {
		v := b.Build("dnscat.evil.net")
		assert.Equal(t, 1.0, v.TunnelingKeywordPresent)
	})

	t.Run("Digit-heavy longest label", func(t *testing.T) {
		v := b.Build("12345678.example.com")
		assert.InDelta(t, 1.0, v.LongestLabelDigitFrac, 1e-9)
	})
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(lexical.DefaultReferenceSets())
	const name = "x9k2.payload.tunnel.example.xyz"

	first := b.Build(name)
	for range 10 {
		assert.Equal(t, first, b.Build(name), "repeated builds must be bit-identical")
	}
}

func TestBuildConcurrent(t *testing.T) {
	b := NewBuilder(lexical.DefaultReferenceSets())
	names := []string{
		"www.google.com",
		"aGVsbG93b3JsZGJhc2U2NGVuY29kZWQ.example.com",
		"a.b.c.d.e.f.example.xyz",
		"",
	}

	want := make([]Vector, len(names))
	for i, n := range names {
		want[i] = b.Build(n)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for i, n := range names {
				got := b.Build(n)
				assert.Equal(t, want[i], got)
			}
		})
	}
	wg.Wait()
}
