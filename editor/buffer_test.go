package editor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeSpan returns the rune offsets of the n-th (0-based) occurrence of sub
func runeSpan(t *testing.T, text, sub string, n int) (int, int) {
	t.Helper()
	offset := 0
	for i := 0; ; i++ {
		idx := strings.Index(text[offset:], sub)
		require.GreaterOrEqual(t, idx, 0, "substring %q not found", sub)
		if i == n {
			from := utf8.RuneCountInString(text[:offset+idx])
			return from, from + utf8.RuneCountInString(sub)
		}
		offset += idx + len(sub)
	}
}

func TestBufferInsertShiftsRanges(t *testing.T) {
	b := NewBuffer("o réu não pagou")
	from, to := runeSpan(t, b.String(), "não pagou", 0)
	r, err := b.Track(from, to)
	require.NoError(t, err)

	require.NoError(t, b.Insert(0, "Alega-se que "))
	assert.Equal(t, "não pagou", r.Text())

	// insertion inside grows the range
	f, _ := r.Span()
	require.NoError(t, b.Insert(f+3, " ainda"))
	assert.Equal(t, "não ainda pagou", r.Text())

	// insertion at the end stays outside
	_, end := r.Span()
	require.NoError(t, b.Insert(end, " a dívida"))
	assert.Equal(t, "não ainda pagou", r.Text())
	assert.Equal(t, "Alega-se que o réu não ainda pagou a dívida", b.String())
}

func TestBufferDeleteShiftsAndCollapses(t *testing.T) {
	b := NewBuffer("abc def ghi")
	r, err := b.Track(4, 7)
	require.NoError(t, err)

	require.NoError(t, b.Delete(0, 4))
	assert.Equal(t, "def", r.Text())
	from, to := r.Span()
	assert.Equal(t, [2]int{0, 3}, [2]int{from, to})

	// overlapping delete trims the range
	require.NoError(t, b.Delete(1, 5))
	assert.Equal(t, "d", r.Text())

	require.NoError(t, b.Delete(0, b.Len()))
	from, to = r.Span()
	assert.Equal(t, [2]int{0, 0}, [2]int{from, to})
}

func TestBufferReplaceKeepsOtherRanges(t *testing.T) {
	text := "pagou e depois pagou novamente"
	b := NewBuffer(text)
	first, err := b.Track(runeSpan(t, text, "pagou", 0))
	require.NoError(t, err)
	second, err := b.Track(runeSpan(t, text, "pagou", 1))
	require.NoError(t, err)

	require.NoError(t, b.Replace(second, "adimpliu a obrigação"))
	assert.Equal(t, "pagou e depois adimpliu a obrigação novamente", b.String())
	assert.Equal(t, "adimpliu a obrigação", second.Text())
	assert.Equal(t, "pagou", first.Text())

	require.NoError(t, b.Replace(first, "quitou"))
	assert.Equal(t, "quitou e depois adimpliu a obrigação novamente", b.String())
	assert.Equal(t, "adimpliu a obrigação", second.Text())
}

func TestBufferRejectsBadOffsetsAndReleasedRanges(t *testing.T) {
	b := NewBuffer("ação")
	assert.Equal(t, 4, b.Len())

	_, err := b.Track(2, 5)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = b.Track(3, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, b.Insert(-1, "x"), ErrOutOfRange)

	r, err := b.Track(0, 1)
	require.NoError(t, err)
	r.Release()
	r.Release()
	assert.ErrorIs(t, b.Replace(r, "x"), ErrReleased)
	assert.Equal(t, "ação", b.String())
}

func TestBufferVersionCountsEdits(t *testing.T) {
	b := NewBuffer("texto")
	v := b.Version()
	require.NoError(t, b.Insert(0, ""))
	assert.Equal(t, v, b.Version())
	require.NoError(t, b.Insert(5, "!"))
	assert.Equal(t, v+1, b.Version())
}
