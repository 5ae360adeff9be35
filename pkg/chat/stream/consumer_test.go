package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	chunks [][]byte
	err    error
	pos    int
	closed bool
}

func newSliceSource(chunks ...string) *sliceSource {
	s := &sliceSource{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestConsumeAppliesInOrder(t *testing.T) {
	src := newSliceSource("Hel", "lo ", "world")
	var applied []string

	res, err := NewConsumer().Consume(context.Background(), src, func(chunk string) bool {
		applied = append(applied, chunk)
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo ", "world"}, applied)
	assert.Equal(t, "Hello world", res.Text)
	assert.Equal(t, 3, res.Chunks)
	assert.False(t, res.Abandoned)
	assert.True(t, src.closed)
}

func TestConsumeJoinsSplitRunes(t *testing.T) {
	word := []byte("héllo ✓")
	// split inside the two-byte é and inside the three-byte check mark
	src := &sliceSource{chunks: [][]byte{word[:2], word[2:8], word[8:]}}
	var applied []string

	res, err := NewConsumer().Consume(context.Background(), src, func(chunk string) bool {
		applied = append(applied, chunk)
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, "héllo ✓", res.Text)
	for _, chunk := range applied {
		assert.NotContains(t, chunk, "�")
	}
}

func TestConsumeStopsWhenStale(t *testing.T) {
	src := newSliceSource("a", "b", "c", "d")
	calls := 0

	res, err := NewConsumer().Consume(context.Background(), src, func(chunk string) bool {
		calls++
		return calls < 2
	})

	assert.ErrorIs(t, err, ErrAbandoned)
	assert.True(t, res.Abandoned)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "a", res.Text)
	assert.True(t, src.closed)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newSliceSource("a", "b", "c")
	var applied []string

	_, err := NewConsumer().Consume(ctx, src, func(chunk string) bool {
		applied = append(applied, chunk)
		cancel()
		return true
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, applied)
}

func TestConsumeReturnsReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := newSliceSource("partial")
	src.err = boom

	res, err := NewConsumer().Consume(context.Background(), src, func(string) bool { return true })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", res.Text)
}

func TestConsumeEmptyStream(t *testing.T) {
	res, err := NewConsumer().Consume(context.Background(), newSliceSource(), func(string) bool {
		t.Fatal("apply must not be called")
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, 0, res.Chunks)
}
