// Package stream assembles an incremental answer into a single growing
// assistant message.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// ChunkSource is a finite, non-restartable sequence of raw chunks.
// Next returns io.EOF once the sequence is exhausted.
type ChunkSource interface {
	Next() ([]byte, error)
	Close() error
}

// ApplyFunc receives decoded text in arrival order. It returns false when the
// target placeholder is no longer current; the consumer then stops reading.
type ApplyFunc func(chunk string) bool

type Result struct {
	Text      string
	Chunks    int
	Abandoned bool
}

var ErrAbandoned = errors.New("stream abandoned")

type Consumer struct{}

func NewConsumer() *Consumer {
	return &Consumer{}
}

// Consume drains src, applying each decoded chunk through apply. It never
// calls apply after it returns, after apply reported the stream stale, or
// after ctx is done. The source is always closed.
func (c *Consumer) Consume(ctx context.Context, src ChunkSource, apply ApplyFunc) (Result, error) {
	defer src.Close()

	var (
		res Result
		sb  strings.Builder
		dec decoder
	)

	emit := func(text string) bool {
		if text == "" {
			return true
		}
		if !apply(text) {
			res.Abandoned = true
			return false
		}
		sb.WriteString(text)
		res.Chunks++
		return true
	}

	for {
		if err := ctx.Err(); err != nil {
			res.Text = sb.String()
			return res, err
		}

		raw, err := src.Next()
		if len(raw) > 0 {
			// A late chunk may race a cancellation; re-check before applying.
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.Text = sb.String()
				return res, ctxErr
			}
			if !emit(dec.decode(raw)) {
				res.Text = sb.String()
				return res, ErrAbandoned
			}
		}

		if errors.Is(err, io.EOF) {
			if !emit(dec.flush()) {
				res.Text = sb.String()
				return res, ErrAbandoned
			}
			res.Text = sb.String()
			return res, nil
		}
		if err != nil {
			res.Text = sb.String()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, err
		}
	}
}

// decoder holds back an incomplete trailing UTF-8 sequence until the next
// chunk completes it. Chunk boundaries carry no meaning beyond that.
type decoder struct {
	pending []byte
}

func (d *decoder) decode(p []byte) string {
	buf := make([]byte, 0, len(d.pending)+len(p))
	buf = append(buf, d.pending...)
	buf = append(buf, p...)

	cut := len(buf)
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				cut = i
			}
			break
		}
	}

	d.pending = append([]byte(nil), buf[cut:]...)
	return string(buf[:cut])
}

func (d *decoder) flush() string {
	s := string(d.pending)
	d.pending = nil
	return s
}
