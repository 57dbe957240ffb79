package orchestrator

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// LineSource yields protocol lines in arrival order, one batch per engine
// message. It returns io.EOF when the stream is over.
type LineSource interface {
	Next(ctx context.Context) ([]string, error)
}

// ReaderSource replays a saved log. A blank line ends a batch and every
// |request| line is a batch of its own, as on a live connection.
type ReaderSource struct {
	sc   *bufio.Scanner
	held string
}

func NewReaderSource(r io.Reader) *ReaderSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &ReaderSource{sc: sc}
}

func (s *ReaderSource) Next(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.held != "" {
		line := s.held
		s.held = ""
		return []string{line}, nil
	}
	var batch []string
	for s.sc.Scan() {
		line := strings.TrimRight(s.sc.Text(), "\r")
		switch {
		case line == "":
			if len(batch) > 0 {
				return batch, nil
			}
		case strings.HasPrefix(line, "|request|"):
			if len(batch) > 0 {
				s.held = line
				return batch, nil
			}
			return []string{line}, nil
		default:
			batch = append(batch, line)
		}
	}
	if err := s.sc.Err(); err != nil {
		return batch, err
	}
	if len(batch) > 0 {
		return batch, nil
	}
	return nil, io.EOF
}
