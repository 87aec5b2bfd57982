package stream

import (
	"bytes"
)

// lineBuffer holds received but unterminated text. Complete lines are handed
// out in arrival order with any trailing \r removed.
type lineBuffer struct {
	pending []byte
}

func (b *lineBuffer) feed(chunk []byte, emit func(line []byte)) {
	b.pending = append(b.pending, chunk...)
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(b.pending[:i], []byte{'\r'})
		emit(line)
		b.pending = b.pending[i+1:]
	}
	// Compact so a long-lived stream does not pin every chunk it has seen.
	if len(b.pending) == 0 {
		b.pending = nil
	} else if cap(b.pending) > 4*len(b.pending)+4096 {
		b.pending = append([]byte(nil), b.pending...)
	}
}

// residual returns and clears the unterminated tail.
func (b *lineBuffer) residual() []byte {
	tail := bytes.TrimSuffix(b.pending, []byte{'\r'})
	b.pending = nil
	return tail
}

// decoder turns a byte stream into candidate JSON records.
type decoder interface {
	feed(chunk []byte, emit func(record []byte))
	// flush emits whatever complete-looking record remains at end of input.
	flush(emit func(record []byte))
}

func newDecoder(format Format) decoder {
	if format == FormatSSE {
		return &sseDecoder{}
	}
	return &ndjsonDecoder{}
}

type ndjsonDecoder struct {
	buf lineBuffer
}

func (d *ndjsonDecoder) feed(chunk []byte, emit func([]byte)) {
	d.buf.feed(chunk, func(line []byte) {
		// Blank lines are lichess keep-alives.
		if len(bytes.TrimSpace(line)) > 0 {
			emit(line)
		}
	})
}

func (d *ndjsonDecoder) flush(emit func([]byte)) {
	if tail := d.buf.residual(); len(bytes.TrimSpace(tail)) > 0 {
		emit(tail)
	}
}

// sseDecoder implements the subset of the event-stream format lichess uses:
// data and event fields, comments, and blank-line dispatch. Only events named
// "message" (or unnamed) are emitted.
type sseDecoder struct {
	buf   lineBuffer
	event string
	data  []byte
}

func (d *sseDecoder) feed(chunk []byte, emit func([]byte)) {
	d.buf.feed(chunk, func(line []byte) { d.line(line, emit) })
}

func (d *sseDecoder) flush(emit func([]byte)) {
	if tail := d.buf.residual(); len(tail) > 0 {
		d.line(tail, emit)
	}
	d.dispatch(emit)
}

func (d *sseDecoder) line(line []byte, emit func([]byte)) {
	if len(line) == 0 {
		d.dispatch(emit)
		return
	}
	if line[0] == ':' {
		return
	}

	field, value, found := bytes.Cut(line, []byte{':'})
	if found {
		value = bytes.TrimPrefix(value, []byte{' '})
	}
	switch string(field) {
	case "data":
		if d.data != nil {
			d.data = append(d.data, '\n')
		}
		d.data = append(d.data, value...)
		if d.data == nil {
			d.data = []byte{}
		}
	case "event":
		d.event = string(value)
	}
}

func (d *sseDecoder) dispatch(emit func([]byte)) {
	data, event := d.data, d.event
	d.data, d.event = nil, ""
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	if event == "" || event == "message" {
		emit(data)
	}
}
