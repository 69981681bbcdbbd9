package wire

import "io"

// SRTPayloadSize is the largest message an SRT live-mode socket accepts
// by default: seven 188-byte TS packets.
const SRTPayloadSize = 1316

// ChunkWriter splits each Write into messages of at most Size bytes, for
// message-oriented transports such as SRT in live mode.
type ChunkWriter struct {
	W    io.Writer
	Size int
}

// NewChunkWriter returns a ChunkWriter with SRTPayloadSize chunks.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{W: w, Size: SRTPayloadSize}
}

func (c *ChunkWriter) Write(p []byte) (int, error) {
	size := c.Size
	if size <= 0 {
		size = SRTPayloadSize
	}
	written := 0
	for len(p) > 0 {
		n := min(len(p), size)
		m, err := c.W.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
