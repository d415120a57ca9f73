// Package persist implements the binary persistence codec:
// a self-describing, byte-exact format written and read directly against
// io.Writer/io.Reader with encoding/binary, one container or point at a
// time, so memory use stays proportional to the working set rather than
// the whole file.
package persist

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
)

var magic = [4]byte{'H', 'A', 'T', '1'}
var endMarker = [4]byte{'E', 'N', 'D', 'X'}

const formatVersion uint32 = 1

// Save writes tree in canonical (ascending container id) order.
func Save(w io.Writer, tree *container.Tree) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(magic[:]); err != nil {
		return hat.NewIoError(err)
	}
	if err := writeU32(bw, formatVersion); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(tree.Dimensionality)); err != nil {
		return err
	}
	if err := writeU8(bw, metricTag(tree.MetricKind)); err != nil {
		return err
	}
	if err := writeU64(bw, tree.NextPointID()); err != nil {
		return err
	}
	if err := writeU64(bw, tree.ActiveSessionID); err != nil {
		return err
	}
	if err := writeU64(bw, tree.ActiveDocumentID); err != nil {
		return err
	}

	ids := tree.AllIDs()
	if err := writeU64(bw, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		c := tree.MustGet(id)
		if err := writeContainer(bw, c); err != nil {
			return err
		}
	}

	if _, err := bw.Write(endMarker[:]); err != nil {
		return hat.NewIoError(err)
	}
	if err := bw.Flush(); err != nil {
		return hat.NewIoError(err)
	}
	return nil
}

func writeContainer(w io.Writer, c *container.Container) error {
	if err := writeU64(w, c.ID); err != nil {
		return err
	}
	if err := writeU8(w, levelTag(c.Level)); err != nil {
		return err
	}
	if err := writeU64(w, c.ParentID); err != nil {
		return err
	}
	if err := writeU64(w, c.Count); err != nil {
		return err
	}
	if err := writeU64(w, uint64(c.CreatedAt)); err != nil {
		return err
	}
	if err := writeVector(w, c.Centroid); err != nil {
		return err
	}

	if c.IsLeaf() {
		if err := writeU32(w, uint32(len(c.Children))); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(c.Points))); err != nil {
			return err
		}
		for _, p := range c.Points {
			if err := writeU64(w, p.ID); err != nil {
				return err
			}
			if err := writeVector(w, p.Vector); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeU32(w, uint32(len(c.Children))); err != nil {
		return err
	}
	for _, child := range c.Children {
		if err := writeU64(w, child); err != nil {
			return err
		}
	}
	return writeU32(w, 0)
}

func writeVector(w io.Writer, v []float32) error {
	for _, x := range v {
		if err := binary.Write(w, binary.LittleEndian, x); err != nil {
			return hat.NewIoError(err)
		}
	}
	return nil
}

func writeU8(w io.Writer, v uint8) error {
	if _, err := w.Write([]byte{v}); err != nil {
		return hat.NewIoError(err)
	}
	return nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return hat.NewIoError(err)
	}
	return nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return hat.NewIoError(err)
	}
	return nil
}

func metricTag(m hat.Metric) uint8 {
	if m == hat.Dot {
		return 1
	}
	return 0
}

func levelTag(l hat.Level) uint8 {
	switch l {
	case hat.GlobalLevel:
		return 0
	case hat.SessionLevel:
		return 1
	case hat.DocumentLevel:
		return 2
	default:
		return 3
	}
}
