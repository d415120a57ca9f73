package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hatindex/hat"
	"github.com/hatindex/hat/container"
)

// Load reads a stream written by Save and reconstructs a Tree, validating
// structural integrity (no orphan parents, no cycles, every level at its
// expected depth from Global) before handing it back.
func Load(r io.Reader) (*container.Tree, error) {
	br := bufio.NewReader(r)

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, hat.NewIoError(err)
	}
	if gotMagic != magic {
		return nil, hat.NewBadMagic(gotMagic)
	}

	version, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, hat.NewUnsupportedVersion(version)
	}

	dimensionality, err := readU32(br)
	if err != nil {
		return nil, err
	}
	metricByte, err := readU8(br)
	if err != nil {
		return nil, err
	}
	metricKind, err := fromMetricTag(metricByte)
	if err != nil {
		return nil, err
	}

	nextPointID, err := readU64(br)
	if err != nil {
		return nil, err
	}
	activeSessionID, err := readU64(br)
	if err != nil {
		return nil, err
	}
	activeDocumentID, err := readU64(br)
	if err != nil {
		return nil, err
	}
	containerCount, err := readU64(br)
	if err != nil {
		return nil, err
	}

	cfg := hat.DefaultConfig(int(dimensionality), metricKind)
	tree := container.NewTree(cfg)

	var maxContainerID uint64
	var maxTimestamp uint64
	records := make(map[uint64]*container.Container, containerCount)
	for i := uint64(0); i < containerCount; i++ {
		c, createdAt, err := readContainer(br, int(dimensionality))
		if err != nil {
			return nil, err
		}
		if _, dup := records[c.ID]; dup {
			return nil, hat.NewCorrupt(fmt.Sprintf("duplicate container id %d", c.ID))
		}
		records[c.ID] = c
		if c.ID > maxContainerID {
			maxContainerID = c.ID
		}
		if createdAt > maxTimestamp {
			maxTimestamp = createdAt
		}
		for _, p := range c.Points {
			if uint64(p.Timestamp) > maxTimestamp {
				maxTimestamp = uint64(p.Timestamp)
			}
		}
	}

	var gotEnd [4]byte
	if _, err := io.ReadFull(br, gotEnd[:]); err != nil {
		return nil, hat.NewIoError(err)
	}
	if gotEnd != endMarker {
		return nil, hat.NewCorrupt("missing end marker")
	}

	if err := validateStructure(records); err != nil {
		return nil, err
	}
	stampPointAncestry(records)
	for _, c := range records {
		tree.Put(c)
	}

	tree.ActiveSessionID = activeSessionID
	tree.ActiveDocumentID = activeDocumentID
	tree.SetNextPointID(nextPointID)
	tree.SetNextContainerID(maxContainerID + 1)
	tree.SetClock(maxTimestamp)

	return tree, nil
}

// readContainer decodes one container record and returns its raw
// created_at alongside it (the Container field is the same value, this
// just spares the call site a conversion back from int64).
func readContainer(r io.Reader, dim int) (*container.Container, uint64, error) {
	id, err := readU64(r)
	if err != nil {
		return nil, 0, err
	}
	levelByte, err := readU8(r)
	if err != nil {
		return nil, 0, err
	}
	level, err := fromLevelTag(levelByte)
	if err != nil {
		return nil, 0, err
	}
	parentID, err := readU64(r)
	if err != nil {
		return nil, 0, err
	}
	count, err := readU64(r)
	if err != nil {
		return nil, 0, err
	}
	createdAt, err := readU64(r)
	if err != nil {
		return nil, 0, err
	}
	centroid, err := readVector(r, dim)
	if err != nil {
		return nil, 0, err
	}
	childCount, err := readU32(r)
	if err != nil {
		return nil, 0, err
	}
	children := make([]uint64, 0, childCount)
	for i := uint32(0); i < childCount; i++ {
		childID, err := readU64(r)
		if err != nil {
			return nil, 0, err
		}
		children = append(children, childID)
	}
	pointCount, err := readU32(r)
	if err != nil {
		return nil, 0, err
	}
	var points []container.Point
	if pointCount > 0 {
		points = make([]container.Point, 0, pointCount)
		for i := uint32(0); i < pointCount; i++ {
			pointID, err := readU64(r)
			if err != nil {
				return nil, 0, err
			}
			vec, err := readVector(r, dim)
			if err != nil {
				return nil, 0, err
			}
			// SessionID/DocumentID are this chunk's ancestry, not parentID/id
			// themselves — stampPointAncestry fills them in once every
			// record is loaded and a chunk's document and that document's
			// session are both resolvable.
			points = append(points, container.Point{
				ID: pointID, Vector: vec, Timestamp: int64(createdAt),
			})
		}
	}

	c := &container.Container{
		ID: id, Level: level, ParentID: parentID, Count: count,
		CreatedAt: int64(createdAt), Centroid: centroid,
		Children: children, Points: points,
	}
	return c, createdAt, nil
}

func readVector(r io.Reader, dim int) ([]float32, error) {
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		var x float32
		if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
			return nil, hat.NewIoError(err)
		}
		v[i] = x
	}
	return v, nil
}

func readU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, hat.NewIoError(err)
	}
	return buf[0], nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, hat.NewIoError(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, hat.NewIoError(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func fromMetricTag(tag uint8) (hat.Metric, error) {
	switch tag {
	case 0:
		return hat.Cosine, nil
	case 1:
		return hat.Dot, nil
	default:
		return 0, hat.NewCorrupt(fmt.Sprintf("unknown metric tag %d", tag))
	}
}

func fromLevelTag(tag uint8) (hat.Level, error) {
	switch tag {
	case 0:
		return hat.GlobalLevel, nil
	case 1:
		return hat.SessionLevel, nil
	case 2:
		return hat.DocumentLevel, nil
	case 3:
		return hat.ChunkLevel, nil
	default:
		return 0, hat.NewCorrupt(fmt.Sprintf("unknown level tag %d", tag))
	}
}

// stampPointAncestry fills in each loaded point's SessionID/DocumentID
// from its chunk's actual ancestry (chunk.ParentID is the document id;
// that document's own ParentID is the session id), now that every record
// is present in the map and validateStructure has confirmed there are no
// dangling parents or cycles to chase. The consolidation engine's Full
// phase groups points by these two fields, so a wrong value here would
// silently misgroup the rebuild.
func stampPointAncestry(records map[uint64]*container.Container) {
	for _, c := range records {
		if c.Level != hat.ChunkLevel || len(c.Points) == 0 {
			continue
		}
		documentID := c.ParentID
		sessionID := records[documentID].ParentID
		for i := range c.Points {
			c.Points[i].DocumentID = documentID
			c.Points[i].SessionID = sessionID
		}
	}
}

// validateStructure rejects orphan parents, cycles, and containers at the
// wrong depth from Global — the load-time analogue of the invariants that
// would otherwise panic during live operation.
func validateStructure(records map[uint64]*container.Container) error {
	global, ok := records[hat.GlobalID]
	if !ok || global.Level != hat.GlobalLevel {
		return hat.NewCorrupt("missing global container")
	}

	visiting := map[uint64]bool{hat.GlobalID: true}
	reached := map[uint64]bool{hat.GlobalID: true}

	var walk func(id uint64, depth int) error
	walk = func(id uint64, depth int) error {
		c, ok := records[id]
		if !ok {
			return hat.NewCorrupt(fmt.Sprintf("dangling child reference %d", id))
		}
		if int(c.Level) != depth {
			return hat.NewCorrupt(fmt.Sprintf("container %d at wrong depth", id))
		}
		for _, childID := range c.Children {
			if visiting[childID] {
				return hat.NewCorrupt(fmt.Sprintf("cycle at container %d", childID))
			}
			visiting[childID] = true
			reached[childID] = true
			if err := walk(childID, depth+1); err != nil {
				return err
			}
			delete(visiting, childID)
		}
		return nil
	}
	if err := walk(hat.GlobalID, int(hat.GlobalLevel)); err != nil {
		return err
	}
	if len(reached) != len(records) {
		return hat.NewCorrupt("orphan container not reachable from global")
	}
	return nil
}
