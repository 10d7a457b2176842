package hnsw

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
)

// persistMagic and persistVersion identify the on-disk format so Load can
// reject foreign or future-versioned files instead of misreading them.
const (
	persistMagic   uint32 = 0x42524e48 // "BRNH"
	persistVersion uint32 = 1
)

// Save writes a bit-stable binary snapshot of the index: the header
// (dimension, config, entry point, max level) followed by every live
// node keyed by its external id, with vectors stored as f32 little-endian
// and neighbor lists recorded by external id rather than internal slot,
// so a reload never depends on this process's slot-allocation history.
func (h *HNSW) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, persistMagic); err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write magic", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, persistVersion); err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write version", err)
	}

	header := []int32{
		int32(h.cfg.Dimension),
		int32(h.cfg.Distance),
		int32(h.cfg.M),
		int32(h.cfg.EfConstruction),
		int32(h.cfg.EfSearch),
		int32(h.cfg.MaxElements),
		int32(h.maxLevel),
	}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write header", err)
		}
	}

	entryPointID := ""
	if h.entryID >= 0 && h.nodes[h.entryID] != nil {
		entryPointID = h.nodes[h.entryID].id
	}
	if err := writeString(bw, entryPointID); err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write entry point", err)
	}

	if err := binary.Write(bw, binary.LittleEndian, int32(h.count)); err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write node count", err)
	}

	for _, nd := range h.nodes {
		if nd == nil {
			continue
		}
		if err := h.writeNode(bw, nd); err != nil {
			return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: write node", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: flush", err)
	}
	return nil
}

// writeNode serializes nd, translating its internal neighbor ids to
// external string ids so the snapshot never depends on this process's
// slot-allocation history.
func (h *HNSW) writeNode(w io.Writer, nd *node) error {
	if err := writeString(w, nd.id); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(nd.level)); err != nil {
		return err
	}
	for _, x := range nd.vector {
		if err := binary.Write(w, binary.LittleEndian, x); err != nil {
			return err
		}
	}
	for lev := 0; lev <= nd.level; lev++ {
		neighbors := nd.friends[lev]
		if err := binary.Write(w, binary.LittleEndian, int32(len(neighbors))); err != nil {
			return err
		}
		for _, fID := range neighbors {
			fn := h.nodes[fID]
			name := ""
			if fn != nil {
				name = fn.id
			}
			if err := writeString(w, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Load reconstructs an index from a snapshot written by Save.
func Load(r io.Reader) (*HNSW, error) {
	br := bufio.NewReader(r)

	var magic, version uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read magic", err)
	}
	if magic != persistMagic {
		return nil, brainyerr.New(brainyerr.InvalidArgument, "hnsw: not a brainy hnsw snapshot")
	}
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read version", err)
	}
	if version != persistVersion {
		return nil, brainyerr.Newf(brainyerr.InvalidArgument, "hnsw: unsupported snapshot version %d", version)
	}

	var header [7]int32
	for i := range header {
		if err := binary.Read(br, binary.LittleEndian, &header[i]); err != nil {
			return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read header", err)
		}
	}

	cfg := Config{
		Dimension:      int(header[0]),
		Distance:       types.DistanceFunction(header[1]),
		M:              int(header[2]),
		EfConstruction: int(header[3]),
		EfSearch:       int(header[4]),
		MaxElements:    int(header[5]),
	}
	maxLevel := int(header[6])

	entryPointID, err := readString(br)
	if err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read entry point", err)
	}

	var nodeCount int32
	if err := binary.Read(br, binary.LittleEndian, &nodeCount); err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read node count", err)
	}

	h, err := New(cfg)
	if err != nil {
		return nil, err
	}
	h.maxLevel = maxLevel

	type rawNode struct {
		id        string
		level     int
		vector    []float32
		neighbors [][]string
	}
	raw := make([]rawNode, 0, nodeCount)

	for i := int32(0); i < nodeCount; i++ {
		id, err := readString(br)
		if err != nil {
			return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read node id", err)
		}
		var level int32
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read node level", err)
		}
		vec := make([]float32, cfg.Dimension)
		for d := 0; d < cfg.Dimension; d++ {
			if err := binary.Read(br, binary.LittleEndian, &vec[d]); err != nil {
				return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read vector component", err)
			}
		}
		neighbors := make([][]string, level+1)
		for lev := 0; lev <= int(level); lev++ {
			var count int32
			if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
				return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read neighbor count", err)
			}
			ids := make([]string, count)
			for j := int32(0); j < count; j++ {
				nid, err := readString(br)
				if err != nil {
					return nil, brainyerr.Wrap(brainyerr.StorageFailure, "hnsw: read neighbor id", err)
				}
				ids[j] = nid
			}
			neighbors[lev] = ids
		}
		raw = append(raw, rawNode{id: id, level: int(level), vector: vec, neighbors: neighbors})
	}

	idToIdx := make(map[string]uint32, len(raw))
	for i, rn := range raw {
		idx := uint32(i)
		h.nodes = append(h.nodes, &node{
			id:      rn.id,
			vector:  rn.vector,
			level:   rn.level,
			friends: make([][]uint32, rn.level+1),
		})
		h.idMap[rn.id] = idx
		idToIdx[rn.id] = idx
	}
	for i, rn := range raw {
		for lev, ids := range rn.neighbors {
			internal := make([]uint32, 0, len(ids))
			for _, nid := range ids {
				if idx, ok := idToIdx[nid]; ok {
					internal = append(internal, idx)
				}
			}
			h.nodes[i].friends[lev] = internal
		}
	}
	h.count = len(raw)

	if entryPointID != "" {
		if idx, ok := idToIdx[entryPointID]; ok {
			h.entryID = int32(idx)
		}
	} else {
		h.entryID = -1
	}

	return h, nil
}
