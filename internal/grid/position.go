// Package grid resolves tiles to row/column cells and checks that multi-tile
// selections form complete rectangles.
package grid

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var positionPattern = regexp.MustCompile(`\(R(\d+)C(\d+)\)`)

// Position is a tile's cell in the overall grid. Row grows northward.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("R%dC%d", p.Row, p.Col)
}

// ParsePosition extracts the "(R<row>C<col>)" marker from a tile name.
func ParsePosition(name string) (Position, bool) {
	m := positionPattern.FindStringSubmatch(name)
	if m == nil {
		return Position{}, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return Position{}, false
	}
	col, err := strconv.Atoi(m[2])
	if err != nil {
		return Position{}, false
	}
	return Position{Row: row, Col: col}, true
}

// Entry is the minimum a catalog must provide to build an Index.
type Entry struct {
	ID   string
	Name string
}

// Index maps tile IDs to grid cells and back.
type Index struct {
	names     map[string]string
	positions map[string]Position
	cells     map[Position]string

	// Duplicates lists IDs whose position was already claimed by another tile.
	Duplicates []string
}

// NewIndex builds an index. When two tiles claim the same cell, the
// lexicographically smaller ID wins and the other is recorded in Duplicates.
func NewIndex(entries []Entry) *Index {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := &Index{
		names:     make(map[string]string, len(sorted)),
		positions: make(map[string]Position, len(sorted)),
		cells:     make(map[Position]string, len(sorted)),
	}
	for _, e := range sorted {
		idx.names[e.ID] = e.Name
		pos, ok := ParsePosition(e.Name)
		if !ok {
			continue
		}
		idx.positions[e.ID] = pos
		if _, taken := idx.cells[pos]; taken {
			idx.Duplicates = append(idx.Duplicates, e.ID)
			continue
		}
		idx.cells[pos] = e.ID
	}
	return idx
}

// Has reports whether id is a known tile.
func (idx *Index) Has(id string) bool {
	_, ok := idx.names[id]
	return ok
}

// Name returns the display name of a tile.
func (idx *Index) Name(id string) (string, bool) {
	name, ok := idx.names[id]
	return name, ok
}

// Position returns the parsed cell of a tile. ok is false for unknown tiles
// and for tiles whose name carries no marker.
func (idx *Index) Position(id string) (Position, bool) {
	pos, ok := idx.positions[id]
	return pos, ok
}

// At returns the tile occupying a cell.
func (idx *Index) At(pos Position) (string, bool) {
	id, ok := idx.cells[pos]
	return id, ok
}

// Len returns the number of tiles in the index.
func (idx *Index) Len() int {
	return len(idx.names)
}
