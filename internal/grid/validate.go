package grid

import (
	"sort"

	"github.com/rotisserie/eris"
)

// MaxSelection is the largest number of tiles a selection may contain.
const MaxSelection = 16

var (
	ErrTileCount    = eris.New("must select 1-16 tiles")
	ErrUnparseable  = eris.New("could not parse tile positions")
	ErrNotRectangle = eris.New("tiles must be adjacent and form a rectangle")
	ErrMissingTile  = eris.New("missing tile in rectangle")
)

// Layout is the row/column span of a validated selection.
type Layout struct {
	MinRow int `json:"minRow"`
	MaxRow int `json:"maxRow"`
	MinCol int `json:"minCol"`
	MaxCol int `json:"maxCol"`
	Rows   int `json:"rows"`
	Cols   int `json:"cols"`
}

// Cells returns the number of cells the layout spans.
func (l Layout) Cells() int {
	return l.Rows * l.Cols
}

// Contains reports whether pos lies inside the layout.
func (l Layout) Contains(pos Position) bool {
	return pos.Row >= l.MinRow && pos.Row <= l.MaxRow && pos.Col >= l.MinCol && pos.Col <= l.MaxCol
}

// Validate checks that ids form a complete, gap-free rectangle of 1 to
// MaxSelection tiles and returns its layout.
//
// A single tile is always valid; its layout is 1x1 at the tile's position
// when the name carries one.
func Validate(ids []string, idx *Index) (Layout, error) {
	if len(ids) == 0 || len(ids) > MaxSelection {
		return Layout{}, ErrTileCount
	}

	if len(ids) == 1 {
		pos, _ := idx.Position(ids[0])
		return Layout{
			MinRow: pos.Row, MaxRow: pos.Row,
			MinCol: pos.Col, MaxCol: pos.Col,
			Rows: 1, Cols: 1,
		}, nil
	}

	present := make(map[Position]struct{}, len(ids))
	var l Layout
	for i, id := range ids {
		pos, ok := idx.Position(id)
		if !ok {
			return Layout{}, eris.Wrapf(ErrUnparseable, "tile %s", id)
		}
		present[pos] = struct{}{}
		if i == 0 {
			l = Layout{MinRow: pos.Row, MaxRow: pos.Row, MinCol: pos.Col, MaxCol: pos.Col}
			continue
		}
		l.MinRow = min(l.MinRow, pos.Row)
		l.MaxRow = max(l.MaxRow, pos.Row)
		l.MinCol = min(l.MinCol, pos.Col)
		l.MaxCol = max(l.MaxCol, pos.Col)
	}
	// Spans are compared before adding one so huge row or column numbers
	// cannot overflow the cell count.
	if l.MaxRow-l.MinRow >= len(ids) || l.MaxCol-l.MinCol >= len(ids) {
		return Layout{}, ErrNotRectangle
	}
	l.Rows = l.MaxRow - l.MinRow + 1
	l.Cols = l.MaxCol - l.MinCol + 1

	if l.Cells() != len(ids) {
		return Layout{}, ErrNotRectangle
	}

	for row := l.MinRow; row <= l.MaxRow; row++ {
		for col := l.MinCol; col <= l.MaxCol; col++ {
			pos := Position{Row: row, Col: col}
			if _, ok := present[pos]; !ok {
				return Layout{}, eris.Wrapf(ErrMissingTile, "cell %s", pos)
			}
		}
	}

	return l, nil
}

// Expand returns the tiles covering the rectangle spanned by start and end,
// inclusive, in row-major order. Cells with no tile in the index are skipped,
// so the result may still fail Validate.
//
// When either end has no grid position only start is returned.
func Expand(startID, endID string, idx *Index) []string {
	if !idx.Has(startID) {
		return nil
	}
	a, okA := idx.Position(startID)
	b, okB := idx.Position(endID)
	if !okA || !okB {
		return []string{startID}
	}

	minRow, maxRow := min(a.Row, b.Row), max(a.Row, b.Row)
	minCol, maxCol := min(a.Col, b.Col), max(a.Col, b.Col)

	// Walk the occupied cells rather than the rectangle, which may span
	// arbitrarily large row and column numbers.
	var cells []Position
	for pos := range idx.cells {
		if pos.Row >= minRow && pos.Row <= maxRow && pos.Col >= minCol && pos.Col <= maxCol {
			cells = append(cells, pos)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})

	out := make([]string, 0, len(cells))
	for _, pos := range cells {
		out = append(out, idx.cells[pos])
	}
	return out
}
