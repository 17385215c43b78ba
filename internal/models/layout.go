package models

// BBox is a rectangle normalized to [0,1] of the owning page's width and height.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Right returns the x coordinate of the right edge.
func (b BBox) Right() float64 { return b.X + b.W }

// Bottom returns the y coordinate of the bottom edge.
func (b BBox) Bottom() float64 { return b.Y + b.H }

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	x := min(b.X, o.X)
	y := min(b.Y, o.Y)
	return BBox{X: x, Y: y, W: max(b.Right(), o.Right()) - x, H: max(b.Bottom(), o.Bottom()) - y}
}

// Contains reports whether o lies entirely inside b, within eps.
func (b BBox) Contains(o BBox, eps float64) bool {
	return o.X >= b.X-eps && o.Y >= b.Y-eps && o.Right() <= b.Right()+eps && o.Bottom() <= b.Bottom()+eps
}

// Word is a recognized word with its confidence in [0,1].
type Word struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Line is a line of text and the words it was segmented into.
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Words      []Word  `json:"words"`
}

// Block groups lines that belong to one region of the page.
type Block struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"` // text, heading, table, image, list
	BBox  BBox   `json:"bbox"`
	Lines []Line `json:"lines"`
}

// Page is one page of recognized layout. Width and Height carry the page's aspect.
type Page struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Blocks []Block `json:"blocks"`
}
