package protocol

// Kind names a shape variant on the wire.
type Kind string

// Shape kinds understood by the codec.
const (
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindLine      Kind = "line"
	KindArrow     Kind = "arrow"
	KindDiamond   Kind = "diamond"
	KindFreestyle Kind = "freestyle"
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindUnknown   Kind = "unknown" // encode-only; never accepted on decode
)

// Shape is a closed sum type over the drawable shape kinds. Each variant
// carries only the fields needed to reconstruct it, plus the stable id
// assigned by the shape's owner at creation time.
type Shape interface {
	ShapeID() int64
	Kind() Kind
	isShape()
}

// Point is a 2D coordinate, also used as a pan offset.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rectangle struct {
	ID     int64   `json:"-"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Circle struct {
	ID     int64   `json:"-"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

type Line struct {
	ID int64   `json:"-"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Arrow has the same geometry as Line; only the rendering differs.
type Arrow struct {
	ID int64   `json:"-"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Diamond struct {
	ID     int64   `json:"-"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Freestyle is a pencil stroke; Points are kept in drawing order.
type Freestyle struct {
	ID     int64   `json:"-"`
	Points []Point `json:"points"`
}

type Text struct {
	ID       int64   `json:"-"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize,omitempty"`
}

type Image struct {
	ID     int64   `json:"-"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Src    string  `json:"src"`
}

// Unknown stands in for a shape kind this client cannot represent. It is
// encoded as type "unknown" so that one odd shape never blocks a batch.
type Unknown struct {
	ID     int64
	Type   string
	Fields map[string]any
}

func (s Rectangle) ShapeID() int64 { return s.ID }
func (s Circle) ShapeID() int64    { return s.ID }
func (s Line) ShapeID() int64      { return s.ID }
func (s Arrow) ShapeID() int64     { return s.ID }
func (s Diamond) ShapeID() int64   { return s.ID }
func (s Freestyle) ShapeID() int64 { return s.ID }
func (s Text) ShapeID() int64      { return s.ID }
func (s Image) ShapeID() int64     { return s.ID }
func (s Unknown) ShapeID() int64   { return s.ID }

func (Rectangle) Kind() Kind { return KindRectangle }
func (Circle) Kind() Kind    { return KindCircle }
func (Line) Kind() Kind      { return KindLine }
func (Arrow) Kind() Kind     { return KindArrow }
func (Diamond) Kind() Kind   { return KindDiamond }
func (Freestyle) Kind() Kind { return KindFreestyle }
func (Text) Kind() Kind      { return KindText }
func (Image) Kind() Kind     { return KindImage }
func (Unknown) Kind() Kind   { return KindUnknown }

func (Rectangle) isShape() {}
func (Circle) isShape()    {}
func (Line) isShape()      {}
func (Arrow) isShape()     {}
func (Diamond) isShape()   {}
func (Freestyle) isShape() {}
func (Text) isShape()      {}
func (Image) isShape()     {}
func (Unknown) isShape()   {}

// WithID returns a copy of s re-keyed to id.
func WithID(s Shape, id int64) Shape {
	switch v := s.(type) {
	case Rectangle:
		v.ID = id
		return v
	case Circle:
		v.ID = id
		return v
	case Line:
		v.ID = id
		return v
	case Arrow:
		v.ID = id
		return v
	case Diamond:
		v.ID = id
		return v
	case Freestyle:
		v.ID = id
		return v
	case Text:
		v.ID = id
		return v
	case Image:
		v.ID = id
		return v
	case Unknown:
		v.ID = id
		return v
	default:
		return Unknown{ID: id}
	}
}

// Translate returns a copy of s moved by (dx, dy).
func Translate(s Shape, dx, dy float64) Shape {
	switch v := s.(type) {
	case Rectangle:
		v.X, v.Y = v.X+dx, v.Y+dy
		return v
	case Circle:
		v.X, v.Y = v.X+dx, v.Y+dy
		return v
	case Line:
		v.X1, v.Y1, v.X2, v.Y2 = v.X1+dx, v.Y1+dy, v.X2+dx, v.Y2+dy
		return v
	case Arrow:
		v.X1, v.Y1, v.X2, v.Y2 = v.X1+dx, v.Y1+dy, v.X2+dx, v.Y2+dy
		return v
	case Diamond:
		v.X, v.Y = v.X+dx, v.Y+dy
		return v
	case Freestyle:
		pts := make([]Point, len(v.Points))
		for i, p := range v.Points {
			pts[i] = Point{X: p.X + dx, Y: p.Y + dy}
		}
		v.Points = pts
		return v
	case Text:
		v.X, v.Y = v.X+dx, v.Y+dy
		return v
	case Image:
		v.X, v.Y = v.X+dx, v.Y+dy
		return v
	default:
		return s
	}
}
