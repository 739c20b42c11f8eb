package protocol

import (
	"encoding/json"
	"fmt"
)

// Legacy envelope ops, decode-only. Older peers send
//
//	{"op":"add","shape":{"type":"circle","data":{"id":"5","x":1,"y":2,"radius":3}}}
//
// with the id inside data instead of a shapeId next to it.
const (
	legacyOpAdd    = "add"
	legacyOpUpdate = "update"
	legacyOpInit   = "init"
)

func decodeLegacy(in *inbound) (Operation, error) {
	var list []legacyShape

	switch in.Op {
	case legacyOpAdd:
		list = appendLegacy(list, in.Shape, in.Shapes)
		return Add{Shapes: decodeLegacyShapes(list)}, nil
	case legacyOpUpdate:
		if in.Patch != nil {
			list = append(list, *in.Patch)
		}
		list = appendLegacy(list, in.Shape, in.Shapes)
		return Update{Shapes: decodeLegacyShapes(list)}, nil
	case legacyOpInit:
		list = appendLegacy(list, in.Shape, in.Shapes)
		return Init{Shapes: decodeLegacyShapes(list)}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown legacy op %q", in.Op)}
	}
}

func appendLegacy(list []legacyShape, one *legacyShape, many []legacyShape) []legacyShape {
	if one != nil {
		list = append(list, *one)
	}
	return append(list, many...)
}

func decodeLegacyShapes(list []legacyShape) []Shape {
	var shapes []Shape
	for _, ls := range list {
		body := ls.Data
		if len(body) == 0 {
			body = ls.Content
		}

		id := ls.ShapeID
		if id == "" {
			id = legacyDataID(body)
		}

		if s, ok := decodeShape(ls.Type, ParseID(string(id)), body); ok {
			shapes = append(shapes, s)
		}
	}
	return shapes
}

// legacyDataID pulls the "id" field out of a legacy data object.
func legacyDataID(body json.RawMessage) wireID {
	if len(body) == 0 {
		return ""
	}
	var probe struct {
		ID wireID `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.ID
}
