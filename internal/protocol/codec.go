package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a Message into its canonical JSON wire text.
//
// Every operation variant encodes. A shape that cannot be serialized (for
// example one holding NaN coordinates) is sent as an "unknown" shape rather
// than failing the whole message. The only error left is a non-finite pan
// offset.
func Encode(msg Message) (string, error) {
	env := envelope{
		DraftID:   msg.Identity.DraftID,
		DraftName: msg.Identity.DraftName,
	}

	op := msg.Op
	if op == nil {
		op = Noop{}
	}
	env.RequestType = op.RequestType()

	switch v := op.(type) {
	case Init:
		env.Content = shapesContent(v.Shapes)
	case Add:
		env.Content = shapesContent(v.Shapes)
	case Update:
		env.Content = shapesContent(v.Shapes)
	case Delete:
		if len(v.IDs) > 0 {
			c := &wireContent{Shapes: make([]wireShape, len(v.IDs))}
			for i, id := range v.IDs {
				c.Shapes[i] = wireShape{ShapeID: wireID(FormatID(id))}
			}
			env.Content = c
		}
	case Finalize:
		env.Content = &wireContent{Shapes: []wireShape{{ShapeID: wireID(FormatID(v.ID))}}}
	case Pan:
		offset := v.Offset
		env.Content = &wireContent{Offset: &offset}
	case Connect, Noop:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("protocol: encode %s: %w", env.RequestType, err)
	}
	return string(data), nil
}

// shapesContent returns nil for an empty list so the content key is omitted.
func shapesContent(shapes []Shape) *wireContent {
	if len(shapes) == 0 {
		return nil
	}
	c := &wireContent{Shapes: make([]wireShape, len(shapes))}
	for i, s := range shapes {
		c.Shapes[i] = encodeShape(s)
	}
	return c
}

// encodeShape never fails: anything it cannot marshal degrades to an
// unknown shape that keeps the id.
func encodeShape(s Shape) wireShape {
	if s == nil {
		s = Unknown{}
	}
	ws := wireShape{ShapeID: wireID(FormatID(s.ShapeID())), Type: string(s.Kind())}

	var body any = s
	if u, ok := s.(Unknown); ok {
		fields := make(map[string]any, len(u.Fields)+1)
		for k, v := range u.Fields {
			fields[k] = v
		}
		if u.Type != "" {
			fields["originalType"] = u.Type
		}
		body = fields
	}

	data, err := json.Marshal(body)
	if err != nil {
		ws.Type = string(KindUnknown)
		data = []byte("{}")
	}
	ws.Content = data
	return ws
}

// Decode parses wire text into a Message. It accepts the canonical
// requestType envelope, the legacy op envelope, and a bare top-level shapes
// list (treated as an add). Heartbeat frames return ErrHeartbeat; every
// other failure is a *DecodeError.
//
// Shapes of an unrecognized type, or whose content does not fit their type,
// are dropped individually; the rest of the batch still decodes.
func Decode(text string) (Message, error) {
	var in inbound
	if err := json.Unmarshal([]byte(text), &in); err != nil {
		return Message{}, &DecodeError{Reason: "malformed message", Err: err}
	}
	if in.MsgType != "" {
		return Message{}, ErrHeartbeat
	}

	msg := Message{Identity: Identity{DraftID: in.DraftID, DraftName: in.DraftName}}

	var err error
	switch {
	case in.RequestType != nil:
		msg.Op, err = decodeCanonical(*in.RequestType, in.Content)
	case in.Op != "":
		msg.Op, err = decodeLegacy(&in)
	case in.Shapes != nil:
		msg.Op = Add{Shapes: decodeLegacyShapes(in.Shapes)}
	default:
		err = &DecodeError{Reason: "message has neither requestType nor op"}
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func decodeCanonical(rt RequestType, content *wireContent) (Operation, error) {
	if content == nil {
		content = &wireContent{}
	}

	switch rt {
	case RequestInit:
		return Init{Shapes: decodeWireShapes(content.Shapes)}, nil
	case RequestConnect:
		return Connect{}, nil
	case RequestAdd:
		return Add{Shapes: decodeWireShapes(content.Shapes)}, nil
	case RequestUpdate:
		return Update{Shapes: decodeWireShapes(content.Shapes)}, nil
	case RequestRemove:
		var ids []int64
		for _, ws := range content.Shapes {
			if ws.ShapeID != "" {
				ids = append(ids, ParseID(string(ws.ShapeID)))
			}
		}
		return Delete{IDs: ids}, nil
	case RequestNoop:
		return Noop{}, nil
	case RequestFinalize:
		for _, ws := range content.Shapes {
			if ws.ShapeID != "" {
				return Finalize{ID: ParseID(string(ws.ShapeID))}, nil
			}
		}
		return nil, &DecodeError{Reason: "finalize without shape id"}
	case RequestPan:
		if content.Offset == nil {
			return nil, &DecodeError{Reason: "pan without offset"}
		}
		return Pan{Offset: *content.Offset}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown request type %d", int(rt))}
	}
}

func decodeWireShapes(list []wireShape) []Shape {
	var shapes []Shape
	for _, ws := range list {
		if s, ok := decodeShape(ws.Type, ParseID(string(ws.ShapeID)), ws.Content); ok {
			shapes = append(shapes, s)
		}
	}
	return shapes
}

// decodeShape returns false for kinds this client does not draw and for
// content that does not match the kind's fields.
func decodeShape(kind string, id int64, raw json.RawMessage) (Shape, bool) {
	switch Kind(kind) {
	case KindRectangle:
		var v Rectangle
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindCircle:
		var v Circle
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindLine:
		var v Line
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindArrow:
		var v Arrow
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindDiamond:
		var v Diamond
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindFreestyle:
		var v Freestyle
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindText:
		var v Text
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	case KindImage:
		var v Image
		if !unmarshalContent(raw, &v) {
			return nil, false
		}
		v.ID = id
		return v, true
	default:
		return nil, false
	}
}

// unmarshalContent treats absent content as an all-zero shape.
func unmarshalContent(raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}
