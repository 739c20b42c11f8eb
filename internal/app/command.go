package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/1ureka/drawsync/internal/protocol"
)

// Verb is the first word of a REPL line.
type Verb string

const (
	VerbNone   Verb = ""
	VerbAdd    Verb = "add" // any shape verb: rect, circle, line, ...
	VerbMove   Verb = "move"
	VerbDelete Verb = "del"
	VerbPan    Verb = "pan"
	VerbFinal  Verb = "final"
	VerbDraft  Verb = "draft"
	VerbList   Verb = "list"
	VerbStatus Verb = "status"
	VerbHelp   Verb = "help"
	VerbQuit   Verb = "quit"
)

// Command is one parsed REPL line.
type Command struct {
	Verb   Verb
	Shape  protocol.Shape    // VerbAdd
	IDs    []int64           // VerbMove, VerbDelete, VerbFinal
	Offset protocol.Point    // VerbMove delta, VerbPan offset
	Draft  protocol.Identity // VerbDraft
}

// Usage lists the REPL commands.
const Usage = `rect X Y W H          add a rectangle
circle X Y R          add a circle
line X1 Y1 X2 Y2      add a line
arrow X1 Y1 X2 Y2     add an arrow
diamond X Y W H       add a diamond
text X Y WORDS...     add a text label
image X Y W H SRC     add an image
free X Y X Y ...      add a freestyle stroke (2+ points)
move ID DX DY         move a shape
del ID...             delete shapes
pan X Y               set the viewport offset
final ID              finalize a shape
draft ID [NAME...]    switch to another draft
list                  print the board
status                print connection status
help                  print this help
quit                  exit`

// ErrUsage is wrapped by every parse error.
var ErrUsage = errors.New("usage")

// ParseCommand parses one REPL line. A blank line yields VerbNone.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "rect", "rectangle":
		n, err := floats(name, args, 4)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Rectangle{X: n[0], Y: n[1], Width: n[2], Height: n[3]}), nil

	case "circle":
		n, err := floats(name, args, 3)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Circle{X: n[0], Y: n[1], Radius: n[2]}), nil

	case "line":
		n, err := floats(name, args, 4)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Line{X1: n[0], Y1: n[1], X2: n[2], Y2: n[3]}), nil

	case "arrow":
		n, err := floats(name, args, 4)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Arrow{X1: n[0], Y1: n[1], X2: n[2], Y2: n[3]}), nil

	case "diamond":
		n, err := floats(name, args, 4)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Diamond{X: n[0], Y: n[1], Width: n[2], Height: n[3]}), nil

	case "text":
		if len(args) < 3 {
			return Command{}, usageErr(name, "X Y WORDS...")
		}
		n, err := floats(name, args[:2], 2)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Text{X: n[0], Y: n[1], Text: strings.Join(args[2:], " ")}), nil

	case "image":
		if len(args) != 5 {
			return Command{}, usageErr(name, "X Y W H SRC")
		}
		n, err := floats(name, args[:4], 4)
		if err != nil {
			return Command{}, err
		}
		return add(protocol.Image{X: n[0], Y: n[1], Width: n[2], Height: n[3], Src: args[4]}), nil

	case "free":
		if len(args) < 4 || len(args)%2 != 0 {
			return Command{}, usageErr(name, "X Y X Y ...")
		}
		n, err := floats(name, args, len(args))
		if err != nil {
			return Command{}, err
		}
		pts := make([]protocol.Point, 0, len(n)/2)
		for i := 0; i < len(n); i += 2 {
			pts = append(pts, protocol.Point{X: n[i], Y: n[i+1]})
		}
		return add(protocol.Freestyle{Points: pts}), nil

	case "move":
		if len(args) != 3 {
			return Command{}, usageErr(name, "ID DX DY")
		}
		ids, err := parseIDs(name, args[:1])
		if err != nil {
			return Command{}, err
		}
		n, err := floats(name, args[1:], 2)
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbMove, IDs: ids, Offset: protocol.Point{X: n[0], Y: n[1]}}, nil

	case "del", "delete":
		if len(args) == 0 {
			return Command{}, usageErr(name, "ID...")
		}
		ids, err := parseIDs(name, args)
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbDelete, IDs: ids}, nil

	case "pan":
		n, err := floats(name, args, 2)
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbPan, Offset: protocol.Point{X: n[0], Y: n[1]}}, nil

	case "final", "finalize":
		if len(args) != 1 {
			return Command{}, usageErr(name, "ID")
		}
		ids, err := parseIDs(name, args)
		if err != nil {
			return Command{}, err
		}
		return Command{Verb: VerbFinal, IDs: ids}, nil

	case "draft":
		if len(args) == 0 {
			return Command{}, usageErr(name, "ID [NAME...]")
		}
		return Command{Verb: VerbDraft, Draft: protocol.Identity{
			DraftID:   args[0],
			DraftName: strings.Join(args[1:], " "),
		}}, nil

	case "list", "ls":
		return Command{Verb: VerbList}, nil
	case "status":
		return Command{Verb: VerbStatus}, nil
	case "help", "?":
		return Command{Verb: VerbHelp}, nil
	case "quit", "exit":
		return Command{Verb: VerbQuit}, nil
	}
	return Command{}, fmt.Errorf("%w: unknown command %q (try help)", ErrUsage, name)
}

func add(s protocol.Shape) Command {
	return Command{Verb: VerbAdd, Shape: s}
}

func usageErr(name, args string) error {
	return fmt.Errorf("%w: %s %s", ErrUsage, name, args)
}

// floats parses exactly want numbers.
func floats(name string, args []string, want int) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: %s takes %d numbers, got %d", ErrUsage, name, want, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a number", ErrUsage, name, a)
		}
		out[i] = v
	}
	return out, nil
}

func parseIDs(name string, args []string) ([]int64, error) {
	out := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a shape id", ErrUsage, name, a)
		}
		out[i] = v
	}
	return out, nil
}
