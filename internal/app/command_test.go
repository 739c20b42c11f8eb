package app_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/1ureka/drawsync/internal/app"
	"github.com/1ureka/drawsync/internal/protocol"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want app.Command
	}{
		{"", app.Command{}},
		{"   ", app.Command{}},
		{"rect 1 2 3 4", app.Command{Verb: app.VerbAdd, Shape: protocol.Rectangle{X: 1, Y: 2, Width: 3, Height: 4}}},
		{"circle 0 0 2.5", app.Command{Verb: app.VerbAdd, Shape: protocol.Circle{Radius: 2.5}}},
		{"line 0 0 1 1", app.Command{Verb: app.VerbAdd, Shape: protocol.Line{X2: 1, Y2: 1}}},
		{"arrow 1 1 0 0", app.Command{Verb: app.VerbAdd, Shape: protocol.Arrow{X1: 1, Y1: 1}}},
		{"diamond 5 5 2 2", app.Command{Verb: app.VerbAdd, Shape: protocol.Diamond{X: 5, Y: 5, Width: 2, Height: 2}}},
		{"text 1 2 hello  world", app.Command{Verb: app.VerbAdd, Shape: protocol.Text{X: 1, Y: 2, Text: "hello world"}}},
		{"image 0 0 10 10 http://x/y.png", app.Command{Verb: app.VerbAdd, Shape: protocol.Image{Width: 10, Height: 10, Src: "http://x/y.png"}}},
		{"free 0 0 1 1 2 0", app.Command{Verb: app.VerbAdd, Shape: protocol.Freestyle{Points: []protocol.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}}}},
		{"move 7 -1 2", app.Command{Verb: app.VerbMove, IDs: []int64{7}, Offset: protocol.Point{X: -1, Y: 2}}},
		{"del 1 2 3", app.Command{Verb: app.VerbDelete, IDs: []int64{1, 2, 3}}},
		{"pan 10 20", app.Command{Verb: app.VerbPan, Offset: protocol.Point{X: 10, Y: 20}}},
		{"final 4", app.Command{Verb: app.VerbFinal, IDs: []int64{4}}},
		{"draft abc My Draft", app.Command{Verb: app.VerbDraft, Draft: protocol.Identity{DraftID: "abc", DraftName: "My Draft"}}},
		{"draft abc", app.Command{Verb: app.VerbDraft, Draft: protocol.Identity{DraftID: "abc"}}},
		{"LIST", app.Command{Verb: app.VerbList}},
		{"status", app.Command{Verb: app.VerbStatus}},
		{"help", app.Command{Verb: app.VerbHelp}},
		{"exit", app.Command{Verb: app.VerbQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := app.ParseCommand(tt.line)
			if err != nil {
				t.Fatalf("ParseCommand: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"rect 1 2 3",
		"circle a b c",
		"text 1 2",
		"image 0 0 1 1",
		"free 0 0",
		"free 0 0 1",
		"move 1 2",
		"move x 1 1",
		"del",
		"del 1 two",
		"final",
		"draft",
		"pan 1",
		"bogus",
	} {
		t.Run(line, func(t *testing.T) {
			if _, err := app.ParseCommand(line); !errors.Is(err, app.ErrUsage) {
				t.Errorf("ParseCommand(%q) = %v, want ErrUsage", line, err)
			}
		})
	}
}
