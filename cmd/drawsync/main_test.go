package main

import "testing"

func TestNormalizeWSURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "draw.example.com", want: "wss://draw.example.com/ws"},
		{in: "ws://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "  wss://h/ws  ", want: "wss://h/ws"},
		{in: "https://h/sync", want: "wss://h/sync"},
		{in: "http://h:1/", want: "ws://h:1/ws"},
		{in: "ftp://h", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeWSURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("normalizeWSURL(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeWSURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("normalizeWSURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
