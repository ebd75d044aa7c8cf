package audio

import (
	"context"
	"os/exec"
	"testing"
)

func TestNewCommandPlayer(t *testing.T) {
	p, err := NewCommandPlayer("ffplay -nodisp -autoexit")
	if err != nil {
		t.Fatalf("NewCommandPlayer() error = %v", err)
	}
	if p.Name != "ffplay" || len(p.Args) != 2 || p.Args[1] != "-autoexit" {
		t.Errorf("player = %+v", p)
	}
	if _, err := NewCommandPlayer("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestCommandPlayerRunsToCompletion(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	p := &CommandPlayer{Name: "true"}
	if err := p.Play(context.Background(), "/tmp/test.wav"); err != nil {
		t.Errorf("Play() error = %v", err)
	}
	if _, err := exec.LookPath("false"); err == nil {
		if err := (&CommandPlayer{Name: "false"}).Play(context.Background(), "x.wav"); err == nil {
			t.Error("expected error from failing player")
		}
	}
}
