// Package audio plays downloaded speech through an external player process.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Player plays an audio file and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, path string) error
}

// CommandPlayer runs a player command line with the file appended, e.g.
// "paplay" or "ffplay -nodisp -autoexit -loglevel quiet".
type CommandPlayer struct {
	Name string
	Args []string
}

// NewCommandPlayer splits a command line into a CommandPlayer.
func NewCommandPlayer(cmdline string) (*CommandPlayer, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("audio: empty player command")
	}
	return &CommandPlayer{Name: fields[0], Args: fields[1:]}, nil
}

// Play blocks until the player exits.
func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.Args...), path)
	cmd := exec.CommandContext(ctx, p.Name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			slog.Debug("audio player output", slog.String("player", p.Name), slog.String("output", string(out)))
		}
		return fmt.Errorf("audio: %s %s: %w", p.Name, path, err)
	}
	return nil
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(ctx context.Context, path string) error

// Play calls f.
func (f PlayerFunc) Play(ctx context.Context, path string) error { return f(ctx, path) }
