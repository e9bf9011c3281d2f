package effects

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

type Player interface {
	Play(ctx context.Context) error
}

// CommandPlayer plays one fixed sound file through a paplay compatible command.
type CommandPlayer struct {
	command string
	file    string
	volume  float64
	stat    func(string) (os.FileInfo, error)
	run     func(ctx context.Context, name string, args ...string) error
}

func NewCommandPlayer(command, file string, volume float64) *CommandPlayer {
	return &CommandPlayer{
		command: command,
		file:    file,
		volume:  volume,
		stat:    os.Stat,
		run:     runCommand,
	}
}

func (p *CommandPlayer) Play(ctx context.Context) error {
	if _, err := p.stat(p.file); err != nil {
		return fmt.Errorf("sound file: %w", err)
	}
	// paplay volume is linear, 65536 being 100%.
	volume := strconv.Itoa(int(p.volume * 65536))
	return p.run(ctx, p.command, "--volume="+volume, p.file)
}
