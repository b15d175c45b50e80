// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package progressbar is the module's concrete pkg/zsync.ProgressCollaborator:
// a terminal progress bar rendered with github.com/cheggaaa/pb/v3, silenced
// automatically when stdout is not a TTY (checked with golang.org/x/term),
// in which case it falls back to structured log/slog lines. This replaces
// the hand-rolled ANSI table renderer the original CLI used with the
// ecosystem library the rest of the retrieval pack reaches for.
package progressbar

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// percentScale is the bar's internal unit: percent * percentScale gives an
// integer "current" value pb.ProgressBar can animate smoothly.
const percentScale = 10000

// Collaborator is a pkg/zsync.ProgressCollaborator backed by one pb.ProgressBar
// per in-flight handle.
type Collaborator struct {
	logger *slog.Logger
	tty    bool

	mu   sync.Mutex
	bars map[*handle]*pb.ProgressBar
}

var _ zsync.ProgressCollaborator = (*Collaborator)(nil)

type handle struct {
	url string
}

// New builds a Collaborator. Logger defaults to slog.Default() when nil.
func New(logger *slog.Logger) *Collaborator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collaborator{
		logger: logger,
		tty:    term.IsTerminal(int(os.Stdout.Fd())),
		bars:   make(map[*handle]*pb.ProgressBar),
	}
}

func (c *Collaborator) Start(url string) zsync.ProgressHandle {
	h := &handle{url: url}
	if !c.tty {
		c.logger.Info("fetching", "url", url)
		return h
	}

	bar := pb.New64(percentScale)
	bar.SetTemplateString(fmt.Sprintf(
		`{{ "%s:" }} {{ bar . }} {{percent . }} {{speed . "%%s/s"}} {{etime .}}`,
		shortURL(url, c.barWidth()),
	))
	bar.Start()

	c.mu.Lock()
	c.bars[h] = bar
	c.mu.Unlock()
	return h
}

func (c *Collaborator) Update(h zsync.ProgressHandle, percent float64, bytesDown int64) {
	hh, ok := h.(*handle)
	if !ok || !c.tty {
		return
	}
	c.mu.Lock()
	bar := c.bars[hh]
	c.mu.Unlock()
	if bar == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	bar.SetCurrent(int64(percent * percentScale))
}

func (c *Collaborator) Finish(h zsync.ProgressHandle, outcome zsync.ProgressOutcome) {
	hh, ok := h.(*handle)
	if !ok {
		return
	}
	if !c.tty {
		switch outcome {
		case zsync.ProgressComplete:
			c.logger.Info("fetch complete", "url", hh.url)
		case zsync.ProgressPartial:
			c.logger.Info("fetch ended early", "url", hh.url)
		case zsync.ProgressError:
			c.logger.Warn("fetch failed", "url", hh.url)
		}
		return
	}

	c.mu.Lock()
	bar := c.bars[hh]
	delete(c.bars, hh)
	c.mu.Unlock()
	if bar == nil {
		return
	}
	if outcome == zsync.ProgressComplete {
		bar.SetCurrent(percentScale)
	}
	bar.Finish()
}

// barWidth returns a usable label width for the current terminal, falling
// back to a sane default when the size can't be determined (piped output,
// non-standard fd).
func (c *Collaborator) barWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 40
	}
	label := w / 3
	if label < 12 {
		label = 12
	}
	if label > 60 {
		label = 60
	}
	return label
}

// shortURL ellipsizes the middle of a long URL so the bar's label line
// doesn't push the bar itself off screen.
func shortURL(url string, width int) string {
	if width <= 3 || utf8.RuneCountInString(url) <= width {
		return url
	}
	runes := []rune(url)
	half := (width - 3) / 2
	if half <= 0 || 2*half+3 > len(runes) {
		return string(runes[:width])
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}
