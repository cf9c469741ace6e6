// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui is the interactive catalog browser: navigate the catalog
// tree, mark images, pick a destination and watch the transfers live.
// It is a bubbletea program; the transfer engine pushes its progress
// events into the update loop, so the UI only wakes on keys, engine
// events and a slow tick while transfers run.
package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pljakobs/distroget/pkg/catalog"
	"github.com/pljakobs/distroget/pkg/distroget"
)

// Options configures a browser session.
type Options struct {
	// Catalog is the parsed image catalog to browse.
	Catalog *catalog.Catalog

	// Settings configure the transfer engine started when the user
	// picks a destination.
	Settings distroget.Settings

	// InitialDest pre-fills the destination prompt.
	InitialDest string

	// History feeds the destination prompt's suggestions, most recent
	// first.
	History []string

	// OnDestination is called once a destination is accepted and the
	// engine is running, so the caller can persist it. May be nil.
	OnDestination func(dir string)
}

// Run opens the browser and blocks until the user quits or ctx is
// cancelled. Transfers still running on quit are stopped with a short
// grace period.
func Run(ctx context.Context, opts Options) error {
	feed := &engineFeed{}
	p := tea.NewProgram(newModel(ctx, opts, feed), tea.WithAltScreen(), tea.WithContext(ctx))
	feed.attach(p.Send)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if m, ok := final.(model); ok {
		return m.err
	}
	return nil
}

// engineFeed bridges engine progress callbacks into the program. The
// engine starts after the program, so the send hook is attached late;
// events arriving before that are dropped, which only loses a redraw.
type engineFeed struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (f *engineFeed) attach(send func(tea.Msg)) {
	f.mu.Lock()
	f.send = send
	f.mu.Unlock()
}

func (f *engineFeed) emit(ev distroget.ProgressEvent) {
	f.mu.Lock()
	send := f.send
	f.mu.Unlock()
	if send != nil {
		send(engineEventMsg{ev})
	}
}
