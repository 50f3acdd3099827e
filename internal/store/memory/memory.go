// Package memory provides an in-process AccountStore for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"

	"wordledger/internal/store/state"
)

type persister struct {
	d *state.Data
}

func (p *persister) Load(ctx context.Context) (*state.Data, error) {
	return p.d.Clone(), nil
}

func (p *persister) Save(ctx context.Context, d *state.Data) error {
	p.d = d.Clone()
	return nil
}

func (p *persister) Close() error { return nil }

// New returns an empty in-memory store.
func New() *state.Store {
	return state.New(&persister{d: state.NewData()})
}
