package evo

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"gasm/internal/model"
)

// State is everything Evolve needs to continue a run. The zero value starts
// a fresh run.
type State struct {
	RunID         string
	Population    []Individual
	History       []model.GenerationEntry
	Generation    int
	Random        []byte
	CNG           model.GeneratorState
	RNG           model.GeneratorState
	DatasetDigest uint64
	ScoringDigest uint64
}

// Clone deep-copies the population and history.
func (s State) Clone() State {
	out := s
	out.Population = make([]Individual, len(s.Population))
	for i, ind := range s.Population {
		out.Population[i] = ind.Clone()
	}
	out.History = slices.Clone(s.History)
	out.Random = slices.Clone(s.Random)
	out.CNG.Stream = slices.Clone(s.CNG.Stream)
	out.RNG.Stream = slices.Clone(s.RNG.Stream)
	return out
}

// Snapshot converts the state into its persisted form.
func (s State) Snapshot(cfg model.Config) model.Snapshot {
	snap := model.Snapshot{
		RunID:      s.RunID,
		SavedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Config:     cfg,
		Generation: s.Generation,
		Population: make([]model.IndividualRecord, len(s.Population)),
		History:    slices.Clone(s.History),
		Random:     slices.Clone(s.Random),
		CNG:        s.CNG,
		RNG:        s.RNG,
	}
	snap.CNG.Stream = slices.Clone(s.CNG.Stream)
	snap.RNG.Stream = slices.Clone(s.RNG.Stream)
	for i, ind := range s.Population {
		snap.Population[i] = ind.Record()
	}
	if s.DatasetDigest != 0 {
		snap.DatasetDigest = strconv.FormatUint(s.DatasetDigest, 16)
	}
	if s.ScoringDigest != 0 {
		snap.ScoringDigest = strconv.FormatUint(s.ScoringDigest, 16)
	}
	return snap
}

// StateFromSnapshot rebuilds a state from a decoded snapshot.
func StateFromSnapshot(snap model.Snapshot) (State, error) {
	state := State{
		RunID:      snap.RunID,
		Population: make([]Individual, len(snap.Population)),
		History:    slices.Clone(snap.History),
		Generation: snap.Generation,
		Random:     slices.Clone(snap.Random),
		CNG:        snap.CNG,
		RNG:        snap.RNG,
	}
	for i, rec := range snap.Population {
		ind, err := IndividualFromRecord(rec)
		if err != nil {
			return State{}, fmt.Errorf("%w: individual %d: %w", model.ErrSnapshotIO, i, err)
		}
		state.Population[i] = ind
	}
	var err error
	if state.DatasetDigest, err = parseDigest("dataset", snap.DatasetDigest); err != nil {
		return State{}, err
	}
	if state.ScoringDigest, err = parseDigest("scoring", snap.ScoringDigest); err != nil {
		return State{}, err
	}
	return state, nil
}

func parseDigest(name, raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	digest, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s digest %q: %w", model.ErrSnapshotIO, name, raw, err)
	}
	return digest, nil
}
