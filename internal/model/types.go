package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schemaVersion"`
	CodecVersion  int `json:"codecVersion"`
}

// Float is a float64 whose JSON form also covers NaN and the infinities,
// which plain encoding/json rejects.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", s, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// IndividualRecord is the persisted form of one program. Code is the ASCII
// base32 opcode string; Literals carries the values of literal-bearing
// instructions in program order.
type IndividualRecord struct {
	Code     string    `json:"code"`
	Literals []Float   `json:"literals,omitempty"`
	Fitness  *Float    `json:"fitness"`
	Size     int       `json:"size"`
	Steps    float64   `json:"steps,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// GenerationEntry summarizes one evaluated generation.
type GenerationEntry struct {
	Generation  int              `json:"generation"`
	BestFitness Float            `json:"bestFitness"`
	AvgFitness  Float            `json:"avgFitness"`
	AvgSize     float64          `json:"avgSize"`
	Best        IndividualRecord `json:"bestIndividual"`
}

// GeneratorState is the resumable state of a literal source.
type GeneratorState struct {
	Spec   GeneratorSpec `json:"spec"`
	Next   float64       `json:"next"`
	Stream []byte        `json:"stream,omitempty"`
}

// Snapshot is the full resumable state of a run.
type Snapshot struct {
	VersionedRecord
	RunID         string             `json:"runId"`
	SavedAtUTC    string             `json:"savedAtUtc,omitempty"`
	Config        Config             `json:"config"`
	Generation    int                `json:"generation"`
	Population    []IndividualRecord `json:"population"`
	History       []GenerationEntry  `json:"history"`
	Random        []byte             `json:"random,omitempty"`
	CNG           GeneratorState     `json:"cng"`
	RNG           GeneratorState     `json:"rng"`
	DatasetDigest string             `json:"datasetDigest,omitempty"`
	ScoringDigest string             `json:"scoringDigest,omitempty"`
}

// RunInfo is the listing view of a stored run.
type RunInfo struct {
	RunID       string `json:"runId"`
	SavedAtUTC  string `json:"savedAtUtc"`
	Generation  int    `json:"generation"`
	Population  int    `json:"population"`
	BestFitness Float  `json:"bestFitness"`
}

// Info derives the listing view of a snapshot.
func (s Snapshot) Info() RunInfo {
	info := RunInfo{
		RunID:       s.RunID,
		SavedAtUTC:  s.SavedAtUTC,
		Generation:  s.Generation,
		Population:  len(s.Population),
		BestFitness: Float(math.NaN()),
	}
	if n := len(s.History); n > 0 {
		info.BestFitness = s.History[n-1].BestFitness
	}
	return info
}
