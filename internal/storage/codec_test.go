package storage

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gasm/internal/model"
)

func sampleSnapshot(runID, savedAt string, best float64) model.Snapshot {
	f := model.Float(best)
	return model.Snapshot{
		RunID:      runID,
		SavedAtUTC: savedAt,
		Config:     model.DefaultConfig(),
		Generation: 1,
		Population: []model.IndividualRecord{
			{Code: "AB", Fitness: &f, Size: 2, Steps: 2},
			{Code: "X", Literals: []model.Float{4}, Size: 1},
		},
		History: []model.GenerationEntry{
			{Generation: 0, BestFitness: 7, AvgFitness: model.Float(math.NaN()), AvgSize: 1.5},
			{Generation: 1, BestFitness: f, AvgFitness: 9, AvgSize: 1.5},
		},
		Random:        []byte{1, 2, 3, 4},
		CNG:           model.GeneratorState{Spec: model.GeneratorSpec{Kind: model.GeneratorIncrement}, Next: 12},
		RNG:           model.GeneratorState{Spec: model.GeneratorSpec{Kind: model.GeneratorRandom}, Stream: []byte{9, 9}},
		DatasetDigest: "abc123",
	}
}

func TestDecodeSnapshotFixture(t *testing.T) {
	data, err := os.ReadFile(fixturePath("snapshot_v1.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	snap, err := DecodeSnapshot(data, FormatJSON)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if snap.RunID != "run-fixture-1" || snap.Generation != 1 {
		t.Fatalf("unexpected snapshot header: %+v", snap.Info())
	}
	if snap.Config.PopulationSize != 2 || snap.Config.Selection.Kind != model.SelectionTournament {
		t.Fatalf("unexpected config: %+v", snap.Config)
	}
	if len(snap.Population) != 2 || snap.Population[1].Fitness == nil || !math.IsNaN(float64(*snap.Population[1].Fitness)) {
		t.Fatalf("expected NaN fitness on second individual, got %+v", snap.Population)
	}
	if !math.IsNaN(float64(snap.History[1].AvgFitness)) {
		t.Fatalf("expected NaN average, got %v", snap.History[1].AvgFitness)
	}
	if err := snap.Config.Validate(); err != nil {
		t.Fatalf("fixture config invalid: %v", err)
	}
}

func TestSnapshotRoundTripBothFormats(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatCBOR} {
		in := sampleSnapshot("run-1", "2026-01-01T00:00:00Z", 2.5)
		data, err := EncodeSnapshot(in, format)
		if err != nil {
			t.Fatalf("%s encode: %v", format, err)
		}
		out, err := DecodeSnapshot(data, format)
		if err != nil {
			t.Fatalf("%s decode: %v", format, err)
		}
		if out.SchemaVersion != CurrentSchemaVersion || out.CodecVersion != CurrentCodecVersion {
			t.Fatalf("%s: versions not stamped: %+v", format, out.VersionedRecord)
		}
		if !math.IsNaN(float64(out.History[0].AvgFitness)) {
			t.Fatalf("%s: NaN average lost: %v", format, out.History[0].AvgFitness)
		}
		out.History[0].AvgFitness = in.History[0].AvgFitness
		in.VersionedRecord = out.VersionedRecord
		if !reflect.DeepEqual(out.Population, in.Population) || !reflect.DeepEqual(out.Config, in.Config) || !reflect.DeepEqual(out.Random, in.Random) || !reflect.DeepEqual(out.RNG, in.RNG) {
			t.Fatalf("%s: round trip mismatch:\nin=%+v\nout=%+v", format, in, out)
		}
	}
}

func TestDecodeSnapshotRejectsVersionMismatch(t *testing.T) {
	data := []byte(`{"schemaVersion": 99, "codecVersion": 1, "runId": "x"}`)
	_, err := DecodeSnapshot(data, FormatJSON)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"run.json":       FormatJSON,
		"run.CBOR":       FormatCBOR,
		"dir/checkpoint": FormatJSON,
		"dir/state.cbor": FormatCBOR,
	}
	for path, want := range cases {
		if got := FormatForPath(path); got != want {
			t.Fatalf("FormatForPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
