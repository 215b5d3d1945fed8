package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gasm/internal/model"
)

const runIndexFile = "run_index.json"

// RunArtifacts is the human-facing output of a finished run, written next
// to the resumable snapshot.
type RunArtifacts struct {
	RunID   string                  `json:"run_id"`
	Config  model.Config            `json:"config"`
	History []model.GenerationEntry `json:"history"`
	Best    model.IndividualRecord  `json:"best"`
}

type RunIndexEntry struct {
	RunID            string      `json:"run_id"`
	PopulationSize   int         `json:"population_size"`
	Generations      int         `json:"generations"`
	Seed             uint64      `json:"seed"`
	Workers          int         `json:"workers"`
	EliteCount       int         `json:"elite_count"`
	Selection        string      `json:"selection"`
	Fitness          string      `json:"fitness"`
	FinalBestFitness model.Float `json:"final_best_fitness"`
	CreatedAtUTC     string      `json:"created_at_utc"`
}

// WriteRunArtifacts writes config, history (JSON and CSV) and the best
// program listing under baseDir/<run id>.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "history.json"), artifacts.History); err != nil {
		return "", err
	}
	if err := writeHistoryFile(filepath.Join(runDir, "history.csv"), artifacts.History); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, "best.asm"), []byte(artifacts.Best.Text), 0o644); err != nil {
		return "", err
	}
	return runDir, nil
}

// WriteHistoryCSV emits one row per generation.
func WriteHistoryCSV(w io.Writer, history []model.GenerationEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"generation", "best_fitness", "avg_fitness", "avg_size", "best_size", "best_code"}); err != nil {
		return err
	}
	for _, entry := range history {
		if err := writer.Write([]string{
			strconv.Itoa(entry.Generation),
			strconv.FormatFloat(float64(entry.BestFitness), 'g', -1, 64),
			strconv.FormatFloat(float64(entry.AvgFitness), 'g', -1, 64),
			strconv.FormatFloat(entry.AvgSize, 'f', -1, 64),
			strconv.Itoa(entry.Best.Size),
			entry.Best.Code,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteHistoryJSON emits the history as an indented JSON array.
func WriteHistoryJSON(w io.Writer, history []model.GenerationEntry) error {
	if history == nil {
		history = []model.GenerationEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(history)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	out := make([]RunIndexEntry, len(indexed))
	for i := range indexed {
		out[i] = indexed[i].entry
	}
	return out, nil
}

func writeHistoryFile(path string, history []model.GenerationEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := WriteHistoryCSV(file, history); err != nil {
		return err
	}
	return file.Sync()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
