package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"gasm/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// FormatForPath picks CBOR for ".cbor" files and JSON otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return FormatCBOR
	}
	return FormatJSON
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeSnapshot stamps the current versions and encodes snap.
func EncodeSnapshot(snap model.Snapshot, format Format) ([]byte, error) {
	snap.VersionedRecord = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatCBOR:
		return cborEncMode.Marshal(snap)
	}
	return nil, fmt.Errorf("unsupported snapshot format %q", format)
}

func DecodeSnapshot(data []byte, format Format) (model.Snapshot, error) {
	var snap model.Snapshot
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, &snap); err != nil {
			return model.Snapshot{}, err
		}
	case FormatCBOR:
		if err := cbor.Unmarshal(data, &snap); err != nil {
			return model.Snapshot{}, err
		}
	default:
		return model.Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err := checkVersion(snap.VersionedRecord); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
