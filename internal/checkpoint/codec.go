package checkpoint

import (
	"encoding/json"
	"errors"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("checkpoint: record version mismatch")

// Stamp fills the current schema/codec versions on a fresh record.
func Stamp() VersionedRecord {
	return VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, err
	}
	if err := checkVersion(cp.VersionedRecord); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func EncodeRun(record RunRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return record, nil
}

func EncodeRewardHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeRewardHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
