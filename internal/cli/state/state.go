package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Identity is who the CLI submits as. The judge trusts the X-User-Id
// header set by the API layer in front of it.
type Identity struct {
	ContestantID     string `json:"contestant_id"`
	LastSubmissionID string `json:"last_submission_id"`
}

func Load(path string) (Identity, error) {
	var id Identity
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return id, nil
		}
		return id, fmt.Errorf("read cli state failed: %w", err)
	}
	if len(data) == 0 {
		return id, nil
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return id, fmt.Errorf("parse cli state failed: %w", err)
	}
	return id, nil
}

func Save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cli state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cli state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cli state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cli state failed: %w", err)
	}
	return nil
}
