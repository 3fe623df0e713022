package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/model"
)

// Store persists BotState as a JSON file. Single writer only.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

type stateFile struct {
	Position      string         `json:"position"`
	EntryPrice    *float64       `json:"entry_price"`
	EntryTime     *string        `json:"entry_time"`
	StrategyState map[string]any `json:"strategy_state"`
	LastUpdated   string         `json:"last_updated"`
}

// Save writes st to a temp file next to the state file and renames it into
// place, so readers see either the old or the new file.
func (s *Store) Save(st model.BotState) error {
	st.LastUpdated = s.now().UTC()

	f := stateFile{
		Position:      st.Position.Side.String(),
		StrategyState: st.StrategyState,
		LastUpdated:   st.LastUpdated.Format(time.RFC3339Nano),
	}
	if f.StrategyState == nil {
		f.StrategyState = map[string]any{}
	}
	if st.Position.IsLong() {
		price := st.Position.EntryPrice
		at := st.Position.EntryTime.UTC().Format(time.RFC3339Nano)
		f.EntryPrice, f.EntryTime = &price, &at
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load returns the persisted state. A missing or unreadable file yields the
// default FLAT state.
func (s *Store) Load() model.BotState {
	st, err := s.read()
	switch {
	case err == nil:
		return st
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no state file, starting flat", zap.String("path", s.path))
	default:
		logger.Warn("state file unusable, starting flat", zap.String("path", s.path), zap.Error(err))
	}
	return model.DefaultBotState()
}

func (s *Store) read() (model.BotState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.BotState{}, err
		}
		return model.BotState{}, fmt.Errorf("%w: %w", model.ErrCorruptState, err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.BotState{}, fmt.Errorf("%w: %w", model.ErrCorruptState, err)
	}
	side, err := model.ParseSide(f.Position)
	if err != nil {
		return model.BotState{}, fmt.Errorf("%w: %w", model.ErrCorruptState, err)
	}

	st := model.DefaultBotState()
	if f.StrategyState != nil {
		st.StrategyState = f.StrategyState
	}
	if f.LastUpdated != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.LastUpdated); err == nil {
			st.LastUpdated = t
		}
	}
	if side == model.SideFlat {
		return st, nil
	}

	if f.EntryPrice == nil || *f.EntryPrice <= 0 {
		return model.BotState{}, fmt.Errorf("%w: long position without entry price", model.ErrCorruptState)
	}
	var at time.Time
	if f.EntryTime != nil {
		at, err = time.Parse(time.RFC3339Nano, *f.EntryTime)
		if err != nil {
			return model.BotState{}, fmt.Errorf("%w: entry_time: %w", model.ErrCorruptState, err)
		}
	}
	st.Position = model.LongPosition(*f.EntryPrice, at)
	return st, nil
}
