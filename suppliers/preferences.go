package suppliers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// DefaultPreferences are applied for keys absent from the preferences file.
func DefaultPreferences() interfaces.Preferences {
	return interfaces.Preferences{
		LogoText: "RENTRI",
		Theme:    "dark",
	}
}

// LoadPreferences reads the preferences file at path, merging loaded
// values over the defaults. A missing file yields the defaults.
func LoadPreferences(path string) (interfaces.Preferences, error) {
	prefs := DefaultPreferences()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("read preferences: %w", err)
	}

	if err := json.Unmarshal(raw, &prefs); err != nil {
		return DefaultPreferences(), fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences writes the preferences file at path.
func SavePreferences(path string, prefs interfaces.Preferences) error {
	raw, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}
