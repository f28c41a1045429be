package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// DayNightHandler serves the complete day/night record for /api/daynight.
// GET returns the live record, POST replaces it, persists it to cfile and
// updates the store.
func DayNightHandler(cfile string, store *DayNightStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getDayNightHandler(w, store)
		case http.MethodPost:
			setDayNightHandler(w, r, cfile, store)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func getDayNightHandler(w http.ResponseWriter, store *DayNightStore) {
	slog.Info("Handling GET /api/daynight request")
	policy, err := store.Policy()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// setDayNightHandler merges the posted record into the config file on disk,
// validates it and writes it back. The store is updated right away so the
// change does not have to wait for the file watcher.
func setDayNightHandler(w http.ResponseWriter, r *http.Request, cfile string, store *DayNightStore) {
	slog.Info("Handling POST /api/daynight request")
	defer r.Body.Close()

	current, err := store.Policy()
	if err != nil {
		current = Default().DayNight
	}
	// fields missing from the payload keep their current value
	newPolicy := current
	if err := json.NewDecoder(r.Body).Decode(&newPolicy); err != nil {
		slog.Error("Failed to decode incoming JSON", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := newPolicy.Validate(); err != nil {
		slog.Error("Validation failed for new day/night policy", "error", err)
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	if cfile != "" {
		if err := persistDayNight(cfile, newPolicy); err != nil {
			slog.Error("Failed to save day/night policy", "error", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
	}
	store.Set(newPolicy)

	slog.Info("Updated day/night policy", "policy", newPolicy)
	writeJSON(w, http.StatusOK, newPolicy)
}

func persistDayNight(cfile string, policy DayNightConfig) error {
	fullConfig, err := decodeFile(cfile)
	if err != nil {
		return err
	}
	fullConfig.DayNight = policy
	yamlData, err := yaml.Marshal(&fullConfig)
	if err != nil {
		return fmt.Errorf("can't marshal config: %w", err)
	}
	return os.WriteFile(cfile, yamlData, 0o644)
}

// SettingsHandler serves GET /api/settings/{setting} and
// POST /api/settings/{setting}/{value}.
func SettingsHandler(store *DayNightStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("setting")
		switch r.Method {
		case http.MethodGet:
			value, err := store.Setting(name)
			if err != nil {
				settingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"setting": name, "value": value})
		case http.MethodPost:
			old, value, err := store.ChangeSetting(name, r.PathValue("value"))
			if err != nil {
				settingError(w, err)
				return
			}
			slog.Info("Changed day/night setting", "setting", name, "old", old, "new", value)
			writeJSON(w, http.StatusOK, map[string]any{"setting": name, "old": old, "value": value})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func settingError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrUnknownSetting):
		status = http.StatusNotFound
	case errors.Is(err, ErrNoPolicy):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
