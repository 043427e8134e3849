package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

const maxRequestBody = 64 << 10

// ConfigHandler serves /api/config for the file at cfile.
//
// GET returns the bus and interrupt settings as JSON. POST takes the same
// shape, possibly partial: fields left out keep their current value. The
// merged file is validated before it is written, and the new settings are
// sent back. Errors are JSON objects with an "error" field.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getRuntimeConfig(w, cfile)
		case http.MethodPost:
			postRuntimeConfig(w, r, cfile)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("config api: failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func runtimePart(c *Config) RuntimeConfig {
	return RuntimeConfig{Bus: c.Bus, Interrupts: c.Interrupts}
}

func getRuntimeConfig(w http.ResponseWriter, cfile string) {
	conf, err := ReadConfig(cfile)
	if err != nil {
		slog.Error("config api: can't load configuration", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runtimePart(conf))
}

func postRuntimeConfig(w http.ResponseWriter, r *http.Request, cfile string) {
	conf, err := ReadConfig(cfile)
	if err != nil {
		slog.Error("config api: can't load configuration", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	update := runtimePart(conf)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("can't decode request: %w", err))
		return
	}

	conf.Bus = update.Bus
	conf.Interrupts = update.Interrupts
	if err := conf.Validate(); err != nil {
		slog.Warn("config api: update rejected", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := yaml.Marshal(conf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(cfile, data, 0o644); err != nil {
		slog.Error("config api: can't write configuration", "file", cfile, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("config api: configuration updated", "file", cfile, "role", conf.Bus.Role, "divisor", conf.Bus.ClockDivisor)
	writeJSON(w, http.StatusOK, update)
}
