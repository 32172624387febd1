package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.APIMessage{Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.APIMessage{Error: msg})
}

func readBodyJSON(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	return json.Unmarshal(body, out)
}

// rangeParams reads the inclusive bounds of a readings query. inicio/fim
// take precedence over data_inicio/data_fim. Missing bounds are zero.
func rangeParams(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	parse := func(keys ...string) (time.Time, error) {
		for _, k := range keys {
			if v := q.Get(k); v != "" {
				t, err := models.ParseTimestamp(v)
				if err != nil {
					return time.Time{}, fmt.Errorf("%s: %w", k, err)
				}
				return t, nil
			}
		}
		return time.Time{}, nil
	}

	if start, err = parse("inicio", "data_inicio"); err != nil {
		return
	}
	if end, err = parse("fim", "data_fim"); err != nil {
		return
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		err = fmt.Errorf("inicio must not be after fim")
	}
	return
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
