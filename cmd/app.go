package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/checkin"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/extractor"
	"github.com/kozaktomas/attendance/internal/matcher"
)

// app bundles the services a command needs.
type app struct {
	cfg   *config.Config
	store *postgres.Store
}

// openApp loads configuration and connects to the record store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	store, err := postgres.Open(ctx, &cfg.Database, cfg.Embedding.Dim)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func (a *app) capturer() *capture.Source {
	return capture.NewSource(a.cfg.Capture.MaxSize, a.cfg.Capture.SnapshotURL)
}

func (a *app) extractor() *extractor.Client {
	return extractor.New(a.cfg.Embedding.URL, a.cfg.Embedding.Dim)
}

func (a *app) orchestrator() (*checkin.Orchestrator, error) {
	m, err := matcher.New(a.cfg.Matcher, a.cfg.Embedding.Dim)
	if err != nil {
		return nil, fmt.Errorf("invalid matcher configuration: %w", err)
	}
	return checkin.New(a.store, a.capturer(), a.extractor(), m, checkin.WithLocation(a.cfg.Location)), nil
}

func (a *app) enroller() *checkin.Enroller {
	return checkin.NewEnroller(a.store, a.capturer(), a.extractor())
}

// today is the current attendance day in the configured time zone.
func (a *app) today() time.Time {
	return database.DateOf(time.Now().In(a.cfg.Location))
}

// resolveClass accepts a class ID or an exact class name.
func resolveClass(ctx context.Context, s database.Stores, ref string) (*database.Class, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetClass(ctx, id)
	}
	classes, err := s.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	var found []database.Class
	for _, c := range classes {
		if strings.EqualFold(c.Name, ref) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("class %q: %w", ref, database.ErrNotFound)
	case 1:
		return &found[0], nil
	}
	return nil, fmt.Errorf("class name %q is ambiguous (%d classes), use the ID", ref, len(found))
}

// resolveStudent accepts a student ID or a name matched without diacritics.
func resolveStudent(ctx context.Context, s database.Stores, ref string) (*database.Student, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetStudent(ctx, id)
	}
	found, err := s.FindStudentsByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("student %q: %w", ref, database.ErrNotFound)
	case 1:
		return s.GetStudent(ctx, found[0].ID)
	}
	return nil, fmt.Errorf("student name %q is ambiguous (%d students), use the ID", ref, len(found))
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return database.ParseDate(value)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
