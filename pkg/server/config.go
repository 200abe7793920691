package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/model"
	"gopkg.in/yaml.v3"
)

// ConferenceYAML represents a conference in YAML config.
type ConferenceYAML struct {
	Title       string   `yaml:"title"`
	Institution string   `yaml:"institution"`
	Description string   `yaml:"description,omitempty"`
	Public      *bool    `yaml:"public,omitempty"` // default true
	Organizers  []string `yaml:"organizers,omitempty"`
	Attendees   []string `yaml:"attendees,omitempty"`
	Guests      []string `yaml:"guests,omitempty"`
}

// ConferencesConfig is the top-level YAML config for conferences.
type ConferencesConfig struct {
	Conferences []ConferenceYAML `yaml:"conferences"`
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID         int64  `yaml:"id"`
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Staff      bool   `yaml:"staff,omitempty"`
	Active     bool   `yaml:"active"`
	DateJoined string `yaml:"date_joined"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// LoadConferencesFromYAML reads a conferences YAML file and creates or
// updates conferences in the store.
func LoadConferencesFromYAML(ctx context.Context, path string, st datastore.DataProviderFactory) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return 0, fmt.Errorf("read conferences config: %w", err)
	}
	return ImportConferencesFromYAML(ctx, data, st)
}

// ImportConferencesFromYAML parses YAML data and creates conferences that do
// not exist yet (matched by title). Listed members are added or have their
// role changed; members not listed are left alone. It returns how many
// conferences were imported without error.
func ImportConferencesFromYAML(ctx context.Context, data []byte, st datastore.DataProviderFactory) (int, error) {
	var cfg ConferencesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parse conferences config: %w", err)
	}

	imported := 0
	for _, c := range cfg.Conferences {
		if err := ensureConference(ctx, st, c); err != nil {
			slog.Error("failed to import conference from config", "title", c.Title, "err", err)
			continue
		}
		imported++
	}

	slog.Info("imported conferences from YAML", "count", imported, "total", len(cfg.Conferences))
	return imported, nil
}

func ensureConference(ctx context.Context, st datastore.DataProviderFactory, c ConferenceYAML) error {
	tx, err := st.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	conf, err := tx.GetConferenceByTitle(ctx, c.Title)
	if err != nil {
		return err
	}
	if conf == nil {
		conf = model.NewConference(c.Title, c.Institution)
		conf.Description = c.Description
		if c.Public != nil {
			conf.IsPublic = *c.Public
		}
		if err := tx.CreateConference(ctx, conf); err != nil {
			return err
		}
		slog.Debug("created conference from config", "title", conf.Title, "id", conf.ID)
	}

	// Lower roles first so a user listed twice ends up with the higher role.
	for _, group := range []struct {
		role      model.Role
		usernames []string
	}{
		{model.RoleGuest, c.Guests},
		{model.RoleAttendee, c.Attendees},
		{model.RoleOrganizer, c.Organizers},
	} {
		for _, name := range group.usernames {
			u, err := tx.GetUserByUsername(ctx, name)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("unknown user %q", name)
			}
			if err := tx.PutMember(ctx, conf.ID, u.ID, group.role); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ExportConferencesYAML exports all conferences and their members as YAML.
// The output can be fed back to ImportConferencesFromYAML.
func ExportConferencesYAML(ctx context.Context, st datastore.DataProviderFactory) ([]byte, error) {
	ds := st.NonTx()
	confs, err := ds.ListConferences(ctx)
	if err != nil {
		return nil, err
	}

	cfg := ConferencesConfig{Conferences: []ConferenceYAML{}}
	// Oldest first, matching creation order on re-import.
	for i := len(confs) - 1; i >= 0; i-- {
		c := confs[i]
		public := c.IsPublic
		entry := ConferenceYAML{
			Title:       c.Title,
			Institution: c.Institution,
			Description: c.Description,
			Public:      &public,
		}
		members, err := ds.ListMembers(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			switch m.Role {
			case model.RoleOrganizer:
				entry.Organizers = append(entry.Organizers, m.Username)
			case model.RoleAttendee:
				entry.Attendees = append(entry.Attendees, m.Username)
			case model.RoleGuest:
				entry.Guests = append(entry.Guests, m.Username)
			}
		}
		cfg.Conferences = append(cfg.Conferences, entry)
	}
	return yaml.Marshal(&cfg)
}

// ExportUsersYAML exports all users as YAML. Password hashes are never
// exported.
func ExportUsersYAML(ctx context.Context, st datastore.DataProviderFactory) ([]byte, error) {
	users, err := st.NonTx().ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	export := UsersExport{Users: []UserYAML{}}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:         u.ID,
			Username:   u.Username,
			Email:      u.Email,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			Staff:      u.IsStaff,
			Active:     u.IsActive,
			DateJoined: u.DateJoined.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
