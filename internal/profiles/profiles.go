// Package profiles stores named column mappings so that recurring statement
// and report layouts do not have to be described again on every run.
//
// Each profile is a YAML file named <profile>.yaml inside the store
// directory. A small set of built-in profiles covers the common layouts and
// is consulted when no saved profile carries the requested name.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"statement-reconciler/internal/parsers"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// DefaultDir is the store directory used when none is configured
const DefaultDir = "profiles"

const fileExt = ".yaml"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Profile is a named pair of column mappings
type Profile struct {
	Name        string                   `yaml:"name" json:"name" validate:"required,max=64,profilename"`
	Description string                   `yaml:"description,omitempty" json:"description,omitempty" validate:"max=256"`
	Statement   parsers.StatementMapping `yaml:"statement" json:"statement"`
	Report      parsers.ReportMapping    `yaml:"report" json:"report"`
	// Account is the default report account filter for this layout
	Account   string    `yaml:"account,omitempty" json:"account,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	Builtin   bool      `yaml:"-" json:"builtin"`
}

// Store reads and writes profiles in a directory
type Store struct {
	dir      string
	validate *validator.Validate
	logger   logger.Logger
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// the first save.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}

	return &Store{
		dir:      dir,
		validate: newValidator(),
		logger:   logger.GetGlobalLogger().WithComponent("profiles"),
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("profilename", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return v
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.dir
}

// Validate checks the profile fields and both column mappings
func (s *Store) Validate(p *Profile) error {
	if p == nil {
		return errors.ProfileError(errors.CodeProfileInvalid, "", fmt.Errorf("profile cannot be nil"))
	}

	err := s.validate.Struct(p)
	err = multierr.Append(err, p.Statement.Validate())
	err = multierr.Append(err, p.Report.Validate())
	if p.Account != "" && strings.TrimSpace(p.Report.Account) == "" {
		err = multierr.Append(err, fmt.Errorf("account filter %q needs a report account column", p.Account))
	}

	if err != nil {
		return errors.ProfileError(errors.CodeProfileInvalid, p.Name, err)
	}
	return nil
}

// Save validates and writes the profile, replacing any profile of the same name
func (s *Store) Save(p *Profile) (err error) {
	if err := s.Validate(p); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.ProfileError(errors.CodeProfileStore, p.Name, err)
	}

	saved := *p
	saved.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	data, err := yaml.Marshal(&saved)
	if err != nil {
		return errors.ProfileError(errors.CodeProfileStore, p.Name, err)
	}

	// write next to the target and rename so a failed write keeps the old profile
	tmp, err := os.CreateTemp(s.dir, "."+p.Name+"-*.tmp")
	if err != nil {
		return errors.ProfileError(errors.CodeProfileStore, p.Name, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	_, writeErr := tmp.Write(data)
	if writeErr := multierr.Append(writeErr, tmp.Close()); writeErr != nil {
		return errors.ProfileError(errors.CodeProfileStore, p.Name, writeErr)
	}

	if err := os.Rename(tmp.Name(), s.path(p.Name)); err != nil {
		return errors.ProfileError(errors.CodeProfileStore, p.Name, err)
	}

	s.logger.WithFields(logger.Fields{
		"profile": p.Name,
		"path":    s.path(p.Name),
	}).Info("Saved mapping profile")

	return nil
}

// Get loads a saved profile, falling back to the built-in profiles
func (s *Store) Get(name string) (*Profile, error) {
	if !namePattern.MatchString(name) {
		return nil, errors.ProfileError(errors.CodeProfileNotFound, name, nil)
	}

	p, err := s.read(s.path(name))
	if err == nil {
		return p, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.ProfileError(errors.CodeProfileStore, name, err)
	}

	if builtin, ok := builtinByName(name); ok {
		return builtin, nil
	}

	notFound := errors.ProfileError(errors.CodeProfileNotFound, name, nil)
	if suggestion := s.Suggest(name); suggestion != "" {
		notFound.WithSuggestion(fmt.Sprintf("did you mean '%s'?", suggestion))
	}
	return nil, notFound
}

// Suggest returns the known profile name closest to name, or "" when none is
// close enough to be a likely typo
func (s *Store) Suggest(name string) string {
	list, err := s.List()
	if err != nil {
		return ""
	}

	target := []rune(strings.ToLower(name))
	best, bestDistance := "", -1
	for _, p := range list {
		distance := levenshtein.DistanceForStrings(target, []rune(strings.ToLower(p.Name)), levenshtein.DefaultOptions)
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = p.Name, distance
		}
	}

	// substitutions cost 2 with the default options
	if bestDistance < 0 || bestDistance > 2+len(best)/4 {
		return ""
	}
	return best
}

// List returns saved profiles sorted by name, followed by the built-in
// profiles they do not shadow. Unreadable files are skipped with a warning.
func (s *Store) List() ([]*Profile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.ProfileError(errors.CodeProfileStore, s.dir, err)
	}

	saved := make([]*Profile, 0, len(entries))
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		p, err := s.read(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable profile")
			continue
		}
		saved = append(saved, p)
		seen[p.Name] = true
	}
	sort.Slice(saved, func(i, j int) bool { return saved[i].Name < saved[j].Name })

	for _, b := range Builtins() {
		if !seen[b.Name] {
			saved = append(saved, b)
		}
	}

	return saved, nil
}

// Delete removes a saved profile. Built-in profiles cannot be deleted.
func (s *Store) Delete(name string) error {
	if !namePattern.MatchString(name) {
		return errors.ProfileError(errors.CodeProfileNotFound, name, nil)
	}

	err := os.Remove(s.path(name))
	switch {
	case err == nil:
		s.logger.WithField("profile", name).Info("Deleted mapping profile")
		return nil
	case os.IsNotExist(err):
		if _, ok := builtinByName(name); ok {
			return errors.ProfileError(errors.CodeProfileInvalid, name, fmt.Errorf("built-in profiles cannot be deleted"))
		}
		return errors.ProfileError(errors.CodeProfileNotFound, name, nil)
	default:
		return errors.ProfileError(errors.CodeProfileStore, name, err)
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func (s *Store) read(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), fileExt)
	}
	if p.Report.Layout == "" {
		p.Report.Layout = parsers.LayoutNature
	}

	if err := s.Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Builtins returns the profiles shipped with the tool
func Builtins() []*Profile {
	return []*Profile{
		{
			Name:        "default",
			Description: "English column names, nature layout",
			Statement:   *parsers.DefaultStatementMapping(),
			Report:      *parsers.DefaultReportMapping(),
			Builtin:     true,
		},
		{
			Name:        "erp-natureza",
			Description: "Brazilian ERP export with valor and natureza (C/D) columns",
			Statement: parsers.StatementMapping{
				Date:        "data",
				Amount:      "valor",
				Description: "historico",
			},
			Report: parsers.ReportMapping{
				Layout:      parsers.LayoutNature,
				Date:        "data",
				Description: "historico",
				Amount:      "valor",
				Nature:      "natureza",
			},
			Builtin: true,
		},
		{
			Name:        "erp-credito-debito",
			Description: "Brazilian ERP export with separate credito and debito columns",
			Statement: parsers.StatementMapping{
				Date:        "data",
				Amount:      "valor",
				Description: "historico",
			},
			Report: parsers.ReportMapping{
				Layout:      parsers.LayoutSplit,
				Date:        "data",
				Description: "historico",
				Credit:      "credito",
				Debit:       "debito",
			},
			Builtin: true,
		},
	}
}

func builtinByName(name string) (*Profile, bool) {
	for _, p := range Builtins() {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
