package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// ErrNotFound is returned when no profile exists for the requested
// organization. Callers treat this as fatal for the run.
var ErrNotFound = eris.New("organization profile not found")

// Provider resolves organization profiles by id or name.
type Provider interface {
	Get(ctx context.Context, orgID string) (*model.OrganizationProfile, error)
	List(ctx context.Context) ([]*model.OrganizationProfile, error)
}

// FileProvider loads profiles from a directory of YAML files, one
// organization per file. Files are read once and cached; Reload picks up
// edits.
type FileProvider struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*model.OrganizationProfile
}

func NewFileProvider(dir string) (*FileProvider, error) {
	p := &FileProvider{dir: dir}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads every profile file in the directory. Malformed files are
// skipped with a warning so one bad profile cannot take down the rest.
func (p *FileProvider) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return eris.Wrapf(err, "profile: read dir %s", p.dir)
	}

	cache := make(map[string]*model.OrganizationProfile)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(p.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			zap.L().Warn("profile: skipping unreadable file", zap.String("path", path), zap.Error(err))
			continue
		}

		var prof model.OrganizationProfile
		if err := yaml.Unmarshal(data, &prof); err != nil {
			zap.L().Warn("profile: skipping malformed file", zap.String("path", path), zap.Error(err))
			continue
		}
		if prof.ID == "" || prof.Name == "" {
			zap.L().Warn("profile: skipping profile without id or name", zap.String("path", path))
			continue
		}
		cache[strings.ToLower(prof.ID)] = &prof
	}

	p.mu.Lock()
	p.cache = cache
	p.mu.Unlock()

	zap.L().Debug("profile: loaded profiles", zap.Int("count", len(cache)))
	return nil
}

// Get looks up a profile by id, falling back to a case-insensitive name
// match.
func (p *FileProvider) Get(_ context.Context, orgID string) (*model.OrganizationProfile, error) {
	key := strings.ToLower(strings.TrimSpace(orgID))
	if key == "" {
		return nil, eris.Wrap(ErrNotFound, "empty organization id")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if prof, ok := p.cache[key]; ok {
		return prof, nil
	}
	for _, prof := range p.cache {
		if strings.EqualFold(prof.Name, orgID) {
			return prof, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "org %q", orgID)
}

func (p *FileProvider) List(_ context.Context) ([]*model.OrganizationProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*model.OrganizationProfile, 0, len(p.cache))
	for _, prof := range p.cache {
		out = append(out, prof)
	}
	return out, nil
}

// StaticProvider serves a fixed set of profiles. Used by tests and the
// webhook server's dry-run mode.
type StaticProvider struct {
	Profiles []*model.OrganizationProfile
}

func (p *StaticProvider) Get(_ context.Context, orgID string) (*model.OrganizationProfile, error) {
	for _, prof := range p.Profiles {
		if strings.EqualFold(prof.ID, orgID) || strings.EqualFold(prof.Name, orgID) {
			return prof, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "org %q", orgID)
}

func (p *StaticProvider) List(_ context.Context) ([]*model.OrganizationProfile, error) {
	return p.Profiles, nil
}
