package store

import (
	"context"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crowdcount/internal/model"
)

// projectFile is the on-disk layout of a YAML project file.
type projectFile struct {
	Projects []model.Project `yaml:"projects"`
}

// YAMLProjectStore serves project metadata from a YAML file loaded once.
type YAMLProjectStore struct {
	mu       sync.RWMutex
	projects map[string]model.Project
}

// LoadYAMLProjects reads a project file of the form:
//
//	projects:
//	  - id: stadium
//	    key: secret
//	    areas: {...}
//	    cameras: {...}
func LoadYAMLProjects(path string) (*YAMLProjectStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "yaml: read %s", path)
	}
	return ParseYAMLProjects(data)
}

// ParseYAMLProjects decodes project metadata from YAML bytes.
func ParseYAMLProjects(data []byte) (*YAMLProjectStore, error) {
	var f projectFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "yaml: decode projects")
	}
	s := &YAMLProjectStore{projects: make(map[string]model.Project, len(f.Projects))}
	for _, p := range f.Projects {
		if p.ID == "" {
			return nil, eris.New("yaml: project without id")
		}
		if _, dup := s.projects[p.ID]; dup {
			return nil, eris.Errorf("yaml: duplicate project %q", p.ID)
		}
		s.projects[p.ID] = p
	}
	return s, nil
}

func (s *YAMLProjectStore) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "yaml: get project %s", projectID)
	}
	return &p, nil
}

// Projects returns every loaded project.
func (s *YAMLProjectStore) Projects() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out
}
