package skill

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// ParseManifest parses SKILL.md content and returns the manifest plus any
// validation issues. A nil error with a non-empty issue list means the file
// was well-formed markdown but failed manifest validation; a non-nil error
// means the content could not be parsed at all.
func ParseManifest(content []byte) (*Manifest, []Issue, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse manifest markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, []Issue{{Field: "frontmatter", Message: "missing YAML frontmatter"}}, nil
	}

	manifest := &Manifest{Extra: make(map[string]any)}
	var issues []Issue

	name, _ := metaData["name"].(string)
	if name == "" {
		issues = append(issues, Issue{Field: "name", Message: "required and must be a non-empty string"})
	}
	manifest.Name = name

	description, _ := metaData["description"].(string)
	if description == "" {
		issues = append(issues, Issue{Field: "description", Message: "required and must be a non-empty string"})
	}
	manifest.Description = description

	for key, value := range metaData {
		if key == "name" || key == "description" {
			continue
		}
		manifest.Extra[key] = value
	}

	return manifest, issues, nil
}

// LoadManifest reads and validates the SKILL.md at the root of dir.
func LoadManifest(dir string) (*Manifest, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", ManifestFileName)
	}

	manifest, issues, err := ParseManifest(content)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, errors.Errorf("invalid manifest: %s", issues[0].String())
	}
	return manifest, nil
}

// Load reads the manifest in dir and returns the populated Skill record,
// including file count and aggregate size of the payload.
func Load(dir string) (*Skill, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	var fileCount int
	var size int64
	err = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			fileCount++
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk skill directory %s", dir)
	}

	return &Skill{
		Name:        manifest.Name,
		Description: manifest.Description,
		Directory:   dir,
		FileCount:   fileCount,
		Size:        size,
	}, nil
}
