// Package skill defines the skill data model: a named directory containing a
// SKILL.md manifest with YAML frontmatter plus arbitrary payload files.
package skill

// ManifestFileName is the manifest file expected at the root of every skill
// directory and at the root of every package archive.
const ManifestFileName = "SKILL.md"

// Skill represents an installed skill with its metadata
type Skill struct {
	Name        string // Unique name from frontmatter
	Description string // Brief description from frontmatter
	Directory   string // Full path to the skill directory
	FileCount   int    // Number of regular files in the directory
	Size        int64  // Aggregate size of regular files in bytes
}

// Manifest represents the YAML frontmatter of a SKILL.md file
type Manifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Extra       map[string]any `yaml:"-"`
}

// Issue is a single manifest validation finding, keyed by field.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}
