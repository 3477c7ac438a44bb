package templating

// Config holds all configuration options for the local rendering engine.
type Config struct {
	// TemplateDir is the root that relative template paths resolve against.
	// Source renders load their snippets from here as well.
	TemplateDir string `json:"template_dir"`

	// SnippetPattern is the glob, relative to a template's directory, of files
	// parsed alongside it. Snippets they define can be invoked by name.
	SnippetPattern string `json:"snippet_pattern"`

	// LeftDelim and RightDelim delimit template actions.
	LeftDelim  string `json:"left_delim"`
	RightDelim string `json:"right_delim"`

	// MaxSnippetDepth caps nested snippet calls so a snippet that calls
	// itself cannot recurse forever.
	MaxSnippetDepth int `json:"max_snippet_depth"`

	// MaxOutputBytes caps the size of a single rendered page.
	MaxOutputBytes int `json:"max_output_bytes"`

	// DisableCache parses templates from disk on every render.
	DisableCache bool `json:"disable_cache"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		TemplateDir:     "./templates",
		SnippetPattern:  "*-snippets.ntpl",
		LeftDelim:       "{:",
		RightDelim:      ":}",
		MaxSnippetDepth: 32,
		MaxOutputBytes:  8 << 20, // 8MB
		DisableCache:    false,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TemplateDir == "" {
		c.TemplateDir = d.TemplateDir
	}
	if c.SnippetPattern == "" {
		c.SnippetPattern = d.SnippetPattern
	}
	if c.LeftDelim == "" || c.RightDelim == "" {
		c.LeftDelim, c.RightDelim = d.LeftDelim, d.RightDelim
	}
	if c.MaxSnippetDepth <= 0 {
		c.MaxSnippetDepth = d.MaxSnippetDepth
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = d.MaxOutputBytes
	}
	return c
}
