package model

// ImageRecord is the canonical image description used by the whole pipeline.
// FilePath is trimmed and non-empty once validated; Roles are lower-cased,
// deduplicated and keep their first-seen order.
type ImageRecord struct {
	FilePath string   `json:"file_path"`
	Label    string   `json:"label"`
	Disabled bool     `json:"disabled"`
	Position int      `json:"position"`
	Roles    []string `json:"roles"`
}

// ImageEntry is the typed image shape accepted from Go callers. Unlike
// ImageRecord it carries no normalization guarantees.
type ImageEntry struct {
	FilePath string   `json:"file_path"`
	Label    string   `json:"label"`
	Disabled bool     `json:"disabled"`
	Position int      `json:"position"`
	Roles    []string `json:"roles"`
}
