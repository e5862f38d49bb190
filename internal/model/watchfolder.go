package model

// WatchedFolder configures one directory the file watcher observes.
// Path may be relative (confined to the configured base directory) or
// absolute (confined to the user-home root); ".." path segments are
// always rejected regardless of form.
type WatchedFolder struct {
	FolderID          string   `json:"folderId"`
	Path              string   `json:"path"`
	Subdirectories    bool     `json:"subdirectories"`
	AllowedExtensions []string `json:"allowedExtensions,omitempty"`
}
