package filesystem

type (
	Reader interface {
		// ReadJSON decodes the file at path into target. A missing file yields
		// an error matching fs.ErrNotExist.
		ReadJSON(path string, target any) error
	}
	Writer interface {
		// WriteJSON replaces the file at path atomically.
		WriteJSON(path string, data any) error
		WriteBytes(path string, data []byte) error
	}
)
