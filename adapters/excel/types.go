package excel

// RawData is a result file as read from disk, before coercion
type RawData struct {
	Path    string     // Source file
	Headers []string   // Column headers
	Rows    [][]string // Data rows, aligned to Headers
}
