package web

import (
	"embed"
)

//go:embed static/index.html
var staticFS embed.FS

// IndexHTML returns the embedded UI page.
func IndexHTML() []byte {
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		// the file is embedded at build time
		panic(err)
	}
	return data
}
