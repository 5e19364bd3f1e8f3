package web

import (
	"embed"
	"io/fs"
)

//go:embed pages
var embedded embed.FS

// Pages holds the sample site templates, rooted at the pages directory.
// They are served when PAGES_DIR is set to "embed".
var Pages fs.FS = mustSub(embedded, "pages")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
