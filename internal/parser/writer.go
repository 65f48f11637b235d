package parser

import (
	"encoding/base64"
	"strings"

	"github.com/sokinpui/dogs.go/model"
)

// Format renders changes as bundle text in dialect d. Deletes become a
// DELETE_FILE command and binary content is base64 encoded, so parsing the
// output against the same tree yields an equivalent ChangeSet.
func Format(changes []*model.FileChange, d Dialect) string {
	var b strings.Builder
	for _, c := range changes {
		b.WriteString(StartMarker(d, c.Path, c.IsBinary))
		b.WriteString("\n")
		switch {
		case c.Operation == model.OpDelete:
			b.WriteString(DeleteFileCommand)
			b.WriteString("\n")
		case c.IsBinary:
			b.WriteString(base64.StdEncoding.EncodeToString(c.NewContent))
			b.WriteString("\n")
		case len(c.NewContent) > 0:
			b.Write(c.NewContent)
			b.WriteString("\n")
		}
		b.WriteString(EndMarker(d, c.Path))
		b.WriteString("\n")
	}
	return b.String()
}
