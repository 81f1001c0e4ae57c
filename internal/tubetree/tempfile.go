package tubetree

import (
	"path/filepath"

	"github.com/seantiz/tubetree/internal/model"
)

// digitOffset moves an ASCII digit into the upper-case letters: '0' becomes
// 'A' and '9' becomes 'J'.
const digitOffset = 'A' - '0'

// DigitsToLetters replaces every ASCII digit in s with the letter digitOffset
// code points later. Every other byte is left as is.
func DigitsToLetters(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= '0' && c <= '9' {
			b[i] = c + digitOffset
		}
	}
	return string(b)
}

// TempFileName returns a fresh .tre path in the temp directory for the node
// with the given ID. The MetaIO reader used by the module rejects file names
// containing digits, so neither the token nor the node part carries any.
// Every call returns a different path.
func (l *Logic) TempFileName(nodeID string) string {
	name := model.NewToken() + "_" + DigitsToLetters(nodeID) + ".tre"
	return filepath.Join(l.tempDir, name)
}
