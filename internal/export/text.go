// SPDX-License-Identifier: MIT

package export

import (
	"fmt"
	"strings"
)

// renderTXT writes a reading copy: consecutive segments with the same
// effective role collapse under a single role header.
func renderTXT(t *Transcript) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", t.Session.Title, strings.Repeat("=", len(t.Session.Title)))

	lastLabel := ""
	for _, seg := range t.Segments {
		label := roleLabelZH(t.RoleFor(seg), seg.SpeakerID)
		if label != lastLabel {
			if lastLabel != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s]\n", label)
			lastLabel = label
		}
		b.WriteString(seg.Content)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
