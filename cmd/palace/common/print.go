package commoncmder

import (
	"fmt"
	"io"

	"github.com/papercomputeco/memorypalace/pkg/cliui"
	"github.com/papercomputeco/memorypalace/pkg/memory"
)

// PrintMemory writes a compact view of m: id, status, and faces.
func PrintMemory(w io.Writer, m memory.Memory) {
	fmt.Fprintf(w, "\n  %s %s  %s %s\n",
		cliui.KeyStyle.Render("Memory"),
		cliui.ValueStyle.Render(m.ID),
		cliui.StatusBadge(m.Status()),
		cliui.Progress(m.Status()),
	)

	faces, ok := m.Faces.Get()
	switch {
	case !ok:
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("faces not detected yet"))
	case len(faces) == 0:
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("no faces found"))
	default:
		fmt.Fprintf(w, "  %s\n", cliui.KeyStyle.Render("Faces"))
		for _, f := range faces {
			label := cliui.DimStyle.Render("<untagged>")
			if l, ok := f.Label.Get(); ok {
				label = cliui.ValueStyle.Render(l)
			}
			fmt.Fprintf(w, "    %s  %s\n", f.CropFile, label)
		}
	}

	if ref, ok := m.NarrationAudio.Get(); ok {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render("Narration"), cliui.DimStyle.Render(ref))
	}
	fmt.Fprintln(w)
}
