package console

import (
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iamr8/ChatConsole/internal/chat"
)

// PrintBacklog renders entries as a table.
func PrintBacklog(w io.Writer, entries []chat.Entry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Direction", "Alias", "Message"})
	table.SetAutoWrapText(false)
	for _, e := range entries {
		table.Append([]string{
			e.Created.Format(time.TimeOnly),
			e.Direction.String(),
			e.Alias,
			e.Body,
		})
	}
	table.Render()
}
