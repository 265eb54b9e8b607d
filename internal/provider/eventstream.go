package provider

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// noContentFallback is returned when a stream ends without producing any
// usable content.
const noContentFallback = "Sorry, no response content could be extracted."

// streamEvent is one decoded line of the query event stream.
type streamEvent struct {
	Type string `json:"type"`
	Data struct {
		Content string  `json:"content"`
		Result  *string `json:"result"`
	} `json:"data"`
}

// decodeEventStream collapses a line-oriented event stream into a single
// reply string.
//
// Each payload line is prefixed with "data: " followed by a JSON object;
// lines without the prefix and lines that fail to parse are skipped.
// Events of type "message" contribute their data.content incrementally;
// the first event of type "result" that carries a data.result field wins
// outright, discarding anything accumulated so far. If the stream ends
// without a result event the accumulated message content is returned, and
// if that is empty too a fixed fallback sentence is returned.
func decodeEventStream(r io.Reader) string {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var accumulated strings.Builder
	for sc.Scan() {
		payload, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "message":
			accumulated.WriteString(ev.Data.Content)
		case "result":
			if ev.Data.Result != nil {
				return *ev.Data.Result
			}
		}
	}

	if accumulated.Len() > 0 {
		return accumulated.String()
	}
	return noContentFallback
}
