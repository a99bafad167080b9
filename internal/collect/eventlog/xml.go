package eventlog

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/4n6ix/triagehost/internal/engine"
)

// xmlEvent mirrors the event schema emitted by the OS query tool. The
// stream is a bare concatenation of Event elements, so parsing wraps it
// in a synthetic root first.
type xmlEvent struct {
	System struct {
		Provider struct {
			Name string `xml:"Name,attr"`
		} `xml:"Provider"`
		EventID     uint32 `xml:"EventID"`
		Level       int    `xml:"Level"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
		Computer string `xml:"Computer"`
		Security struct {
			UserID string `xml:"UserID,attr"`
		} `xml:"Security"`
	} `xml:"System"`
	EventData struct {
		Data []struct {
			Name  string `xml:"Name,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"EventData"`
	RenderingInfo struct {
		Message string `xml:"Message"`
	} `xml:"RenderingInfo"`
}

func parseEvents(raw []byte) ([]engine.EventLogEntry, error) {
	var doc struct {
		Events []xmlEvent `xml:"Event"`
	}
	wrapped := append(append([]byte("<Events>"), raw...), []byte("</Events>")...)
	if err := xml.Unmarshal(bytes.TrimSpace(wrapped), &doc); err != nil {
		return nil, fmt.Errorf("decode event stream: %w", engine.ErrParse)
	}

	entries := make([]engine.EventLogEntry, 0, len(doc.Events))
	for _, ev := range doc.Events {
		entries = append(entries, engine.EventLogEntry{
			EventID:   ev.System.EventID,
			Level:     levelOf(ev.System.Level),
			Timestamp: parseSystemTime(ev.System.TimeCreated.SystemTime),
			Source:    ev.System.Provider.Name,
			Message:   messageOf(ev),
			User:      ev.System.Security.UserID,
			Computer:  ev.System.Computer,
		})
	}
	return entries, nil
}

// levelOf maps the numeric event level. Zero is LogAlways, which the
// viewer presents as informational.
func levelOf(n int) engine.EventLevel {
	switch n {
	case 1:
		return engine.EventLevelCritical
	case 2:
		return engine.EventLevelError
	case 3:
		return engine.EventLevelWarning
	case 0, 4:
		return engine.EventLevelInformation
	case 5:
		return engine.EventLevelVerbose
	default:
		return engine.EventLevelUnknown
	}
}

// messageOf prefers the rendered message and falls back to joining the
// raw event data values.
func messageOf(ev xmlEvent) string {
	if msg := strings.TrimSpace(ev.RenderingInfo.Message); msg != "" {
		return msg
	}
	var parts []string
	for _, d := range ev.EventData.Data {
		v := strings.TrimSpace(d.Value)
		if v == "" {
			continue
		}
		if d.Name != "" {
			parts = append(parts, d.Name+"="+v)
		} else {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "; ")
}

func parseSystemTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
