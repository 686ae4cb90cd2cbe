package task

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrUnparseable marks content that does not carry a well-formed header
// block. Callers treat this as a distinct routing outcome, never a reason
// to abort a directory scan.
var ErrUnparseable = errors.New("task: unparseable frontmatter")

const fence = "---"

// ParseFrontMatter splits a task document into its header map and body.
// The header is a flat block of `key: value` lines between two `---`
// fences; the first colon on a line wins, nested structure is not
// supported. Lines without a colon are skipped rather than rejected.
func ParseFrontMatter(content string) (map[string]string, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, fence+"\n") {
		return nil, "", ErrUnparseable
	}
	rest := normalized[len(fence)+1:]
	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return nil, "", ErrUnparseable
	}
	header := rest[:idx]
	body := rest[idx+len(fence)+1:]
	body = strings.TrimPrefix(body, "\n")

	fields := map[string]string{}
	for _, line := range strings.Split(header, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields, body, nil
}

// WriteFrontMatter renders a header map and body back into the wire
// format. Keys are emitted in sorted order so output is deterministic.
func WriteFrontMatter(header map[string]string, body string) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fence + "\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(header[k])
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")
	b.WriteString(body)
	return b.String()
}

// Parse decodes a full task document. A missing or malformed header
// returns ErrUnparseable; individual missing keys degrade to defaults so
// one sloppy file cannot take down a scan.
func Parse(name, content string) (Task, error) {
	header, body, err := ParseFrontMatter(content)
	if err != nil {
		return Task{Name: name}, err
	}
	t := Task{
		Name:   name,
		Type:   ParseType(header["type"]),
		Status: StatusPending,
		Risk:   ParseRisk(header["risk_level"]),
		Header: header,
		Body:   body,
	}
	if status := strings.TrimSpace(header["status"]); status != "" {
		t.Status = Status(strings.ToLower(status))
	}
	if created, perr := time.Parse(TimeLayout, header["created"]); perr == nil {
		t.CreatedAt = created
	}
	if expires, perr := time.Parse(TimeLayout, header["expires"]); perr == nil {
		t.ExpiresAt = expires
	}
	return t, nil
}

// Serialize renders the task back into its on-disk form. The typed fields
// win over any stale copies in the header map.
func (t Task) Serialize() string {
	header := make(map[string]string, len(t.Header)+4)
	for k, v := range t.Header {
		header[k] = v
	}
	header["type"] = string(t.Type)
	header["status"] = string(t.Status)
	header["risk_level"] = string(t.Risk)
	if !t.CreatedAt.IsZero() {
		header["created"] = t.CreatedAt.Format(TimeLayout)
	}
	if !t.ExpiresAt.IsZero() {
		header["expires"] = t.ExpiresAt.Format(TimeLayout)
	}
	return WriteFrontMatter(header, t.Body)
}
