// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// frontmatterDelimiter separates the YAML metadata header from the markdown
// body. The opening delimiter must be the first line of the file.
var frontmatterDelimiter = []byte("---")

// SplitFrontmatter splits a markdown document into its raw YAML header and
// body. Documents without a header return nil header bytes and the full
// input as body; that is not an error — the header is optional, and the
// caller decides whether a missing one matters.
func SplitFrontmatter(data []byte) (header, body []byte, err error) {
	trimmed := bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !bytes.HasPrefix(trimmed, frontmatterDelimiter) {
		return nil, data, nil
	}
	rest := trimmed[len(frontmatterDelimiter):]
	if len(rest) > 0 && rest[0] == '\r' {
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != '\n' {
		// "---foo" is a horizontal rule or plain text, not a header.
		return nil, data, nil
	}
	rest = rest[1:]

	// Find the closing delimiter on its own line.
	for offset := 0; ; {
		idx := bytes.Index(rest[offset:], frontmatterDelimiter)
		if idx < 0 {
			return nil, data, fmt.Errorf("frontmatter: missing closing delimiter")
		}
		idx += offset
		lineStart := idx == 0 || rest[idx-1] == '\n'
		end := idx + len(frontmatterDelimiter)
		// The closing line may end with \n, \r\n, or EOF.
		lineEnd := end == len(rest)
		if !lineEnd && rest[end] == '\r' {
			end++
		}
		if !lineEnd && end < len(rest) && rest[end] == '\n' {
			end++
			lineEnd = true
		}
		if end == len(rest) {
			lineEnd = true
		}
		if lineStart && lineEnd {
			return rest[:idx], rest[end:], nil
		}
		offset = idx + len(frontmatterDelimiter)
	}
}

// ParseAgent decodes an agent definition file. On malformed frontmatter the
// returned meta is the zero value and err describes the problem; the body is
// still returned so the caller can produce a partial record.
func ParseAgent(data []byte) (AgentMeta, string, error) {
	var meta AgentMeta
	header, body, err := SplitFrontmatter(data)
	if err != nil {
		return meta, string(data), err
	}
	if len(header) == 0 {
		return meta, string(body), fmt.Errorf("frontmatter: missing metadata header")
	}
	if err := yaml.Unmarshal(header, &meta); err != nil {
		return AgentMeta{}, string(body), fmt.Errorf("frontmatter: %w", err)
	}
	return meta, string(body), nil
}

// ParseCommand decodes a command definition file with the same partial-record
// policy as ParseAgent.
func ParseCommand(data []byte) (CommandMeta, string, error) {
	var meta CommandMeta
	header, body, err := SplitFrontmatter(data)
	if err != nil {
		return meta, string(data), err
	}
	if len(header) == 0 {
		return meta, string(body), fmt.Errorf("frontmatter: missing metadata header")
	}
	if err := yaml.Unmarshal(header, &meta); err != nil {
		return CommandMeta{}, string(body), fmt.Errorf("frontmatter: %w", err)
	}
	return meta, string(body), nil
}
