// Package textprep filters and cleans comments before they reach a classifier.
package textprep

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/russross/blackfriday/v2"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern          = regexp.MustCompile(`https?://\S+|www\.\S+`)
)

const maxLineBytes = 1 << 20

// RemoveLinks keeps the text of markdown links and drops bare URLs.
func RemoveLinks(input string) string {
	input = markdownLinkPattern.ReplaceAllString(input, "$1")
	return urlPattern.ReplaceAllString(input, "")
}

// Normalize renders markdown, strips the resulting markup and links, and
// collapses whitespace.
func Normalize(input string) string {
	input = RemoveLinks(input)

	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rendered)))
	if err != nil {
		slog.Warn("[TextPrep] Failed to parse rendered markdown, using raw text",
			slog.String("error", err.Error()))
		return strings.Join(strings.Fields(input), " ")
	}

	return strings.Join(strings.Fields(RemoveLinks(doc.Text())), " ")
}

// Prepare drops empty and whitespace-only comments. The rest are returned
// as submitted, in order.
func Prepare(comments []string) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	logDropped(len(comments), len(out))
	return out
}

// Clean normalizes every comment and drops the ones left empty. It is meant
// for scraped markdown sources, not for text a user typed.
func Clean(comments []string) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		if n := Normalize(c); n != "" {
			out = append(out, n)
		}
	}
	logDropped(len(comments), len(out))
	return out
}

func logDropped(in, kept int) {
	if dropped := in - kept; dropped > 0 {
		slog.Debug("[TextPrep] Dropped empty comments",
			slog.Int("dropped", dropped),
			slog.Int("kept", kept))
	}
}

// ReadLines reads one comment per line. Blank lines are returned as-is and
// left for Prepare to drop.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading comments: %w", err)
	}
	return lines, nil
}
