package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MetadataExtractor derives bibliographic fields from document text using
// rule-based heuristics. It runs entirely locally; no external calls.
type MetadataExtractor struct {
	authorLine      *regexp.Regexp
	namePattern     *regexp.Regexp
	nameLeading     *regexp.Regexp
	authorSeparator *regexp.Regexp
	yearPattern     *regexp.Regexp
	doiPattern      *regexp.Regexp
	doiPrefix       *regexp.Regexp
	titleLine       *regexp.Regexp
	numberedLine    *regexp.Regexp
	journalSuffix   *regexp.Regexp
	journalTrail    *regexp.Regexp
	journalName     *regexp.Regexp
	abstractSection *regexp.Regexp
	summarySection  *regexp.Regexp
	leadingJunk     *regexp.Regexp
	whitespace      *regexp.Regexp
}

// ExtractedMetadata holds the fields the extractor recognized. Nil pointers
// and empty slices mean the field was not found.
type ExtractedMetadata struct {
	Title    *string
	Authors  []string
	Journal  *string
	Year     *int
	DOI      *string
	Abstract *string
}

// NewMetadataExtractor compiles the extraction patterns once.
func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{
		authorLine:      regexp.MustCompile(`(?i)(?:authors?|by)[:\s]+([^\n]+)`),
		namePattern:     regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z]\.?\s*)?\s+[A-Z][a-z]+`),
		nameLeading:     regexp.MustCompile(`^[A-Z][a-z]+\s+[A-Z][a-z]+`),
		authorSeparator: regexp.MustCompile(`[,;&]|\band\b`),
		yearPattern:     regexp.MustCompile(`\b(19[5-9]\d|20[0-2]\d)\b`),
		doiPattern:      regexp.MustCompile(`(?:doi:|DOI:|https?://doi\.org/|10\.)\s*([0-9]+\.[0-9]+/[^\s]+)`),
		doiPrefix:       regexp.MustCompile(`^(?:doi:|DOI:|https?://doi\.org/)`),
		titleLine:       regexp.MustCompile(`(?i)(?:Title)[:\s]+([^\n]+)`),
		numberedLine:    regexp.MustCompile(`^\d+\.`),
		journalSuffix:   regexp.MustCompile(`\s*\d{4}\s*$`),
		journalTrail:    regexp.MustCompile(`[,.]$`),
		journalName:     regexp.MustCompile(`(?:Proceedings of|Journal of|Conference on)\s+([^\n,]+)`),
		abstractSection: regexp.MustCompile(`(?is)(?:Abstract)[:\s]*\n+(.*?)(?:\n\n|\n(?:Introduction|Keywords|1\.|I\.))`),
		summarySection:  regexp.MustCompile(`(?is)(?:Summary)[:\s]*\n+(.*?)(?:\n\n|\n(?:Introduction|Keywords|1\.|I\.))`),
		leadingJunk:     regexp.MustCompile(`^[\d.\-\s]+`),
		whitespace:      regexp.MustCompile(`\s+`),
	}
}

// Extract runs all field heuristics against text. Metadata usually sits at
// the head of a paper, so most patterns only scan a leading sample.
func (e *MetadataExtractor) Extract(text string) *ExtractedMetadata {
	sample := head(text, 2000)

	return &ExtractedMetadata{
		Title:    e.extractTitle(sample, text),
		Authors:  e.extractAuthors(sample),
		Journal:  e.extractJournal(sample),
		Year:     e.extractYear(sample),
		DOI:      e.extractDOI(sample),
		Abstract: e.extractAbstract(text),
	}
}

func (e *MetadataExtractor) extractTitle(sample, fullText string) *string {
	lines := strings.Split(sample, "\n")

	// Strategy 1: explicit title markers in the first lines
	indicators := []string{"title:", "title :", "#", "##"}
	limit := len(lines)
	if limit > 20 {
		limit = 20
	}
	for _, line := range lines[:limit] {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, indicator := range indicators {
			if strings.HasPrefix(lower, indicator) {
				title := strings.TrimSpace(strings.Replace(line, indicator, "", 1))
				if len(title) > 10 {
					cleaned := e.cleanTitle(title)
					return &cleaned
				}
			}
		}
	}

	// Strategy 2: first substantial line that looks like a title
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > 20 && len(line) < 200 &&
			!strings.HasPrefix(line, "(") &&
			!e.numberedLine.MatchString(line) &&
			line[0] >= 'A' && line[0] <= 'Z' {
			cleaned := e.cleanTitle(line)
			return &cleaned
		}
	}

	// Strategy 3: explicit Title: marker anywhere in the head of the document
	if m := e.titleLine.FindStringSubmatch(head(fullText, 1000)); m != nil {
		cleaned := e.cleanTitle(m[1])
		return &cleaned
	}

	return nil
}

func (e *MetadataExtractor) extractAuthors(text string) []string {
	var authors []string

	if m := e.authorLine.FindStringSubmatch(text); m != nil {
		for _, candidate := range e.authorSeparator.Split(m[1], -1) {
			candidate = strings.TrimSpace(candidate)
			if e.nameLeading.MatchString(candidate) {
				authors = append(authors, candidate)
			}
		}
	}

	// No explicit author line; look for name-shaped tokens near the top.
	if len(authors) == 0 {
		exclude := map[string]bool{
			"The": true, "This": true, "These": true, "That": true,
			"What": true, "Where": true, "When": true,
			"Abstract": true, "Introduction": true,
		}
		matches := e.namePattern.FindAllString(head(text, 500), 5)
		for _, name := range matches {
			if !exclude[name] && len(strings.Fields(name)) >= 2 {
				authors = append(authors, name)
			}
		}
	}

	return dedupe(authors)
}

func (e *MetadataExtractor) extractJournal(text string) *string {
	indicators := []string{"journal", "published in", "in:", "journal:"}
	for _, indicator := range indicators {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(indicator) + `[:\s]+([^\n,]+)`)
		if m := pattern.FindStringSubmatch(text); m != nil {
			journal := strings.TrimSpace(m[1])
			journal = e.journalSuffix.ReplaceAllString(journal, "")
			journal = e.journalTrail.ReplaceAllString(journal, "")
			if len(journal) > 5 {
				return &journal
			}
		}
	}

	if m := e.journalName.FindString(text); m != "" {
		journal := strings.TrimSpace(m)
		return &journal
	}

	return nil
}

func (e *MetadataExtractor) extractYear(text string) *int {
	matches := e.yearPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	currentYear := time.Now().Year()
	best := 0
	for _, m := range matches {
		year, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		// Most recent non-future year is the likely publication year.
		if year <= currentYear && year > best {
			best = year
		}
	}
	if best == 0 {
		return nil
	}
	return &best
}

func (e *MetadataExtractor) extractDOI(text string) *string {
	m := e.doiPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	doi := m[1]
	if strings.Contains(m[0], "10.") {
		doi = m[0]
	}
	doi = strings.TrimSpace(e.doiPrefix.ReplaceAllString(doi, ""))
	if !strings.HasPrefix(doi, "10.") {
		doi = "10." + doi
	}
	return &doi
}

func (e *MetadataExtractor) extractAbstract(text string) *string {
	sample := head(text, 3000)
	for _, pattern := range []*regexp.Regexp{e.abstractSection, e.summarySection} {
		if m := pattern.FindStringSubmatch(sample); m != nil {
			abstract := strings.TrimSpace(m[1])
			abstract = e.whitespace.ReplaceAllString(abstract, " ")
			if len(abstract) > 50 {
				return &abstract
			}
		}
	}
	return nil
}

func (e *MetadataExtractor) cleanTitle(title string) string {
	title = e.leadingJunk.ReplaceAllString(title, "")
	title = e.whitespace.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)

	if len(title) >= 2 && strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) {
		title = title[1 : len(title)-1]
	}

	return title
}

func head(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
