package assistant

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"sdsdg/internal/schema"
)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// normalize lowercases text and reduces it to space separated words, padded
// with one space on each side.
func normalize(text string) string {
	return " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(text), " ")) + " "
}

// forms returns the phrases that name table t in a prompt: the name itself and
// its singular and plural, with underscores read as spaces.
func forms(name string) []string {
	base := strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(name), " "))
	seen := map[string]bool{}
	var out []string
	for _, f := range []string{base, inflection.Singular(base), inflection.Plural(base)} {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// MentionedTables returns the tables of s named in text, sorted.
func MentionedTables(s *schema.Schema, text string) []string {
	norm := normalize(text)
	var out []string
	for i := range s.Tables {
		for _, f := range forms(s.Tables[i].Name) {
			if strings.Contains(norm, " "+f+" ") {
				out = append(out, s.Tables[i].Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// ParseCounts extracts row counts such as "10 products" or "5 active users"
// from text. Up to two words may sit between the number and the table name,
// as long as they do not name a table themselves.
func ParseCounts(s *schema.Schema, text string) map[string]int {
	norm := normalize(text)
	tableWords := make(map[string]bool)
	for i := range s.Tables {
		for _, f := range forms(s.Tables[i].Name) {
			tableWords[f] = true
		}
	}

	counts := make(map[string]int)
	for i := range s.Tables {
		name := s.Tables[i].Name
	next:
		for _, f := range forms(name) {
			re := regexp.MustCompile(` (\d+) ((?:[a-z]+ ){0,2}?)` + regexp.QuoteMeta(f) + ` `)
			for pos := 0; ; {
				loc := re.FindStringSubmatchIndex(norm[pos:])
				if loc == nil {
					break
				}
				num, gap := norm[pos+loc[2]:pos+loc[3]], norm[pos+loc[4]:pos+loc[5]]
				// resume on the trailing space so it can open the next match
				pos += loc[1] - 1
				if namesTable(gap, tableWords) {
					continue
				}
				if n, err := strconv.Atoi(num); err == nil && n > 0 {
					counts[name] = n
					break next
				}
			}
		}
	}
	return counts
}

// namesTable reports whether the words of gap, alone or in pairs, name a table.
func namesTable(gap string, tableWords map[string]bool) bool {
	words := strings.Fields(gap)
	for i, w := range words {
		if tableWords[w] {
			return true
		}
		if i+1 < len(words) && tableWords[w+" "+words[i+1]] {
			return true
		}
	}
	return false
}
