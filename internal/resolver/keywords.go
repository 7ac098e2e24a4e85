package resolver

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeywordTable drives the fallback parser. Every list is matched
// case-insensitively on word boundaries.
type KeywordTable struct {
	Greetings []string `yaml:"greetings"`
	Help      []string `yaml:"help"`
	Delete    []string `yaml:"delete"`
	Complete  []string `yaml:"complete"`
	Update    []string `yaml:"update"`
	List      []string `yaml:"list"`
	// CreatePrefixes are stripped from the front of a message to get a title.
	CreatePrefixes []string `yaml:"create_prefixes"`
	// Fillers are dropped when extracting a task reference from a message.
	Fillers        []string `yaml:"fillers"`
	PendingWords   []string `yaml:"pending_words"`
	CompletedWords []string `yaml:"completed_words"`
	// Urgent words count as a high priority phrase.
	Urgent []string `yaml:"urgent"`
}

// DefaultKeywords returns the built-in English keyword table.
func DefaultKeywords() *KeywordTable {
	return &KeywordTable{
		Greetings: []string{
			"hi", "hello", "hey", "hey there", "hi there", "hello there", "good morning",
			"good afternoon", "good evening", "thanks", "thank you", "yo",
		},
		Help: []string{
			"help", "help me", "what can you do", "what can i say", "how does this work",
			"commands", "usage",
		},
		Delete:   []string{"delete", "remove", "erase", "get rid of"},
		Complete: []string{"complete", "done", "finish", "finished", "check off", "tick off"},
		Update:   []string{"update", "change", "edit", "rename", "modify"},
		List:     []string{"list", "show", "what are", "display", "view", "what's on", "whats on"},
		CreatePrefixes: []string{
			"please", "can you", "could you", "add", "create", "new task", "new todo", "new item", "remind me to",
			"i need to", "i have to", "i must", "don't forget to", "todo", "to-do", "a", "task",
			"tasks", "item", "to", "called", "named", "titled",
		},
		Fillers: []string{
			"i", "the", "a", "an", "my", "task", "tasks", "item", "todo", "to-do", "please", "mark",
			"as", "it", "one", "called", "named", "titled", "that", "is", "now", "for", "me",
		},
		PendingWords:   []string{"pending", "open", "incomplete", "unfinished", "remaining", "outstanding"},
		CompletedWords: []string{"completed", "finished", "done", "closed"},
		Urgent:         []string{"urgent", "urgently", "asap", "important"},
	}
}

// LoadKeywords reads a YAML keyword table. Lists absent from the file keep
// their default values.
func LoadKeywords(path string) (*KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	kt := DefaultKeywords()
	if err := yaml.Unmarshal(data, kt); err != nil {
		return nil, fmt.Errorf("parse keywords %s: %w", path, err)
	}
	return kt, nil
}

// matcher is a compiled word-boundary alternation over a phrase list.
type matcher struct {
	re *regexp.Regexp
}

func newMatcher(phrases []string) matcher {
	if len(phrases) == 0 {
		return matcher{}
	}
	sorted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			sorted = append(sorted, regexp.QuoteMeta(p))
		}
	}
	// Longest first so "get rid of" wins over shorter overlaps.
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return matcher{re: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(` + strings.Join(sorted, "|") + `)(?:$|[^\p{L}\p{N}_])`)}
}

func (m matcher) match(s string) bool {
	return m.re != nil && m.re.MatchString(s)
}

// strip removes every occurrence of the phrases from s.
func (m matcher) strip(s string) string {
	if m.re == nil {
		return s
	}
	for {
		loc := m.re.FindStringSubmatchIndex(s)
		if loc == nil {
			return s
		}
		s = s[:loc[2]] + " " + s[loc[3]:]
	}
}

type compiledKeywords struct {
	table     *KeywordTable
	greetings map[string]bool
	help      map[string]bool
	delete    matcher
	complete  matcher
	update    matcher
	list      matcher
	fillers   matcher
	pending   matcher
	completed matcher
	urgent    matcher
}

func compileKeywords(kt *KeywordTable) *compiledKeywords {
	set := func(phrases []string) map[string]bool {
		m := make(map[string]bool, len(phrases))
		for _, p := range phrases {
			if key := normalize(p); key != "" {
				m[key] = true
			}
		}
		return m
	}
	return &compiledKeywords{
		table:     kt,
		greetings: set(kt.Greetings),
		help:      set(kt.Help),
		delete:    newMatcher(kt.Delete),
		complete:  newMatcher(kt.Complete),
		update:    newMatcher(kt.Update),
		list:      newMatcher(kt.List),
		fillers:   newMatcher(kt.Fillers),
		pending:   newMatcher(kt.PendingWords),
		completed: newMatcher(kt.CompletedWords),
		urgent:    newMatcher(kt.Urgent),
	}
}
