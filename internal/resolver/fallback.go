package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

var (
	explicitRefRe = regexp.MustCompile(`(?i)(?:\b(?:task|id|number|no\.?|item)\s*#?\s*|#)(\d+)\b`)
	bareIntRe     = regexp.MustCompile(`\b(\d+)\b`)
	tagRe         = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_-]+)`)
	spaceRe       = regexp.MustCompile(`\s+`)

	priorityPhraseRe = regexp.MustCompile(`(?i)(?:,\s*|\s+|^)(?:(?:with\s+|at\s+)?(?:a\s+)?(high|medium|low)\s+priority|priority\s*(?:to\s+|=\s*|:\s*|of\s+)?(high|medium|low))\b`)
	renameToRe       = regexp.MustCompile(`(?i)\b(?:to|as|into)\s+`)
	searchRe         = regexp.MustCompile(`(?i)\b(?:about|containing|matching|mentioning)\s+(.+)$`)
	prioWordRe       = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)
)

// fallback resolves text with the keyword rules, in priority order.
func (r *Resolver) fallback(ctx context.Context, userID, text string) (*Intent, error) {
	kw := r.keywords.Load()
	norm := normalize(text)

	if info, ok := kw.informational(norm); ok {
		return &Intent{Info: info, Confidence: ConfidenceFallback, RawSource: text}, nil
	}

	var (
		call tools.Call
		err  error
	)
	switch {
	case kw.delete.match(norm), kw.complete.match(norm):
		isDelete := kw.delete.match(norm)
		verbs := kw.complete
		if isDelete {
			verbs = kw.delete
		}
		var id int64
		id, err = r.resolveReference(ctx, kw, userID, norm, verbs)
		var rerr *ResolutionError
		switch {
		case err == nil && isDelete:
			call = tools.DeleteTask{TaskID: id}
		case err == nil:
			call = tools.CompleteTask{TaskID: id}
		case errors.As(err, &rerr) && kw.list.match(norm):
			// "show finished tasks": a status word next to a listing verb,
			// with no task behind it.
			call, err = kw.parseList(norm), nil
		}
	case kw.update.match(norm):
		call, err = r.parseUpdate(ctx, kw, userID, text)
	case kw.list.match(norm):
		call = kw.parseList(norm)
	default:
		call, err = kw.parseCreate(text)
	}
	if err != nil {
		return nil, err
	}
	return &Intent{Call: call, Confidence: ConfidenceFallback, RawSource: text}, nil
}

func (kw *compiledKeywords) informational(norm string) (InfoKind, bool) {
	switch {
	case kw.help[norm]:
		return InfoHelp, true
	case kw.greetings[norm]:
		return InfoGreeting, true
	}
	words := strings.Fields(norm)
	if len(words) > 0 && len(words) <= 3 && words[0] == "help" {
		return InfoHelp, true
	}
	return "", false
}

// resolveReference finds the task a message points at: an explicit id token,
// then the best fuzzy title match, then any bare integer.
func (r *Resolver) resolveReference(ctx context.Context, kw *compiledKeywords, userID, norm string, verbs matcher) (int64, error) {
	if m := explicitRefRe.FindStringSubmatch(norm); m != nil {
		return parseTaskID(m[1])
	}

	query := referenceQuery(kw, norm, verbs)
	if r.tasks != nil {
		candidates, err := r.listCandidates(ctx, userID)
		if err != nil {
			return 0, err
		}
		if best, _ := bestTitleMatch(candidates, norm, query); best != nil {
			return best.ID, nil
		}
	}

	if m := bareIntRe.FindStringSubmatch(norm); m != nil {
		return parseTaskID(m[1])
	}
	if query == "" {
		return 0, &ResolutionError{Reason: "no task reference"}
	}
	return 0, &ResolutionError{Reason: "no task matches", Reference: query}
}

// referenceQuery is what remains of the message once verbs and fillers are gone.
func referenceQuery(kw *compiledKeywords, norm string, verbs matcher) string {
	q := verbs.strip(norm)
	q = kw.fillers.strip(q)
	q = kw.completed.strip(q)
	return strings.TrimSpace(spaceRe.ReplaceAllString(q, " "))
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ResolutionError{Reason: "invalid task id", Reference: s}
	}
	return id, nil
}

func (r *Resolver) listCandidates(ctx context.Context, userID string) ([]*taskstore.Task, error) {
	candidates, err := r.tasks.List(ctx, userID, taskstore.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks for reference: %w", err)
	}
	return candidates, nil
}

// bestTitleMatch scores the user's tasks against the message and returns the
// winner with its score. When several tasks share the best score the most
// recently created one wins, then the highest id.
func bestTitleMatch(candidates []*taskstore.Task, norm, query string) (*taskstore.Task, int) {
	var (
		best      *taskstore.Task
		bestScore int
	)
	for _, t := range candidates {
		title := normalize(t.Title)
		if title == "" {
			continue
		}
		score := 0
		switch {
		case query != "" && title == query:
			score = 3
		case containsPhrase(norm, title):
			score = 2
		case query != "" && strings.Contains(title, query):
			score = 1
		}
		if score == 0 {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && newer(t, best)) {
			best, bestScore = t, score
		}
	}
	return best, bestScore
}

func newer(a, b *taskstore.Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (r *Resolver) parseUpdate(ctx context.Context, kw *compiledKeywords, userID, text string) (tools.Call, error) {
	rest := text
	var prio *taskstore.Priority
	if m := priorityPhraseRe.FindStringSubmatchIndex(rest); m != nil {
		p := taskstore.Priority(strings.ToLower(firstGroup(rest, m)))
		prio = &p
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	refPart, title, err := r.splitRename(ctx, kw, userID, rest, prio != nil)
	if err != nil {
		return nil, err
	}
	if title != nil && prio == nil && prioWordRe.MatchString(*title) && len(strings.Fields(*title)) == 1 {
		p := taskstore.Priority(strings.ToLower(*title))
		prio, title = &p, nil
	}

	if prio == nil && title == nil {
		return nil, &ResolutionError{Reason: "no change found in update request"}
	}

	id, err := r.resolveReference(ctx, kw, userID, normalize(refPart), kw.update)
	if err != nil {
		return nil, err
	}
	return tools.UpdateTask{TaskID: id, Title: title, Priority: prio}, nil
}

// splitRename cuts "<reference> to <new title>" at the "to" whose left side
// names a task best. An explicit id ends the reference at the first "to"
// after it. When the whole text already names a task (keepAll, something else
// changes) a split must name one strictly better, so a "to" inside a title is
// never read as a rename.
func (r *Resolver) splitRename(ctx context.Context, kw *compiledKeywords, userID, rest string, keepAll bool) (string, *string, error) {
	splits := renameToRe.FindAllStringIndex(rest, -1)
	if len(splits) == 0 {
		return rest, nil, nil
	}
	at := func(i int) (string, *string, error) {
		title := cleanTitle(rest[splits[i][1]:])
		if title == "" {
			return rest[:splits[i][0]], nil, nil
		}
		return rest[:splits[i][0]], &title, nil
	}

	if m := explicitRefRe.FindStringIndex(rest); m != nil && m[1] <= splits[len(splits)-1][0] {
		for i, sp := range splits {
			if sp[0] >= m[1] {
				return at(i)
			}
		}
	}

	if r.tasks == nil {
		if keepAll {
			return rest, nil, nil
		}
		return at(0)
	}
	candidates, err := r.listCandidates(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	bestSplit, bestScore := -1, 0
	if keepAll {
		norm := normalize(rest)
		_, bestScore = bestTitleMatch(candidates, norm, referenceQuery(kw, norm, kw.update))
	}
	for i, sp := range splits {
		norm := normalize(rest[:sp[0]])
		if _, score := bestTitleMatch(candidates, norm, referenceQuery(kw, norm, kw.update)); score > bestScore {
			bestSplit, bestScore = i, score
		}
	}
	switch {
	case bestSplit >= 0:
		return at(bestSplit)
	case keepAll:
		return rest, nil, nil
	default:
		return at(0)
	}
}

func (kw *compiledKeywords) parseList(norm string) tools.Call {
	var call tools.ListTasks
	rest := norm
	if m := priorityPhraseRe.FindStringSubmatchIndex(rest); m != nil {
		call.Priority = taskstore.Priority(strings.ToLower(firstGroup(rest, m)))
		rest = rest[:m[0]] + " " + rest[m[1]:]
	} else if kw.urgent.match(rest) {
		call.Priority = taskstore.PriorityHigh
	}
	if m := searchRe.FindStringSubmatchIndex(rest); m != nil {
		call.Search = cleanTitle(rest[m[2]:m[3]])
		rest = rest[:m[0]]
	}
	switch {
	case kw.pending.match(rest):
		call.Status = taskstore.StatusPending
	case kw.completed.match(rest):
		call.Status = taskstore.StatusCompleted
	}
	return call
}

func (kw *compiledKeywords) parseCreate(text string) (tools.Call, error) {
	call := tools.CreateTask{Priority: taskstore.PriorityMedium}
	rest := text

	for _, m := range tagRe.FindAllStringSubmatch(rest, -1) {
		call.Tags = append(call.Tags, strings.ToLower(m[1]))
	}
	rest = tagRe.ReplaceAllString(rest, " ")

	if m := priorityPhraseRe.FindStringSubmatchIndex(rest); m != nil {
		call.Priority = taskstore.Priority(strings.ToLower(firstGroup(rest, m)))
		rest = rest[:m[0]] + " " + rest[m[1]:]
	} else if kw.urgent.match(rest) {
		call.Priority = taskstore.PriorityHigh
		rest = kw.urgent.strip(rest)
	}

	call.Title = cleanTitle(stripPrefixes(rest, kw.table.CreatePrefixes))
	if call.Title == "" {
		return nil, &ResolutionError{Reason: "no task title found"}
	}
	return call, nil
}

// stripPrefixes repeatedly removes leading phrases, keeping the original case
// of what remains.
func stripPrefixes(s string, prefixes []string) string {
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	for {
		lower := strings.ToLower(s)
		stripped := false
		for _, p := range prefixes {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" || !strings.HasPrefix(lower, p) {
				continue
			}
			if len(lower) > len(p) && !isBoundary(lower[len(p)]) {
				continue
			}
			s = strings.TrimLeft(s[len(p):], " :,-")
			stripped = true
			break
		}
		if !stripped || s == "" {
			return s
		}
	}
}

func isBoundary(b byte) bool {
	return b == ' ' || b == ':' || b == ',' || b == '-'
}

func firstGroup(s string, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			return s[m[i]:m[i+1]]
		}
	}
	return ""
}

// cleanTitle trims whitespace, quotes and trailing punctuation.
func cleanTitle(s string) string {
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	s = strings.Trim(s, ` "'“”‘’`)
	s = strings.TrimRight(s, " .!?,;:")
	return strings.TrimSpace(strings.TrimLeft(s, " ,;:-"))
}

// normalize lowercases s, collapses whitespace and drops surrounding punctuation.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(spaceRe.ReplaceAllString(s, " ")))
	return strings.Trim(s, " .!?,;:\"'")
}

func containsPhrase(haystack, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(haystack[start-1])) && (end == len(haystack) || !isWordByte(haystack[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 0x80
}
