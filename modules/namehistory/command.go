package namehistory

import (
	"fmt"
	"strconv"
	"strings"

	"namelog/pkg/namelog"
)

const (
	historyCommandName = "history"
	likeCommandName    = "like"
	wholikeCommandName = "wholike"
	importCommandName  = "import"
)

// historyRequest is the parsed form of one /history invocation.
type historyRequest struct {
	member       namelog.MemberID
	sort         namelog.SortKey
	page         int
	explicitPage bool
}

// parseHistoryCommand extracts member, sort and page from one invocation.
// The calling actor is the default member; a bare sort switch renders page 0.
func parseHistoryCommand(
	invocation *namelog.CommandInvocation,
	actor namelog.MemberID,
) (historyRequest, error) {
	request := historyRequest{
		member: actor,
		sort:   namelog.SortByDate,
	}

	if member := firstValueToken(invocation.Value); member != "" {
		request.member = namelog.MemberID(member)
	}

	if raw, ok := optionValue(invocation, "sort"); ok {
		key := namelog.SortKey(strings.ToLower(strings.TrimSpace(raw)))
		if err := key.Validate(); err != nil {
			return historyRequest{}, fmt.Errorf("parse history command: %w", err)
		}
		request.sort = key
	}

	if raw, ok := optionValue(invocation, "page"); ok {
		page, err := parsePageNumber(raw)
		if err != nil {
			return historyRequest{}, fmt.Errorf("parse history command: %w", err)
		}
		request.page = page
		request.explicitPage = true
	}

	return request, nil
}

// likeRequest is the parsed form of one /like invocation.
type likeRequest struct {
	owner namelog.MemberID
	index int
}

// parseLikeCommand extracts the one-based display index and the target owner.
func parseLikeCommand(
	invocation *namelog.CommandInvocation,
	actor namelog.MemberID,
) (likeRequest, error) {
	request := likeRequest{owner: actor}

	token := firstValueToken(invocation.Value)
	if token == "" {
		return likeRequest{}, fmt.Errorf("parse like command: missing record index")
	}
	index, err := strconv.Atoi(token)
	if err != nil || index < 1 {
		return likeRequest{}, fmt.Errorf("parse like command: invalid record index %q", token)
	}
	request.index = index - 1

	if member, ok := optionValue(invocation, "member"); ok {
		member = strings.TrimSpace(member)
		if member == "" {
			return likeRequest{}, fmt.Errorf("parse like command: empty member option")
		}
		request.owner = namelog.MemberID(member)
	}

	return request, nil
}

func firstValueToken(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

func optionValue(invocation *namelog.CommandInvocation, name string) (string, bool) {
	for _, option := range invocation.Options {
		if option.Name == name && option.HasValue {
			return option.Value, true
		}
	}

	return "", false
}

func parsePageNumber(raw string) (int, error) {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", raw)
	}
	if page < 1 {
		return 0, fmt.Errorf("invalid page %q: pages start at 1", raw)
	}

	return page - 1, nil
}

// renderHistoryPage formats one page for outbound delivery. Each line is
// numbered with the record's one-based position in the date-ordered view, so
// `/like` indexes stay valid on any page and under any sort.
func renderHistoryPage(member namelog.MemberID, page namelog.HistoryPage) string {
	if len(page.Items) == 0 {
		return fmt.Sprintf("%s has no recorded name changes.", member)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Name history for %s (sorted by %s):\n", member, page.Sort)
	for _, item := range page.Items {
		fmt.Fprintf(
			&builder,
			"%d. %s\n",
			item.Index+1,
			renderChangeRecord(item.Record),
		)
	}
	fmt.Fprintf(&builder, "Page %d/%d", page.Page+1, page.PageCount)
	if page.HasNext {
		fmt.Fprintf(&builder, ", use --page %d for more", page.Page+2)
	}

	return builder.String()
}

func renderChangeRecord(record namelog.ChangeRecord) string {
	oldName := record.OldName
	if oldName == "" {
		oldName = "(unknown)"
	}

	return fmt.Sprintf(
		"%s → %s (%d likes) [%s]",
		oldName,
		record.NewName,
		record.LikeCount(),
		formatDocumentTime(record.ChangedAt),
	)
}

func renderLikeResult(owner namelog.MemberID, result namelog.LikeResult) string {
	verb := "Liked"
	if result.Action == namelog.LikeActionUnliked {
		verb = "Unliked"
	}

	return fmt.Sprintf(
		"%s %q by %s: now %d likes.",
		verb,
		result.Record.NewName,
		owner,
		result.Count,
	)
}

func renderLikerEntries(name string, entries []namelog.LikerEntry) string {
	if len(entries) == 0 {
		if name != "" {
			return fmt.Sprintf("No liked records found for name %q.", name)
		}
		return "You have no liked name changes."
	}

	var builder strings.Builder
	if name != "" {
		fmt.Fprintf(&builder, "Likes for name %q:\n", name)
	} else {
		builder.WriteString("Your liked name changes:\n")
	}
	for _, entry := range entries {
		likers := make([]string, 0, len(entry.Record.LikedBy))
		for _, liker := range entry.Record.LikedBy {
			likers = append(likers, string(liker))
		}
		fmt.Fprintf(
			&builder,
			"%s: %d likes from %s\n",
			renderChangeRecord(entry.Record),
			entry.Record.LikeCount(),
			strings.Join(likers, ", "),
		)
	}

	return strings.TrimRight(builder.String(), "\n")
}

func renderImportReport(report namelog.ImportReport) string {
	return fmt.Sprintf(
		"Import finished: %d added, %d skipped as duplicates.",
		report.Added,
		report.Skipped,
	)
}
