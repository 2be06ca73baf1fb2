package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/spiffcs/ghsearch/internal/constants"
	"github.com/spiffcs/ghsearch/internal/format"
	"github.com/spiffcs/ghsearch/internal/model"
)

// TableFormatter formats output as a terminal table
type TableFormatter struct{}

// Column widths
const (
	colLogin     = 20
	colName      = 22
	colType      = 4
	colRepos     = 6
	colFollowers = 9
	colJoined    = 6
	colLocation  = 18
)

// hyperlink creates a clickable terminal hyperlink using OSC 8
// Format: \033]8;;URL\033\\TEXT\033]8;;\033\\
func hyperlink(text, url string) string {
	// Only use hyperlinks if stdout is a terminal
	if url == "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		return text
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// Format outputs users as a table followed by a paging and quota footer.
func (f *TableFormatter) Format(resp *model.SearchResponse, ctx Context, w io.Writer) error {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	faint := color.New(color.Faint)
	if len(ctx.Filters) > 0 {
		fmt.Fprintf(w, "%s %s\n", faint.Sprint("Filters:"), strings.Join(ctx.Filters, " · "))
	}
	if ctx.Query != "" {
		fmt.Fprintf(w, "%s %s\n", faint.Sprint("Query:  "), ctx.Query)
	}
	if len(ctx.Filters) > 0 || ctx.Query != "" {
		fmt.Fprintln(w)
	}

	if len(resp.Users) == 0 {
		fmt.Fprintln(w, "No users found.")
		printFooter(resp, ctx, now, w)
		return nil
	}

	// Header
	fmt.Fprintf(w, "%-*s  %-*s  %-*s  %*s  %*s  %-*s  %s\n",
		colLogin, "Login",
		colName, "Name",
		colType, "Type",
		colRepos, "Repos",
		colFollowers, "Followers",
		colJoined, "Joined",
		"Location")
	fmt.Fprintln(w, strings.Repeat("-", colLogin+colName+colType+colRepos+colFollowers+colJoined+colLocation+12))

	for _, u := range resp.Users {
		login := format.PadRight(hyperlink(format.Truncate(u.Login, colLogin), u.URL), colLogin)

		name := format.PadRight(format.Truncate(format.SingleLine(deref(u.Name)), colName), colName)

		typ := "USR"
		if u.Type == model.UserTypeOrganization {
			typ = color.CyanString("ORG")
		}
		if u.Sponsorable {
			typ += color.MagentaString("♥")
		}
		typ = format.PadRight(typ, colType)

		joined := "-"
		if t, err := time.Parse(time.RFC3339, u.Stats.Joined); err == nil && u.Stats.Joined != constants.JoinedSentinel {
			joined = format.FormatAge(now.Sub(t))
		}

		location := format.Truncate(format.SingleLine(deref(u.Location)), colLocation)

		fmt.Fprintf(w, "%s  %s  %s  %*s  %*s  %-*s  %s\n",
			login,
			name,
			typ,
			colRepos, format.FormatCount(u.Stats.Repositories),
			colFollowers, format.FormatCount(u.Stats.Followers),
			colJoined, joined,
			location,
		)
	}

	printFooter(resp, ctx, now, w)
	return nil
}

func printFooter(resp *model.SearchResponse, ctx Context, now time.Time, w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("━", 60))

	if len(resp.Users) > 0 {
		first := (max(ctx.Page, 1)-1)*max(ctx.PerPage, len(resp.Users)) + 1
		last := first + len(resp.Users) - 1
		fmt.Fprintf(w, "  Showing %d-%d of %d users\n", first, last, resp.TotalCount)
	} else {
		fmt.Fprintf(w, "  %d users match\n", resp.TotalCount)
	}

	if rl := resp.RateLimit; rl != nil {
		fmt.Fprintf(w, "  Rate limit: %s of %d remaining, %s\n",
			colorRemaining(rl.Remaining, rl.Limit),
			rl.Limit,
			resetIn(rl.ResetTime().Sub(now)))
	}
}

// colorRemaining colors the remaining quota by the share left.
func colorRemaining(remaining, limit int) string {
	s := fmt.Sprintf("%d", remaining)
	switch {
	case limit <= 0:
		return s
	case remaining*10 < limit:
		return color.RedString(s)
	case remaining*2 < limit:
		return color.YellowString(s)
	default:
		return color.GreenString(s)
	}
}

func resetIn(d time.Duration) string {
	switch {
	case d <= 0:
		return "resets now"
	case d < time.Minute:
		return "resets in <1m"
	}
	return "resets in " + format.FormatAge(d)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
