package database

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nfrund/freemember/internal/domain"
)

// sortableColumns whitelists the orderby values accepted from templates.
var sortableColumns = map[string]bool{
	"member_id":   true,
	"group_id":    true,
	"username":    true,
	"screen_name": true,
	"email":       true,
	"join_date":   true,
}

func orderColumn(q domain.MemberQuery) (string, bool) {
	col := strings.ToLower(q.OrderBy)
	if !sortableColumns[col] {
		col = "member_id"
	}
	return col, strings.EqualFold(q.Sort, "desc")
}

func matches(m *domain.Member, q domain.MemberQuery) bool {
	return in(q.MemberIDs, m.ID, false) &&
		in(q.Usernames, m.Username, true) &&
		in(q.Emails, m.Email, true) &&
		in(q.GroupIDs, m.GroupID, false) &&
		(q.ScreenName == "" || strings.EqualFold(q.ScreenName, m.ScreenName))
}

func in(list []string, v string, fold bool) bool {
	if len(list) == 0 {
		return true
	}
	for _, s := range list {
		if s == v || (fold && strings.EqualFold(s, v)) {
			return true
		}
	}
	return false
}

func sortMembers(members []*domain.Member, q domain.MemberQuery) {
	col, desc := orderColumn(q)
	less := func(a, b *domain.Member) bool {
		switch col {
		case "join_date":
			return a.JoinDate.Before(b.JoinDate)
		case "member_id":
			x, errX := strconv.Atoi(a.ID)
			y, errY := strconv.Atoi(b.ID)
			if errX == nil && errY == nil {
				return x < y
			}
		}
		return a.Field(col) < b.Field(col)
	}
	sort.SliceStable(members, func(i, j int) bool {
		if desc {
			return less(members[j], members[i])
		}
		return less(members[i], members[j])
	})
}

func page(members []*domain.Member, q domain.MemberQuery) []*domain.Member {
	if q.Offset > 0 {
		if q.Offset >= len(members) {
			return nil
		}
		members = members[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(members) {
		members = members[:q.Limit]
	}
	return members
}
